package workspace

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/rankwell/rankwell/internal/idgen"
)

// PostgresStore persists workspace records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed workspace store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateClient(ctx context.Context, c *Client) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clients (id, agency_id, name, domain, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.AgencyID, c.Name, c.Domain, c.CreatedBy, c.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetClient(ctx context.Context, id string) (*Client, error) {
	var c Client
	err := p.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, domain, created_by, created_at
		FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.AgencyID, &c.Name, &c.Domain, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) GrantAccess(ctx context.Context, userID, clientID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO client_users (user_id, client_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, client_id) DO NOTHING`, userID, clientID)
	return mapFK(err)
}

func (p *PostgresStore) MarkIncluded(ctx context.Context, agencyID, clientID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO included_clients (agency_id, client_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (agency_id, client_id) DO NOTHING`, agencyID, clientID)
	return mapFK(err)
}

func (p *PostgresStore) ClientIDsForUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return p.queryIDs(ctx, `
		SELECT DISTINCT client_id FROM client_users
		WHERE user_id = ANY($1)
		ORDER BY client_id`, pq.Array(userIDs))
}

func (p *PostgresStore) IncludedClientIDs(ctx context.Context, agencyID string) ([]string, error) {
	return p.queryIDs(ctx, `
		SELECT client_id FROM included_clients
		WHERE agency_id = $1
		ORDER BY client_id`, agencyID)
}

func (p *PostgresStore) KeywordCounts(ctx context.Context, clientIDs []string) (map[string]int, error) {
	return p.countBy(ctx, `
		SELECT client_id, COUNT(*) FROM keywords
		WHERE client_id = ANY($1)
		GROUP BY client_id`, clientIDs)
}

func (p *PostgresStore) TargetKeywordCounts(ctx context.Context, clientIDs []string) (map[string]int, error) {
	return p.countBy(ctx, `
		SELECT client_id, COUNT(*) FROM target_keywords
		WHERE client_id = ANY($1)
		GROUP BY client_id`, clientIDs)
}

func (p *PostgresStore) AddKeywords(ctx context.Context, clientID string, phrases []string) (int, error) {
	return p.insertPhrases(ctx, "keywords", "kw_", clientID, phrases)
}

func (p *PostgresStore) AddTargetKeywords(ctx context.Context, clientID string, phrases []string) (int, error) {
	return p.insertPhrases(ctx, "target_keywords", "tkw_", clientID, phrases)
}

func (p *PostgresStore) CreateLookup(ctx context.Context, l *ResearchLookup) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO research_lookups (id, agency_id, user_id, keywords, credits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.AgencyID, l.UserID, pq.Array(l.Keywords), l.Credits, l.CreatedAt,
	)
	return err
}

// insertPhrases runs in one transaction; table is one of the two fixed keyword tables.
func (p *PostgresStore) insertPhrases(ctx context.Context, table, prefix, clientID string, phrases []string) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, phrase := range phrases {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (id, client_id, phrase, created_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (client_id, phrase) DO NOTHING`,
			idgen.WithPrefix(prefix), clientID, phrase)
		if err != nil {
			return 0, mapFK(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

func (p *PostgresStore) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) countBy(ctx context.Context, query string, clientIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, query, pq.Array(clientIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// mapFK turns a foreign key violation on client_id into ErrClientNotFound.
func mapFK(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return ErrClientNotFound
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
