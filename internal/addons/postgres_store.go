package addons

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists add-ons in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed add-on store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, a *AddOn) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO addons (id, agency_id, kind, option, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.AgencyID, string(a.Variant.Kind()), a.Variant.Option(), string(a.Status), a.CreatedAt,
	)
	return err
}

// ListByAgency returns every add-on row for the agency. A row whose kind/option
// pair is not a known variant fails the whole call.
func (p *PostgresStore) ListByAgency(ctx context.Context, agencyID string) ([]*AddOn, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agency_id, kind, option, status, created_at
		FROM addons WHERE agency_id = $1
		ORDER BY created_at`, agencyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*AddOn
	for rows.Next() {
		var (
			a            AddOn
			kind, option string
			status       string
			createdAt    time.Time
		)
		if err := rows.Scan(&a.ID, &a.AgencyID, &kind, &option, &status, &createdAt); err != nil {
			return nil, err
		}
		v, err := ParseVariant(kind, option)
		if err != nil {
			return nil, fmt.Errorf("add-on %s: %w", a.ID, err)
		}
		a.Variant = v
		a.Status = Status(status)
		a.CreatedAt = createdAt
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Cancel(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `UPDATE addons SET status = 'canceled' WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAddOnNotFound
	}
	return nil
}

func (p *PostgresStore) ReplaceActive(ctx context.Context, agencyID string, rows []*AddOn) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE addons SET status = 'canceled'
		WHERE agency_id = $1 AND status = 'active'`, agencyID); err != nil {
		return err
	}
	for _, a := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO addons (id, agency_id, kind, option, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.AgencyID, string(a.Variant.Kind()), a.Variant.Option(), string(a.Status), a.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var _ Store = (*PostgresStore)(nil)
