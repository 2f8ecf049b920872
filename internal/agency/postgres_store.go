package agency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists agencies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed agency store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const agencyColumns = `id, name, owner_user_id, default_client_id, tier, billing_class, trial_ends_at,
	credits_used, credits_reset_at, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, a *Agency) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agencies (`+agencyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.Name, a.OwnerUserID, a.DefaultClientID, nullString(a.Tier), string(a.BillingClass),
		a.TrialEndsAt, a.CreditsUsed, a.CreditsResetAt,
		nullString(a.StripeCustomerID), nullString(a.StripeSubscriptionID), a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Agency, error) {
	return p.scanAgency(p.db.QueryRowContext(ctx,
		`SELECT `+agencyColumns+` FROM agencies WHERE id = $1`, id), ErrAgencyNotFound)
}

// FindByUser prefers ownership over team membership.
func (p *PostgresStore) FindByUser(ctx context.Context, userID string) (*Agency, error) {
	return p.scanAgency(p.db.QueryRowContext(ctx, `
		SELECT `+agencyColumns+` FROM agencies
		WHERE owner_user_id = $1
		   OR id = (SELECT agency_id FROM agency_members WHERE user_id = $1)
		ORDER BY (owner_user_id = $1) DESC
		LIMIT 1`, userID), ErrNoMembership)
}

func (p *PostgresStore) FindByStripeCustomer(ctx context.Context, customerID string) (*Agency, error) {
	return p.scanAgency(p.db.QueryRowContext(ctx,
		`SELECT `+agencyColumns+` FROM agencies WHERE stripe_customer_id = $1`, customerID), ErrAgencyNotFound)
}

func (p *PostgresStore) UpdateProfile(ctx context.Context, id, name string) error {
	return p.exec(ctx, `UPDATE agencies SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
}

func (p *PostgresStore) SetDefaultClient(ctx context.Context, id, clientID string) error {
	return p.exec(ctx, `UPDATE agencies SET default_client_id = $1, updated_at = NOW() WHERE id = $2`, clientID, id)
}

func (p *PostgresStore) SetSubscription(ctx context.Context, id string, sub Subscription) error {
	return p.exec(ctx, `
		UPDATE agencies SET tier = $1, billing_class = $2,
			stripe_customer_id = COALESCE($3, stripe_customer_id),
			stripe_subscription_id = COALESCE($4, stripe_subscription_id),
			updated_at = NOW()
		WHERE id = $5`,
		nullString(sub.Tier), string(sub.BillingClass),
		nullString(sub.StripeCustomerID), nullString(sub.StripeSubscriptionID), id,
	)
}

func (p *PostgresStore) GetCredits(ctx context.Context, id string) (int, *time.Time, error) {
	var (
		used    int
		resetAt sql.NullTime
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT credits_used, credits_reset_at FROM agencies WHERE id = $1`, id).Scan(&used, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrAgencyNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	if resetAt.Valid {
		return used, &resetAt.Time, nil
	}
	return used, nil, nil
}

func (p *PostgresStore) SetCredits(ctx context.Context, id string, used int, resetAt time.Time) error {
	return p.exec(ctx, `
		UPDATE agencies SET credits_used = $1, credits_reset_at = $2, updated_at = NOW()
		WHERE id = $3`, used, resetAt, id)
}

// AddMember refuses users who own an agency, including agencyID's own owner.
func (p *PostgresStore) AddMember(ctx context.Context, agencyID, userID string) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO agency_members (agency_id, user_id, created_at)
		SELECT $1::text, $2::text, NOW()
		WHERE NOT EXISTS (SELECT 1 FROM agencies WHERE owner_user_id = $2::text)`, agencyID, userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return ErrAlreadyMember
			case "23503":
				return ErrAgencyNotFound
			}
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyMember
	}
	return nil
}

func (p *PostgresStore) ListMemberIDs(ctx context.Context, agencyID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT user_id FROM agency_members WHERE agency_id = $1 ORDER BY user_id`, agencyID)
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

func (p *PostgresStore) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAgencyNotFound
	}
	return nil
}

func (p *PostgresStore) scanAgency(row *sql.Row, notFound error) (*Agency, error) {
	var (
		a                           Agency
		defaultClient, tier         sql.NullString
		customerID, subscriptionID  sql.NullString
		billingClass                string
		trialEndsAt, creditsResetAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.OwnerUserID, &defaultClient, &tier, &billingClass, &trialEndsAt,
		&a.CreditsUsed, &creditsResetAt, &customerID, &subscriptionID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	if defaultClient.Valid {
		a.DefaultClientID = &defaultClient.String
	}
	if trialEndsAt.Valid {
		a.TrialEndsAt = &trialEndsAt.Time
	}
	if creditsResetAt.Valid {
		a.CreditsResetAt = &creditsResetAt.Time
	}
	a.Tier = tier.String
	a.BillingClass = BillingClass(billingClass)
	a.StripeCustomerID = customerID.String
	a.StripeSubscriptionID = subscriptionID.String
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*PostgresStore)(nil)
