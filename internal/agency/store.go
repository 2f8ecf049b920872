package agency

import (
	"context"
	"time"
)

// Store persists agencies and their team memberships.
type Store interface {
	Create(ctx context.Context, a *Agency) error
	Get(ctx context.Context, id string) (*Agency, error)
	// FindByUser returns the agency the user owns or belongs to, or ErrNoMembership.
	FindByUser(ctx context.Context, userID string) (*Agency, error)
	FindByStripeCustomer(ctx context.Context, customerID string) (*Agency, error)
	UpdateProfile(ctx context.Context, id, name string) error
	SetDefaultClient(ctx context.Context, id, clientID string) error

	// SetSubscription is reserved for billing sync.
	SetSubscription(ctx context.Context, id string, sub Subscription) error

	GetCredits(ctx context.Context, id string) (used int, resetAt *time.Time, err error)
	SetCredits(ctx context.Context, id string, used int, resetAt time.Time) error

	// AddMember returns ErrAlreadyMember when the user already belongs to or
	// owns any agency.
	AddMember(ctx context.Context, agencyID, userID string) error
	ListMemberIDs(ctx context.Context, agencyID string) ([]string, error)
}
