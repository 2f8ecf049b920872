package addons

import "context"

// Store persists purchased add-ons.
type Store interface {
	Create(ctx context.Context, a *AddOn) error
	ListByAgency(ctx context.Context, agencyID string) ([]*AddOn, error)
	Cancel(ctx context.Context, id string) error
	// ReplaceActive cancels the agency's active add-ons and inserts rows in their place.
	ReplaceActive(ctx context.Context, agencyID string, rows []*AddOn) error
}
