// Package credits maintains the monthly research-credit counter of an agency.
//
// The counter and its reset boundary are the only shared mutable state the
// entitlement engine touches. No lock is taken: two requests racing across a
// period boundary may both reset, which leaves the counter at zero either way
// but can drop credits consumed between the two writes.
package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/metrics"
	"github.com/rankwell/rankwell/internal/traces"
)

// Store reads and writes the credit counter.
type Store interface {
	GetCredits(ctx context.Context, agencyID string) (used int, resetAt *time.Time, err error)
	SetCredits(ctx context.Context, agencyID string, used int, resetAt time.Time) error
}

// Balance is the counter and the instant the current period ends.
type Balance struct {
	Used    int        `json:"used"`
	ResetAt *time.Time `json:"resetAt"`
}

// EndOfMonth returns the last millisecond (23:59:59.999) of t's month in loc.
func EndOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc).Add(-time.Millisecond)
}

// Clock decides when a credit period has elapsed.
type Clock struct {
	store Store
	now   func() time.Time
	loc   *time.Location
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithLocation sets the zone month boundaries are computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Clock) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewClock creates a credit clock. Months are UTC unless WithLocation is given.
func NewClock(store Store, opts ...Option) *Clock {
	c := &Clock{store: store, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	return c.now()
}

// Elapsed reports whether the stored period is over. A missing boundary
// counts as elapsed.
func (c *Clock) Elapsed(b Balance) bool {
	return b.ResetAt == nil || c.now().After(*b.ResetAt)
}

// Refresh resets b when its period has elapsed, persisting the zeroed counter
// and the end of the current month. Otherwise b is returned unchanged and
// nothing is written.
func (c *Clock) Refresh(ctx context.Context, agencyID string, b Balance) (Balance, error) {
	if !c.Elapsed(b) {
		return b, nil
	}
	resetAt := EndOfMonth(c.now(), c.loc)
	if err := c.store.SetCredits(ctx, agencyID, 0, resetAt); err != nil {
		return Balance{}, fmt.Errorf("reset credits: %w", err)
	}
	metrics.CreditResetsTotal.Inc()
	if logging.AgencyID(ctx) != agencyID {
		ctx = logging.WithAgency(ctx, agencyID)
	}
	logging.L(ctx).Info("credit period reset", "previous_used", b.Used, "next_reset_at", resetAt)
	return Balance{Used: 0, ResetAt: &resetAt}, nil
}

// Load reads the stored balance and refreshes it.
func (c *Clock) Load(ctx context.Context, agencyID string) (Balance, error) {
	used, resetAt, err := c.store.GetCredits(ctx, agencyID)
	if err != nil {
		return Balance{}, fmt.Errorf("read credits: %w", err)
	}
	return c.Refresh(ctx, agencyID, Balance{Used: used, ResetAt: resetAt})
}

// Consume adds n to the agency's counter, resetting first if the stored
// period has elapsed. Availability is the caller's job: call
// entitlement.Snapshot.HasResearchCredits before the operation and Consume
// after it succeeds.
func (c *Clock) Consume(ctx context.Context, agencyID string, n int) (Balance, error) {
	ctx, span := traces.StartSpan(ctx, "credits.consume", traces.AgencyID(agencyID), traces.Credits(n))
	defer span.End()

	b, err := c.Load(ctx, agencyID)
	if err != nil {
		traces.Fail(span, err)
		return Balance{}, err
	}
	if n <= 0 {
		return b, nil
	}

	b.Used += n
	if err := c.store.SetCredits(ctx, agencyID, b.Used, *b.ResetAt); err != nil {
		err = fmt.Errorf("consume credits: %w", err)
		traces.Fail(span, err)
		return Balance{}, err
	}
	metrics.CreditsConsumedTotal.Add(float64(n))
	return b, nil
}
