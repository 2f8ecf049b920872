package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rankwell/rankwell/internal/addons"
	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/credits"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/metrics"
	"github.com/rankwell/rankwell/internal/tiers"
	"github.com/rankwell/rankwell/internal/traces"
	"github.com/rankwell/rankwell/internal/usage"
)

// AgencyFinder resolves the agency a user belongs to.
type AgencyFinder interface {
	FindByUser(ctx context.Context, userID string) (*agency.Agency, error)
}

// UsageCounter counts current consumption.
type UsageCounter interface {
	Aggregate(ctx context.Context, a *agency.Agency) (*usage.Usage, error)
}

// AddOnReader folds the agency's active add-ons.
type AddOnReader interface {
	Modifiers(ctx context.Context, agencyID string) (addons.Modifiers, error)
}

// Builder assembles snapshots.
type Builder struct {
	agencies AgencyFinder
	usage    UsageCounter
	addOns   AddOnReader
	clock    *credits.Clock
}

// NewBuilder creates a snapshot builder.
func NewBuilder(agencies AgencyFinder, counter UsageCounter, addOns AddOnReader, clock *credits.Clock) *Builder {
	return &Builder{agencies: agencies, usage: counter, addOns: addOns, clock: clock}
}

// Build computes the caller's snapshot. Any storage failure fails the whole
// build; a partial snapshot is never returned.
func (b *Builder) Build(ctx context.Context, id Identity) (*Snapshot, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "entitlement.build", traces.UserID(id.UserID))
	defer span.End()

	snap, err := b.build(ctx, id)
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotErrorsTotal.Inc()
		traces.Fail(span, err)
		logging.L(ctx).Error("entitlement snapshot failed", "user_id", id.UserID, "error", err)
		return nil, err
	}
	if snap.AgencyID != "" {
		span.SetAttributes(traces.AgencyID(snap.AgencyID), traces.TierID(string(snap.Tier.ID)))
	}
	return snap, nil
}

func (b *Builder) build(ctx context.Context, id Identity) (*Snapshot, error) {
	now := b.clock.Now()
	if id.Role.IsPlatformAdmin() {
		return adminSnapshot(id, now), nil
	}

	ag, err := b.agencies.FindByUser(ctx, id.UserID)
	if errors.Is(err, agency.ErrNoMembership) {
		return noAgencySnapshot(id, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve agency: %w", err)
	}
	ctx = logging.WithAgency(ctx, ag.ID)

	def, err := ResolveTier(ag)
	if err != nil {
		return nil, err
	}

	// The clock's read-then-write stays sequential; the remaining reads are independent.
	balance, err := b.clock.Refresh(ctx, ag.ID, credits.Balance{Used: ag.CreditsUsed, ResetAt: ag.CreditsResetAt})
	if err != nil {
		return nil, err
	}

	var (
		u    *usage.Usage
		mods addons.Modifiers
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		u, err = b.usage.Aggregate(gctx, ag)
		if err != nil {
			return fmt.Errorf("aggregate usage: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		mods, err = b.addOns.Modifiers(gctx, ag.ID)
		if err != nil {
			return fmt.Errorf("read add-ons: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	maxDashboards, keywordCap, creditsLimit := effectiveLimits(def, mods)
	return &Snapshot{
		Kind:                       KindTenant,
		UserID:                     id.UserID,
		Role:                       id.Role,
		AgencyID:                   ag.ID,
		Tier:                       def,
		BillingClass:               ag.BillingClass,
		TrialEndsAt:                ag.TrialEndsAt,
		TrialExpired:               ag.TrialExpired(now),
		DashboardCount:             u.DashboardCount,
		KeywordsTotal:              u.KeywordsTotal,
		KeywordsPerDashboard:       u.KeywordsPerDashboard,
		TargetKeywordsTotal:        u.TargetKeywordsTotal,
		TargetKeywordsPerDashboard: u.TargetKeywordsPerDashboard,
		TeamMembers:                u.TeamMembers,
		CreditsUsed:                balance.Used,
		CreditsLimit:               creditsLimit,
		CreditsResetAt:             balance.ResetAt,
		AddOns:                     mods,
		EffectiveMaxDashboards:     maxDashboards,
		EffectiveKeywordCap:        keywordCap,
		BuiltAt:                    now,
	}, nil
}

// ResolveTier picks the agency's tier definition. A no-charge agency with no
// tier gets the free tier; every other missing or unknown tier is an error.
func ResolveTier(ag *agency.Agency) (*tiers.Definition, error) {
	if ag.Tier == "" {
		if ag.BillingClass == agency.BillingNoCharge {
			def, _ := tiers.Resolve(string(tiers.Free))
			return def, nil
		}
		return nil, fmt.Errorf("%w: agency %s (%s) has no tier", ErrTierNotConfigured, ag.ID, ag.BillingClass)
	}
	def, ok := tiers.Resolve(ag.Tier)
	if !ok {
		return nil, fmt.Errorf("%w: agency %s has unknown tier %q", ErrTierNotConfigured, ag.ID, ag.Tier)
	}
	return def, nil
}
