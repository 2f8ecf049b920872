// Package entitlement decides what an agency may do right now. A Snapshot is
// built fresh from storage on every request and never cached; the checks on
// it are pure functions returning a Verdict.
package entitlement

import (
	"errors"
	"time"

	"github.com/rankwell/rankwell/internal/addons"
	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/auth"
	"github.com/rankwell/rankwell/internal/tiers"
)

var (
	// ErrTierNotConfigured means a billed agency has no tier or one outside
	// the catalog. It is never defaulted away.
	ErrTierNotConfigured = errors.New("entitlement: agency tier not configured")
	ErrUnauthenticated   = errors.New("entitlement: no authenticated identity")
)

// Identity is the acting user.
type Identity = auth.Identity

// Kind tells the three snapshot shapes apart.
type Kind string

const (
	KindTenant             Kind = "tenant"
	KindAdminUnrestricted  Kind = "admin_unrestricted"
	KindNoAgencyMembership Kind = "no_agency_membership"
)

// Snapshot is the entitlement state of one agency at one instant.
type Snapshot struct {
	Kind     Kind        `json:"kind"`
	UserID   string      `json:"userId"`
	Role     agency.Role `json:"role"`
	AgencyID string      `json:"agencyId,omitempty"`

	Tier         *tiers.Definition   `json:"tier"`
	BillingClass agency.BillingClass `json:"billingClass,omitempty"`
	TrialEndsAt  *time.Time          `json:"trialEndsAt,omitempty"`
	TrialExpired bool                `json:"trialExpired"`

	DashboardCount             int            `json:"dashboardCount"`
	KeywordsTotal              int            `json:"keywordsTotal"`
	KeywordsPerDashboard       map[string]int `json:"keywordsPerDashboard"`
	TargetKeywordsTotal        int            `json:"targetKeywordsTotal"`
	TargetKeywordsPerDashboard map[string]int `json:"targetKeywordsPerDashboard"`
	TeamMembers                int            `json:"teamMembers"`

	CreditsUsed    int        `json:"creditsUsed"`
	CreditsLimit   int        `json:"creditsLimit"`
	CreditsResetAt *time.Time `json:"creditsResetAt,omitempty"`

	AddOns                 addons.Modifiers `json:"addOns"`
	EffectiveMaxDashboards tiers.Limit      `json:"effectiveMaxDashboards"`
	// EffectiveKeywordCap is the account-wide cap; Unlimited means none.
	EffectiveKeywordCap tiers.Limit `json:"effectiveKeywordCap"`

	BuiltAt time.Time `json:"builtAt"`
}

// Accessible reports whether the dashboard is reachable by the agency's users.
func (s *Snapshot) Accessible(clientID string) bool {
	if s.Kind == KindAdminUnrestricted {
		return true
	}
	_, ok := s.KeywordsPerDashboard[clientID]
	return ok
}

func adminSnapshot(id Identity, now time.Time) *Snapshot {
	return &Snapshot{
		Kind:                       KindAdminUnrestricted,
		UserID:                     id.UserID,
		Role:                       id.Role,
		Tier:                       tiers.AdminDefinition(),
		KeywordsPerDashboard:       map[string]int{},
		TargetKeywordsPerDashboard: map[string]int{},
		CreditsLimit:               tiers.AdminCreditCeiling,
		EffectiveMaxDashboards:     tiers.Unlimited,
		EffectiveKeywordCap:        tiers.Unlimited,
		BuiltAt:                    now,
	}
}

func noAgencySnapshot(id Identity, now time.Time) *Snapshot {
	return &Snapshot{
		Kind:                       KindNoAgencyMembership,
		UserID:                     id.UserID,
		Role:                       id.Role,
		KeywordsPerDashboard:       map[string]int{},
		TargetKeywordsPerDashboard: map[string]int{},
		BuiltAt:                    now,
	}
}

// effectiveLimits folds add-on modifiers into the tier's base limits.
func effectiveLimits(def *tiers.Definition, mods addons.Modifiers) (maxDashboards, keywordCap tiers.Limit, creditsLimit int) {
	maxDashboards = def.MaxDashboards
	if !maxDashboards.IsUnlimited() {
		maxDashboards = maxDashboards.Plus(mods.ExtraDashboards)
	}

	creditsLimit = def.MonthlyCredits + mods.ExtraCredits

	switch {
	case def.IsBusiness():
		keywordCap = def.KeywordsTotal.Plus(mods.ExtraKeywords)
	case !maxDashboards.IsUnlimited() && !def.KeywordsPerDashboard.IsUnlimited():
		keywordCap = maxDashboards.Times(def.KeywordsPerDashboard).Plus(mods.ExtraKeywords)
	default:
		keywordCap = tiers.Unlimited
	}
	return maxDashboards, keywordCap, creditsLimit
}
