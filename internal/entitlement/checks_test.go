package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankwell/rankwell/internal/addons"
	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/tiers"
)

func tenant(t *testing.T, tier tiers.ID, mods addons.Modifiers) *Snapshot {
	t.Helper()
	def, ok := tiers.Resolve(string(tier))
	require.True(t, ok)
	maxDash, kwCap, credits := effectiveLimits(def, mods)
	return &Snapshot{
		Kind:                       KindTenant,
		AgencyID:                   "agc_1",
		Tier:                       def,
		BillingClass:               agency.BillingCharge,
		KeywordsPerDashboard:       map[string]int{},
		TargetKeywordsPerDashboard: map[string]int{},
		CreditsLimit:               credits,
		AddOns:                     mods,
		EffectiveMaxDashboards:     maxDash,
		EffectiveKeywordCap:        kwCap,
	}
}

func TestEffectiveLimits(t *testing.T) {
	solo, _ := tiers.Resolve("solo")
	maxDash, kwCap, credits := effectiveLimits(solo, addons.Modifiers{})
	assert.Equal(t, tiers.Limit(3), maxDash)
	assert.Equal(t, tiers.Limit(75), kwCap)
	assert.Equal(t, 25, credits)

	maxDash, kwCap, credits = effectiveLimits(solo, addons.Modifiers{ExtraDashboards: 5, ExtraKeywords: 100, ExtraCredits: 300})
	assert.Equal(t, tiers.Limit(8), maxDash)
	assert.Equal(t, tiers.Limit(8*25+100), kwCap)
	assert.Equal(t, 325, credits)

	// Dashboard add-ons do nothing on an unlimited base, and there is no account-wide keyword cap.
	ent, _ := tiers.Resolve("enterprise")
	maxDash, kwCap, _ = effectiveLimits(ent, addons.Modifiers{ExtraDashboards: 25, ExtraKeywords: 500})
	assert.True(t, maxDash.IsUnlimited())
	assert.True(t, kwCap.IsUnlimited())

	lite, _ := tiers.Resolve("business_lite")
	_, kwCap, _ = effectiveLimits(lite, addons.Modifiers{ExtraKeywords: 100})
	assert.Equal(t, tiers.Limit(150), kwCap)
}

func TestEffectiveLimits_AddOnFoldingIsOrderIndependent(t *testing.T) {
	starter, _ := tiers.Resolve("starter")
	twoFives := addons.Fold([]*addons.AddOn{
		{Variant: addons.Dashboards5, Status: addons.StatusActive},
		{Variant: addons.Dashboards5, Status: addons.StatusActive},
	})
	oneTen := addons.Fold([]*addons.AddOn{{Variant: addons.Dashboards10, Status: addons.StatusActive}})

	a, _, _ := effectiveLimits(starter, twoFives)
	b, _, _ := effectiveLimits(starter, oneTen)
	assert.Equal(t, a, b)
	assert.Equal(t, tiers.Limit(20), a)
}

func TestCanAddDashboard_Boundary(t *testing.T) {
	for _, id := range []tiers.ID{tiers.Free, tiers.Solo, tiers.Starter, tiers.Growth, tiers.Scale, tiers.BusinessLite, tiers.BusinessPro} {
		for _, extra := range []int{0, 5, 25} {
			s := tenant(t, id, addons.Modifiers{ExtraDashboards: extra})
			limit := int(s.EffectiveMaxDashboards)

			s.DashboardCount = limit - 1
			assert.True(t, s.CanAddDashboard().Allowed, "%s+%d at limit-1", id, extra)

			s.DashboardCount = limit
			v := s.CanAddDashboard()
			assert.False(t, v.Allowed, "%s+%d at limit", id, extra)
			assert.Equal(t, CodeDashboardLimit, v.Code)
		}
	}

	s := tenant(t, tiers.Enterprise, addons.Modifiers{})
	s.DashboardCount = 10_000
	assert.True(t, s.CanAddDashboard().Allowed)
}

func TestCanAddKeywords_BusinessCapIsAuthoritative(t *testing.T) {
	s := tenant(t, tiers.BusinessLite, addons.Modifiers{ExtraKeywords: 100})
	require.Equal(t, tiers.Limit(150), s.EffectiveKeywordCap)
	s.KeywordsTotal = 149
	s.KeywordsPerDashboard = map[string]int{"cli_1": 149}

	assert.True(t, s.CanAddKeywords("cli_1", 1).Allowed)

	v := s.CanAddKeywords("cli_1", 2)
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeKeywordLimit, v.Code)
	assert.Contains(t, v.Message, "150")
	assert.Contains(t, v.Message, "149")
}

func TestCanAddKeywords_AgencyPerDashboardLimit(t *testing.T) {
	s := tenant(t, tiers.Starter, addons.Modifiers{})
	s.KeywordsTotal = 50
	s.KeywordsPerDashboard = map[string]int{"cli_full": 50, "cli_empty": 0}

	v := s.CanAddKeywords("cli_full", 1)
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeDashboardKeywordLimit, v.Code)
	assert.Contains(t, v.Message, "50")

	assert.True(t, s.CanAddKeywords("cli_empty", 50).Allowed)
	assert.False(t, s.CanAddKeywords("cli_empty", 51).Allowed)
}

func TestCanAddKeywords_AccountCapWinsFirst(t *testing.T) {
	s := tenant(t, tiers.Solo, addons.Modifiers{})
	s.KeywordsTotal = 74
	s.KeywordsPerDashboard = map[string]int{"cli_1": 25, "cli_2": 25, "cli_3": 24}

	// Both limits would be hit; the account-wide one is reported.
	v := s.CanAddKeywords("cli_1", 2)
	assert.Equal(t, CodeKeywordLimit, v.Code)
}

func TestCanAddKeywords_UnlimitedDashboardsStillPerDashboard(t *testing.T) {
	s := tenant(t, tiers.Enterprise, addons.Modifiers{})
	s.KeywordsTotal = 1_000_000
	s.KeywordsPerDashboard = map[string]int{"cli_1": 250}

	v := s.CanAddKeywords("cli_1", 1)
	assert.Equal(t, CodeDashboardKeywordLimit, v.Code)
	assert.True(t, s.CanAddKeywords("cli_2", 250).Allowed)
}

func TestCanAddTargetKeywords_IndependentCounts(t *testing.T) {
	s := tenant(t, tiers.Solo, addons.Modifiers{})
	s.KeywordsTotal = 75
	s.KeywordsPerDashboard = map[string]int{"cli_1": 25}
	s.TargetKeywordsPerDashboard = map[string]int{"cli_1": 0}

	assert.False(t, s.CanAddKeywords("cli_1", 1).Allowed)
	assert.True(t, s.CanAddTargetKeywords("cli_1", 25).Allowed)

	s.TargetKeywordsPerDashboard["cli_1"] = 25
	s.TargetKeywordsTotal = 25
	v := s.CanAddTargetKeywords("cli_1", 1)
	assert.Equal(t, CodeDashboardTargetKeywordLimit, v.Code)
	assert.Contains(t, v.Message, "target keywords")
}

func TestCanAddTeamMember(t *testing.T) {
	s := tenant(t, tiers.Starter, addons.Modifiers{})
	s.TeamMembers = 2
	assert.True(t, s.CanAddTeamMember().Allowed)

	s.TeamMembers = 3
	v := s.CanAddTeamMember()
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeTeamLimit, v.Code)
	assert.Contains(t, v.Message, "up to 3 team members")

	s = tenant(t, tiers.Scale, addons.Modifiers{})
	s.TeamMembers = 500
	assert.True(t, s.CanAddTeamMember().Allowed)
}

func TestHasResearchCredits(t *testing.T) {
	s := tenant(t, tiers.Solo, addons.Modifiers{ExtraCredits: 100})
	resetAt := time.Date(2026, 5, 31, 23, 59, 59, 999e6, time.UTC)
	s.CreditsUsed = 120
	s.CreditsResetAt = &resetAt

	assert.True(t, s.HasResearchCredits(5).Allowed)

	v := s.HasResearchCredits(6)
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeCreditLimit, v.Code)
	assert.Contains(t, v.Message, "120 of 125")
	assert.Contains(t, v.Message, "May 31, 2026")
}

func TestTrialExpiredDeniesEverything(t *testing.T) {
	s := tenant(t, tiers.Free, addons.Modifiers{})
	s.TrialExpired = true

	for name, v := range map[string]Verdict{
		"dashboard": s.CanAddDashboard(),
		"keywords":  s.CanAddKeywords("cli_1", 1),
		"target":    s.CanAddTargetKeywords("cli_1", 1),
		"team":      s.CanAddTeamMember(),
		"credits":   s.HasResearchCredits(1),
	} {
		assert.False(t, v.Allowed, name)
		assert.Equal(t, CodeTrialExpired, v.Code, name)
		assert.Equal(t, TrialExpiredMessage, v.Message, name)
	}
}

func TestAdminAndNilAllowEverything(t *testing.T) {
	admin := adminSnapshot(Identity{UserID: "usr_admin", Role: agency.RoleSuperAdmin}, time.Now())
	admin.DashboardCount = 1 << 30
	admin.CreditsUsed = tiers.AdminCreditCeiling * 2

	var none *Snapshot
	for _, s := range []*Snapshot{admin, none} {
		assert.True(t, s.CanAddDashboard().Allowed)
		assert.True(t, s.CanAddKeywords("cli_any", 1_000_000).Allowed)
		assert.True(t, s.CanAddTargetKeywords("cli_any", 1_000_000).Allowed)
		assert.True(t, s.CanAddTeamMember().Allowed)
		assert.True(t, s.HasResearchCredits(1_000_000).Allowed)
	}
}

func TestNoAgencyMembershipDenies(t *testing.T) {
	s := noAgencySnapshot(Identity{UserID: "usr_x", Role: agency.RoleAgency}, time.Now())
	v := s.CanAddDashboard()
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeNoAgency, v.Code)
	assert.False(t, s.HasResearchCredits(0).Allowed)
}

// An agency on Solo with one 100-lookup add-on, 3 dashboards, 40 keywords and
// 20 credits used.
func TestSoloScenario(t *testing.T) {
	s := tenant(t, tiers.Solo, addons.Lookups100.Modifiers())
	s.DashboardCount = 3
	s.KeywordsTotal = 40
	s.KeywordsPerDashboard = map[string]int{"cli_a": 20, "cli_b": 15, "cli_x": 5}
	s.CreditsUsed = 20

	assert.Equal(t, 125, s.CreditsLimit)
	assert.True(t, s.HasResearchCredits(10).Allowed)

	v := s.CanAddDashboard()
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Message, "up to 3 dashboards")

	assert.True(t, s.CanAddKeywords("cli_x", 5).Allowed)
	v = s.CanAddKeywords("cli_a", 6)
	assert.False(t, v.Allowed)
	assert.Equal(t, CodeDashboardKeywordLimit, v.Code)
	assert.Contains(t, v.Message, "per dashboard")
}
