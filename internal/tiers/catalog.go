package tiers

import (
	"fmt"
	"strings"
)

const (
	Free       ID = "free"
	Solo       ID = "solo"
	Starter    ID = "starter"
	Growth     ID = "growth"
	Scale      ID = "scale"
	Enterprise ID = "enterprise"

	BusinessLite ID = "business_lite"
	BusinessPro  ID = "business_pro"

	// Admin is never stored on an agency; it labels the platform-admin bypass.
	Admin ID = "admin"
)

// AdminCreditCeiling is a safety valve for platform admins, not a business limit.
const AdminCreditCeiling = 1_000_000

func cents(n int) *int { return &n }

// catalog is the hardcoded tier catalogue.
var catalog = map[ID]Definition{
	Free: {
		ID: Free, Name: "Free", Class: ClassAgency,
		MaxDashboards: 1, KeywordsPerDashboard: 10, KeywordsTotal: Unlimited,
		MonthlyCredits: 5, MaxTeamUsers: 1,
		RankRefresh: CadenceWeekly, AIRefresh: CadenceMonthly,
		MonthlyPriceCents: cents(0),
	},
	Solo: {
		ID: Solo, Name: "Solo", Class: ClassAgency,
		MaxDashboards: 3, KeywordsPerDashboard: 25, KeywordsTotal: Unlimited,
		MonthlyCredits: 25, MaxTeamUsers: 1,
		RankRefresh: CadenceEvery3Days, AIRefresh: CadenceWeekly,
		MonthlyPriceCents: cents(2900),
	},
	Starter: {
		ID: Starter, Name: "Starter", Class: ClassAgency,
		MaxDashboards: 10, KeywordsPerDashboard: 50, KeywordsTotal: Unlimited,
		MonthlyCredits: 100, MaxTeamUsers: 3,
		RankRefresh: CadenceDaily, AIRefresh: CadenceWeekly,
		Features:          Features{ClientPortal: true},
		MonthlyPriceCents: cents(7900),
	},
	Growth: {
		ID: Growth, Name: "Growth", Class: ClassAgency,
		MaxDashboards: 25, KeywordsPerDashboard: 100, KeywordsTotal: Unlimited,
		MonthlyCredits: 300, MaxTeamUsers: 10,
		RankRefresh: CadenceDaily, AIRefresh: CadenceEvery3Days,
		Features:          Features{WhiteLabel: true, ClientPortal: true},
		MonthlyPriceCents: cents(19900),
	},
	Scale: {
		ID: Scale, Name: "Scale", Class: ClassAgency,
		MaxDashboards: 50, KeywordsPerDashboard: 150, KeywordsTotal: Unlimited,
		MonthlyCredits: 750, MaxTeamUsers: Unlimited,
		RankRefresh: CadenceDaily, AIRefresh: CadenceDaily,
		Features:          Features{WhiteLabel: true, ClientPortal: true},
		MonthlyPriceCents: cents(39900),
	},
	Enterprise: {
		ID: Enterprise, Name: "Enterprise", Class: ClassAgency,
		MaxDashboards: Unlimited, KeywordsPerDashboard: 250, KeywordsTotal: Unlimited,
		MonthlyCredits: 2000, MaxTeamUsers: Unlimited,
		RankRefresh: CadenceDaily, AIRefresh: CadenceDaily,
		Features: Features{WhiteLabel: true, ClientPortal: true},
	},
	BusinessLite: {
		ID: BusinessLite, Name: "Business Lite", Class: ClassBusiness,
		MaxDashboards: 1, KeywordsPerDashboard: Unlimited, KeywordsTotal: 50,
		MonthlyCredits: 25, MaxTeamUsers: 2,
		RankRefresh: CadenceWeekly, AIRefresh: CadenceMonthly,
		MonthlyPriceCents: cents(1900),
	},
	BusinessPro: {
		ID: BusinessPro, Name: "Business Pro", Class: ClassBusiness,
		MaxDashboards: 3, KeywordsPerDashboard: Unlimited, KeywordsTotal: 200,
		MonthlyCredits: 100, MaxTeamUsers: 5,
		RankRefresh: CadenceDaily, AIRefresh: CadenceWeekly,
		Features:          Features{ClientPortal: true},
		MonthlyPriceCents: cents(4900),
	},
}

// order is the display order for All.
var order = []ID{Free, Solo, Starter, Growth, Scale, Enterprise, BusinessLite, BusinessPro}

// aliases folds identifiers written by older billing integrations.
var aliases = map[string]ID{
	"basic":        Starter,
	"agency":       Growth,
	"pro":          Scale,
	"professional": Scale,
	"business":     BusinessLite,
	"custom":       Enterprise,
	"trial":        Free,
}

// Normalize canonicalises a raw identifier: case, surrounding whitespace,
// separators and legacy aliases. The result may still be unknown.
func Normalize(raw string) ID {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if id, ok := aliases[s]; ok {
		return id
	}
	return ID(s)
}

// Resolve returns the definition for a raw identifier, or nil and false when it
// is not in the catalogue. It never fails.
func Resolve(raw string) (*Definition, bool) {
	def, ok := catalog[Normalize(raw)]
	if !ok {
		return nil, false
	}
	return &def, true
}

// Lookup is the strict form of Resolve for code paths that require a tier.
func Lookup(raw string) (*Definition, error) {
	def, ok := Resolve(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
	return def, nil
}

// Valid reports whether raw resolves to a catalogue entry.
func Valid(raw string) bool {
	_, ok := Resolve(raw)
	return ok
}

// All returns every definition in display order.
func All() []Definition {
	out := make([]Definition, 0, len(order))
	for _, id := range order {
		out = append(out, catalog[id])
	}
	return out
}

// AdminDefinition is the implicit definition handed to platform admins.
func AdminDefinition() *Definition {
	return &Definition{
		ID:                   Admin,
		Name:                 "Platform admin",
		Class:                ClassAgency,
		MaxDashboards:        Unlimited,
		KeywordsPerDashboard: Unlimited,
		KeywordsTotal:        Unlimited,
		MonthlyCredits:       AdminCreditCeiling,
		MaxTeamUsers:         Unlimited,
		RankRefresh:          CadenceDaily,
		AIRefresh:            CadenceDaily,
		Features:             Features{WhiteLabel: true, ClientPortal: true},
	}
}
