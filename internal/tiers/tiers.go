// Package tiers holds the static subscription tier catalogue and the limits
// each tier grants a tenant.
package tiers

import (
	"encoding/json"
	"errors"
	"strconv"
)

// ErrUnknownTier is returned by strict lookups for identifiers outside the catalogue.
var ErrUnknownTier = errors.New("tiers: unknown tier")

// ID identifies a tier. The set is closed; see catalog.go.
type ID string

// Class separates agencies (many client dashboards) from single businesses.
type Class string

const (
	ClassAgency   Class = "agency"
	ClassBusiness Class = "business"
)

// Cadence is how often tracked data is refreshed.
type Cadence string

const (
	CadenceDaily      Cadence = "daily"
	CadenceEvery3Days Cadence = "every_3_days"
	CadenceWeekly     Cadence = "weekly"
	CadenceMonthly    Cadence = "monthly"
)

// Limit is a capacity ceiling. Unlimited means no ceiling applies.
type Limit int

// Unlimited is the sentinel for "no limit" (-1 keeps it storable as an integer column).
const Unlimited Limit = -1

// IsUnlimited reports whether the limit has no ceiling.
func (l Limit) IsUnlimited() bool { return l < 0 }

// Allows reports whether a total of n stays within the limit.
func (l Limit) Allows(n int) bool {
	return l.IsUnlimited() || n <= int(l)
}

// Plus raises a finite limit by n; unlimited stays unlimited.
func (l Limit) Plus(n int) Limit {
	if l.IsUnlimited() {
		return l
	}
	return l + Limit(n)
}

// Times multiplies two finite limits; either side unlimited yields Unlimited.
func (l Limit) Times(o Limit) Limit {
	if l.IsUnlimited() || o.IsUnlimited() {
		return Unlimited
	}
	return l * o
}

func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.Itoa(int(l))
}

// MarshalJSON renders unlimited as null so clients never see the sentinel.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsUnlimited() {
		return []byte("null"), nil
	}
	return json.Marshal(int(l))
}

// UnmarshalJSON accepts null as Unlimited.
func (l *Limit) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = Unlimited
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*l = Limit(n)
	return nil
}

// Features are on/off capabilities bundled with a tier.
type Features struct {
	WhiteLabel   bool `json:"whiteLabel"`
	ClientPortal bool `json:"clientPortal"`
}

// Definition describes what a tier grants. Definitions are immutable.
type Definition struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Class Class  `json:"class"`

	MaxDashboards Limit `json:"maxDashboards"`
	// KeywordsPerDashboard applies to agency-class tiers.
	KeywordsPerDashboard Limit `json:"keywordsPerDashboard"`
	// KeywordsTotal applies to business-class tiers.
	KeywordsTotal  Limit `json:"keywordsTotal"`
	MonthlyCredits int   `json:"monthlyCredits"`
	MaxTeamUsers   Limit `json:"maxTeamUsers"`

	RankRefresh Cadence  `json:"rankRefresh"`
	AIRefresh   Cadence  `json:"aiRefresh"`
	Features    Features `json:"features"`

	// MonthlyPriceCents is nil for custom-priced tiers.
	MonthlyPriceCents *int `json:"monthlyPriceCents"`
}

// IsBusiness reports whether keyword capacity is a flat account total.
func (d *Definition) IsBusiness() bool { return d.Class == ClassBusiness }
