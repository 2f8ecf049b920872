// Package addons models purchased capacity add-ons and folds them into
// numeric modifiers on top of a tier's base limits.
package addons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownOption = errors.New("addons: unknown add-on option")
	ErrAddOnNotFound = errors.New("addons: not found")
)

// Kind is the add-on product line.
type Kind string

const (
	KindKeywordLookups  Kind = "extra_keyword_lookups"
	KindDashboards      Kind = "extra_dashboards"
	KindKeywordsTracked Kind = "extra_keywords_tracked"
)

// Variant is one purchasable (kind, option) pair. The set is closed: the only
// values are the exported ones below, and ParseVariant rejects anything else.
type Variant struct {
	kind   Kind
	option string
	units  int
}

var (
	Lookups100 = Variant{KindKeywordLookups, "100", 100}
	Lookups300 = Variant{KindKeywordLookups, "300", 300}
	Lookups500 = Variant{KindKeywordLookups, "500", 500}

	Dashboards5  = Variant{KindDashboards, "5_slots", 5}
	Dashboards10 = Variant{KindDashboards, "10_slots", 10}
	Dashboards25 = Variant{KindDashboards, "25_slots", 25}

	Keywords100 = Variant{KindKeywordsTracked, "100", 100}
	Keywords250 = Variant{KindKeywordsTracked, "250", 250}
	Keywords500 = Variant{KindKeywordsTracked, "500", 500}
)

var variants = []Variant{
	Lookups100, Lookups300, Lookups500,
	Dashboards5, Dashboards10, Dashboards25,
	Keywords100, Keywords250, Keywords500,
}

// ParseVariant maps stored strings back onto the closed variant set.
func ParseVariant(kind, option string) (Variant, error) {
	for _, v := range variants {
		if string(v.kind) == kind && v.option == option {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: %s/%s", ErrUnknownOption, kind, option)
}

// Variants lists every purchasable variant.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	return out
}

func (v Variant) Kind() Kind     { return v.kind }
func (v Variant) Option() string { return v.option }
func (v Variant) Units() int     { return v.units }
func (v Variant) IsZero() bool   { return v.kind == "" }
func (v Variant) String() string { return string(v.kind) + ":" + v.option }

// Modifiers returns the capacity this variant adds.
func (v Variant) Modifiers() Modifiers {
	switch v.kind {
	case KindKeywordLookups:
		return Modifiers{ExtraCredits: v.units}
	case KindDashboards:
		return Modifiers{ExtraDashboards: v.units}
	case KindKeywordsTracked:
		return Modifiers{ExtraKeywords: v.units}
	}
	return Modifiers{}
}

func (v Variant) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   Kind   `json:"kind"`
		Option string `json:"option"`
		Units  int    `json:"units"`
	}{v.kind, v.option, v.units})
}

// Status of a purchased add-on.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// AddOn is one purchased add-on row. An agency may hold several of the same variant.
type AddOn struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agencyId"`
	Variant   Variant   `json:"variant"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Modifiers is the numeric effect of a set of add-ons.
type Modifiers struct {
	ExtraDashboards int `json:"extraDashboards"`
	ExtraCredits    int `json:"extraCredits"`
	ExtraKeywords   int `json:"extraKeywords"`
}

// Add combines two modifier sets. It is associative and commutative.
func (m Modifiers) Add(o Modifiers) Modifiers {
	return Modifiers{
		ExtraDashboards: m.ExtraDashboards + o.ExtraDashboards,
		ExtraCredits:    m.ExtraCredits + o.ExtraCredits,
		ExtraKeywords:   m.ExtraKeywords + o.ExtraKeywords,
	}
}

// Fold sums the modifiers of every active add-on.
func Fold(rows []*AddOn) Modifiers {
	var m Modifiers
	for _, a := range rows {
		if a.Status != StatusActive {
			continue
		}
		m = m.Add(a.Variant.Modifiers())
	}
	return m
}

// Reader converts an agency's stored add-ons into modifiers.
type Reader struct {
	store Store
}

// NewReader creates an add-on ledger reader.
func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Modifiers reads and folds the agency's add-ons. Any read failure, including
// a row whose option is outside the variant set, fails the whole read.
func (r *Reader) Modifiers(ctx context.Context, agencyID string) (Modifiers, error) {
	rows, err := r.store.ListByAgency(ctx, agencyID)
	if err != nil {
		return Modifiers{}, fmt.Errorf("list add-ons: %w", err)
	}
	return Fold(rows), nil
}
