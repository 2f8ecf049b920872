// Package billingsync keeps agency tiers, billing classes and add-ons in step
// with Stripe subscriptions. It is the only writer of those fields.
package billingsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"

	"github.com/rankwell/rankwell/internal/addons"
	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/idgen"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/tiers"
)

var (
	ErrUnmappedPrice    = errors.New("billingsync: subscription has no price mapped to a tier")
	ErrCustomerMismatch = errors.New("billingsync: subscription belongs to another customer")
	ErrNoAgency         = errors.New("billingsync: no agency for subscription")
)

// Price metadata keys that mark a price as an add-on.
const (
	MetadataAddOnKind   = "addon_kind"
	MetadataAddOnOption = "addon_option"
	MetadataAgencyID    = "agency_id"
)

// Result describes what a sync wrote.
type Result struct {
	AgencyID     string              `json:"agencyId"`
	Tier         string              `json:"tier"`
	BillingClass agency.BillingClass `json:"billingClass"`
	AddOns       int                 `json:"addOns"`
	Skipped      string              `json:"skipped,omitempty"`
}

// Syncer applies subscriptions to agency records.
type Syncer struct {
	agencies agency.Store
	addOns   addons.Store
	prices   map[string]tiers.ID
	now      func() time.Time
}

// NewSyncer creates a syncer. prices maps price lookup keys (or price ids)
// to tiers.
func NewSyncer(agencies agency.Store, addOns addons.Store, prices map[string]tiers.ID) *Syncer {
	return &Syncer{agencies: agencies, addOns: addOns, prices: prices, now: time.Now}
}

// Apply syncs a subscription to the agency that owns its customer. A
// subscription whose customer is unknown falls back to the agency_id in its
// metadata.
func (s *Syncer) Apply(ctx context.Context, sub *stripe.Subscription) (*Result, error) {
	a, err := s.agencyFor(ctx, sub)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, sub)
}

// ApplyTo syncs a subscription to a known agency, as when a customer activates
// a plan from inside the app.
func (s *Syncer) ApplyTo(ctx context.Context, agencyID string, sub *stripe.Subscription) (*Result, error) {
	a, err := s.agencies.Get(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if a.StripeCustomerID != "" && a.StripeCustomerID != customerID(sub) {
		return nil, ErrCustomerMismatch
	}
	return s.apply(ctx, a, sub)
}

func (s *Syncer) apply(ctx context.Context, a *agency.Agency, sub *stripe.Subscription) (*Result, error) {
	ctx = logging.WithAgency(ctx, a.ID)
	res := &Result{AgencyID: a.ID, Tier: a.Tier, BillingClass: a.BillingClass}

	// Manually invoiced agencies are managed by platform admins.
	if a.BillingClass == agency.BillingManualInvoice {
		res.Skipped = "manual_invoice"
		return res, nil
	}

	update := agency.Subscription{
		StripeCustomerID:     customerID(sub),
		StripeSubscriptionID: sub.ID,
	}
	var rows []*addons.AddOn
	switch Classify(sub.Status) {
	case agency.BillingCharge:
		tier, err := s.tierFor(sub)
		if err != nil {
			return nil, err
		}
		update.Tier = string(tier)
		update.BillingClass = agency.BillingCharge
		rows = s.addOnRows(ctx, a.ID, sub)
	case agency.BillingNoCharge:
		update.BillingClass = agency.BillingNoCharge
	default:
		res.Skipped = string(sub.Status)
		return res, nil
	}

	// Two independent writes. If the add-on replace fails the caller sees the
	// error (the webhook answers 500), Stripe redelivers the event, and the
	// replay converges because both writes are full replacements.
	if err := s.agencies.SetSubscription(ctx, a.ID, update); err != nil {
		return nil, fmt.Errorf("set subscription: %w", err)
	}
	if err := s.addOns.ReplaceActive(ctx, a.ID, rows); err != nil {
		return nil, fmt.Errorf("replace add-ons: %w", err)
	}

	logging.L(ctx).Info("subscription synced",
		"subscription_id", sub.ID,
		"status", sub.Status,
		"tier", update.Tier,
		"billing_class", update.BillingClass,
		"addons", len(rows),
	)
	res.Tier = update.Tier
	res.BillingClass = update.BillingClass
	res.AddOns = len(rows)
	return res, nil
}

// Classify maps a subscription status to a billing class. Statuses that
// don't settle the question (incomplete) return the empty class.
func Classify(status stripe.SubscriptionStatus) agency.BillingClass {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		return agency.BillingCharge
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusPaused:
		return agency.BillingNoCharge
	}
	return ""
}

func (s *Syncer) agencyFor(ctx context.Context, sub *stripe.Subscription) (*agency.Agency, error) {
	if id := customerID(sub); id != "" {
		a, err := s.agencies.FindByStripeCustomer(ctx, id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, agency.ErrAgencyNotFound) {
			return nil, fmt.Errorf("find agency by customer: %w", err)
		}
	}
	if id := strings.TrimSpace(sub.Metadata[MetadataAgencyID]); id != "" {
		a, err := s.agencies.Get(ctx, id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, agency.ErrAgencyNotFound) {
			return nil, fmt.Errorf("get agency: %w", err)
		}
	}
	return nil, ErrNoAgency
}

// tierFor returns the tier of the first item whose price is mapped.
func (s *Syncer) tierFor(sub *stripe.Subscription) (tiers.ID, error) {
	for _, item := range items(sub) {
		if item.Price == nil {
			continue
		}
		if id, ok := s.prices[item.Price.LookupKey]; ok && item.Price.LookupKey != "" {
			return id, nil
		}
		if id, ok := s.prices[item.Price.ID]; ok {
			return id, nil
		}
	}
	return "", ErrUnmappedPrice
}

// addOnRows turns add-on priced items into ledger rows, one per unit of
// quantity. Items with an unknown add-on option are logged and skipped.
func (s *Syncer) addOnRows(ctx context.Context, agencyID string, sub *stripe.Subscription) []*addons.AddOn {
	var rows []*addons.AddOn
	for _, item := range items(sub) {
		if item.Price == nil || item.Price.Metadata[MetadataAddOnKind] == "" {
			continue
		}
		v, err := addons.ParseVariant(item.Price.Metadata[MetadataAddOnKind], item.Price.Metadata[MetadataAddOnOption])
		if err != nil {
			logging.L(ctx).Warn("skipping add-on price", "price_id", item.Price.ID, "error", err)
			continue
		}
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		for i := int64(0); i < qty; i++ {
			rows = append(rows, &addons.AddOn{
				ID:        idgen.WithPrefix("add_"),
				AgencyID:  agencyID,
				Variant:   v,
				Status:    addons.StatusActive,
				CreatedAt: s.now(),
			})
		}
	}
	return rows
}

func items(sub *stripe.Subscription) []*stripe.SubscriptionItem {
	if sub.Items == nil {
		return nil
	}
	return sub.Items.Data
}

func customerID(sub *stripe.Subscription) string {
	if sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}
