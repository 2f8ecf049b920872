// Package agency holds tenant records: the billable agency, its billing
// state, credit counters and team memberships.
package agency

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAgencyNotFound = errors.New("agency: not found")
	ErrNoMembership   = errors.New("agency: user has no agency membership")
	ErrAlreadyMember  = errors.New("agency: user is already a member")
)

// BillingClass is how the agency is billed.
type BillingClass string

const (
	BillingCharge        BillingClass = "charge"
	BillingNoCharge      BillingClass = "no_charge"
	BillingManualInvoice BillingClass = "manual_invoice"
)

// Valid reports whether the class is one of the known values.
func (b BillingClass) Valid() bool {
	switch b {
	case BillingCharge, BillingNoCharge, BillingManualInvoice:
		return true
	}
	return false
}

// Role is a user's platform role.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleAgency     Role = "agency"
	RoleTeamMember Role = "team_member"
)

// IsPlatformAdmin reports whether the role bypasses tenant limits.
func (r Role) IsPlatformAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// Agency is a tenant. Tier and BillingClass are written only by billing sync.
type Agency struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	OwnerUserID     string  `json:"ownerUserId"`
	DefaultClientID *string `json:"defaultClientId,omitempty"`

	// Tier is the raw identifier from billing; empty means unset.
	Tier         string       `json:"tier,omitempty"`
	BillingClass BillingClass `json:"billingClass"`
	TrialEndsAt  *time.Time   `json:"trialEndsAt,omitempty"`

	CreditsUsed    int        `json:"creditsUsed"`
	CreditsResetAt *time.Time `json:"creditsResetAt,omitempty"`

	StripeCustomerID     string `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string `json:"stripeSubscriptionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TrialExpired reports whether a no-charge agency's grace period is over.
// A no-charge agency without a trial end date counts as expired.
func (a *Agency) TrialExpired(now time.Time) bool {
	if a.BillingClass != BillingNoCharge {
		return false
	}
	return a.TrialEndsAt == nil || !a.TrialEndsAt.After(now)
}

// Subscription is the billing-owned slice of an agency record.
type Subscription struct {
	Tier                 string
	BillingClass         BillingClass
	StripeCustomerID     string
	StripeSubscriptionID string
}
