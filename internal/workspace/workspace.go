// Package workspace stores the per-agency records that count against tier
// capacity: client dashboards, their access grants, tracked keywords, target
// keywords and keyword research requests.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rankwell/rankwell/internal/idgen"
)

var (
	ErrClientNotFound = errors.New("workspace: client not found")
)

// Client is a dashboard. Dashboards are reachable through user grants, not
// through AgencyID; AgencyID records who created it.
type Client struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agencyId"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ResearchLookup is a keyword research request that consumed credits.
type ResearchLookup struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agencyId"`
	UserID    string    `json:"userId"`
	Keywords  []string  `json:"keywords"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}

// Provisioner creates the agency's own default dashboard on sign-up.
type Provisioner struct {
	store Store
}

// NewProvisioner creates a provisioner backed by store.
func NewProvisioner(store Store) *Provisioner {
	return &Provisioner{store: store}
}

// CreateDefaultDashboard creates a dashboard for the owner and grants access.
func (p *Provisioner) CreateDefaultDashboard(ctx context.Context, agencyID, ownerUserID, name string) (string, error) {
	c := &Client{
		ID:        idgen.WithPrefix("cli_"),
		AgencyID:  agencyID,
		Name:      name,
		CreatedBy: ownerUserID,
		CreatedAt: time.Now(),
	}
	if err := p.store.CreateClient(ctx, c); err != nil {
		return "", fmt.Errorf("create default dashboard: %w", err)
	}
	if err := p.store.GrantAccess(ctx, ownerUserID, c.ID); err != nil {
		return "", fmt.Errorf("grant default dashboard: %w", err)
	}
	return c.ID, nil
}
