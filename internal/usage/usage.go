// Package usage counts what an agency currently consumes. Every figure is an
// exact count at query time.
package usage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rankwell/rankwell/internal/agency"
)

// Members lists the users that belong to an agency besides its owner.
type Members interface {
	ListMemberIDs(ctx context.Context, agencyID string) ([]string, error)
}

// Clients answers dashboard and keyword questions.
type Clients interface {
	ClientIDsForUsers(ctx context.Context, userIDs []string) ([]string, error)
	IncludedClientIDs(ctx context.Context, agencyID string) ([]string, error)
	KeywordCounts(ctx context.Context, clientIDs []string) (map[string]int, error)
	TargetKeywordCounts(ctx context.Context, clientIDs []string) (map[string]int, error)
}

// Usage is the agency's consumption at one instant.
type Usage struct {
	// DashboardCount excludes the default dashboard and included dashboards.
	DashboardCount int `json:"dashboardCount"`

	// Keyword figures cover every accessible dashboard, excluded or not.
	KeywordsTotal              int            `json:"keywordsTotal"`
	KeywordsPerDashboard       map[string]int `json:"keywordsPerDashboard"`
	TargetKeywordsTotal        int            `json:"targetKeywordsTotal"`
	TargetKeywordsPerDashboard map[string]int `json:"targetKeywordsPerDashboard"`

	TeamMembers int `json:"teamMembers"`

	// AccessibleClientIDs is every dashboard reachable by the agency's users.
	AccessibleClientIDs []string `json:"-"`
}

// Aggregator computes Usage from storage.
type Aggregator struct {
	members Members
	clients Clients
}

// NewAggregator creates an aggregator over the given stores.
func NewAggregator(members Members, clients Clients) *Aggregator {
	return &Aggregator{members: members, clients: clients}
}

// Aggregate counts the agency's dashboards, keywords and team members.
// An agency with no accessible dashboards gets zero dashboard and keyword
// counts, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, ag *agency.Agency) (*Usage, error) {
	memberIDs, err := a.members.ListMemberIDs(ctx, ag.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	users := make([]string, 0, len(memberIDs)+1)
	users = append(users, ag.OwnerUserID)
	for _, id := range memberIDs {
		if id != ag.OwnerUserID {
			users = append(users, id)
		}
	}

	clientIDs, err := a.clients.ClientIDsForUsers(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("list accessible dashboards: %w", err)
	}

	u := &Usage{
		KeywordsPerDashboard:       make(map[string]int),
		TargetKeywordsPerDashboard: make(map[string]int),
		TeamMembers:                len(memberIDs),
		AccessibleClientIDs:        clientIDs,
	}
	if len(clientIDs) == 0 {
		return u, nil
	}

	var (
		included            []string
		keywords, targeting map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := a.clients.IncludedClientIDs(gctx, ag.ID)
		if err != nil {
			return fmt.Errorf("list included dashboards: %w", err)
		}
		included = ids
		return nil
	})
	g.Go(func() error {
		counts, err := a.clients.KeywordCounts(gctx, clientIDs)
		if err != nil {
			return fmt.Errorf("count keywords: %w", err)
		}
		keywords = counts
		return nil
	})
	g.Go(func() error {
		counts, err := a.clients.TargetKeywordCounts(gctx, clientIDs)
		if err != nil {
			return fmt.Errorf("count target keywords: %w", err)
		}
		targeting = counts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(included)+1)
	for _, id := range included {
		excluded[id] = true
	}
	if ag.DefaultClientID != nil {
		excluded[*ag.DefaultClientID] = true
	}

	for _, id := range clientIDs {
		if !excluded[id] {
			u.DashboardCount++
		}
		u.KeywordsPerDashboard[id] = keywords[id]
		u.KeywordsTotal += keywords[id]
		u.TargetKeywordsPerDashboard[id] = targeting[id]
		u.TargetKeywordsTotal += targeting[id]
	}
	return u, nil
}
