package workspace

import "context"

// Store persists dashboards and the rows counted against them.
type Store interface {
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)
	GrantAccess(ctx context.Context, userID, clientID string) error
	// MarkIncluded flags a dashboard as complimentary for the agency.
	MarkIncluded(ctx context.Context, agencyID, clientID string) error

	// ClientIDsForUsers returns the distinct dashboards any of the users can access.
	ClientIDsForUsers(ctx context.Context, userIDs []string) ([]string, error)
	IncludedClientIDs(ctx context.Context, agencyID string) ([]string, error)
	// KeywordCounts returns tracked keyword counts keyed by client. Clients
	// without keywords may be absent.
	KeywordCounts(ctx context.Context, clientIDs []string) (map[string]int, error)
	TargetKeywordCounts(ctx context.Context, clientIDs []string) (map[string]int, error)

	// AddKeywords inserts phrases not already tracked and returns how many were new.
	AddKeywords(ctx context.Context, clientID string, phrases []string) (int, error)
	AddTargetKeywords(ctx context.Context, clientID string, phrases []string) (int, error)

	CreateLookup(ctx context.Context, l *ResearchLookup) error
}
