package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisioner_CreateDefaultDashboard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := NewProvisioner(s).CreateDefaultDashboard(ctx, "agc_1", "usr_owner", "Acme SEO")
	require.NoError(t, err)
	assert.Contains(t, id, "cli_")

	c, err := s.GetClient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme SEO", c.Name)
	assert.Equal(t, "usr_owner", c.CreatedBy)

	ids, err := s.ClientIDsForUsers(ctx, []string{"usr_owner"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestMemoryStore_AccessAcrossUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"cli_a", "cli_b", "cli_c"} {
		require.NoError(t, s.CreateClient(ctx, &Client{ID: id, AgencyID: "agc_1"}))
	}
	require.NoError(t, s.GrantAccess(ctx, "usr_owner", "cli_a"))
	require.NoError(t, s.GrantAccess(ctx, "usr_owner", "cli_b"))
	require.NoError(t, s.GrantAccess(ctx, "usr_member", "cli_b"))
	require.NoError(t, s.GrantAccess(ctx, "usr_member", "cli_c"))
	assert.ErrorIs(t, s.GrantAccess(ctx, "usr_owner", "cli_missing"), ErrClientNotFound)

	ids, err := s.ClientIDsForUsers(ctx, []string{"usr_owner", "usr_member"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cli_a", "cli_b", "cli_c"}, ids)

	ids, err = s.ClientIDsForUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryStore_PhrasesAreSetsPerDashboard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateClient(ctx, &Client{ID: "cli_a"}))
	require.NoError(t, s.CreateClient(ctx, &Client{ID: "cli_b"}))

	n, err := s.AddKeywords(ctx, "cli_a", []string{"seo", "ppc"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.AddKeywords(ctx, "cli_a", []string{"seo", "links"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "existing phrase is not added twice")

	n, err = s.AddTargetKeywords(ctx, "cli_a", []string{"seo"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.AddKeywords(ctx, "cli_missing", []string{"x"})
	assert.ErrorIs(t, err, ErrClientNotFound)

	counts, err := s.KeywordCounts(ctx, []string{"cli_a", "cli_b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cli_a": 3}, counts)

	targets, err := s.TargetKeywordCounts(ctx, []string{"cli_a", "cli_b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cli_a": 1}, targets)
}

func TestMemoryStore_IncludedAndLookups(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateClient(ctx, &Client{ID: "cli_a", AgencyID: "agc_1"}))

	require.NoError(t, s.MarkIncluded(ctx, "agc_1", "cli_a"))
	assert.ErrorIs(t, s.MarkIncluded(ctx, "agc_1", "cli_missing"), ErrClientNotFound)
	ids, err := s.IncludedClientIDs(ctx, "agc_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cli_a"}, ids)

	kw := []string{"seo"}
	require.NoError(t, s.CreateLookup(ctx, &ResearchLookup{ID: "lkp_1", AgencyID: "agc_1", Keywords: kw, Credits: 1}))
	kw[0] = "mutated"
	got := s.Lookups("agc_1")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"seo"}, got[0].Keywords)
	assert.Empty(t, s.Lookups("agc_2"))
}
