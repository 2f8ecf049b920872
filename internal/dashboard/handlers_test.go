package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankwell/rankwell/internal/addons"
	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/auth"
	"github.com/rankwell/rankwell/internal/credits"
	"github.com/rankwell/rankwell/internal/entitlement"
	"github.com/rankwell/rankwell/internal/tiers"
	"github.com/rankwell/rankwell/internal/usage"
	"github.com/rankwell/rankwell/internal/workspace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	agencies  *agency.MemoryStore
	workspace *workspace.MemoryStore
	addOns    *addons.MemoryStore
	router    *gin.Engine
	identity  auth.Identity
}

func setupTestHandler(t *testing.T, tier tiers.ID) *testEnv {
	t.Helper()
	e := &testEnv{
		agencies:  agency.NewMemoryStore(),
		workspace: workspace.NewMemoryStore(),
		addOns:    addons.NewMemoryStore(),
		identity:  auth.Identity{UserID: "usr_owner", Role: agency.RoleAgency},
	}
	require.NoError(t, e.agencies.Create(context.Background(), &agency.Agency{
		ID:           "agc_1",
		Name:         "Acme SEO",
		OwnerUserID:  "usr_owner",
		Tier:         string(tier),
		BillingClass: agency.BillingCharge,
		CreatedAt:    time.Now(),
	}))

	clock := credits.NewClock(e.agencies)
	builder := entitlement.NewBuilder(e.agencies,
		usage.NewAggregator(e.agencies, e.workspace),
		addons.NewReader(e.addOns), clock)
	h := NewHandler(e.workspace, e.agencies, builder, clock)

	e.router = gin.New()
	v1 := e.router.Group("/v1", func(c *gin.Context) {
		c.Set(auth.ContextKeyIdentity, e.identity)
		c.Next()
	})
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1)
	return e
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func (e *testEnv) dashboard(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.workspace.CreateClient(ctx, &workspace.Client{ID: id, AgencyID: "agc_1", Name: id}))
	require.NoError(t, e.workspace.GrantAccess(ctx, "usr_owner", id))
}

func TestCreateClient_UpToTierLimit(t *testing.T) {
	e := setupTestHandler(t, tiers.Solo)

	for i := 0; i < 3; i++ {
		w, resp := e.post(t, "/v1/clients", gin.H{"name": "Site", "domain": "https://www.Example.com/"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		client := resp["client"].(map[string]interface{})
		assert.Equal(t, "agc_1", client["agencyId"])
		assert.Equal(t, "example.com", client["domain"])
	}

	w, resp := e.post(t, "/v1/clients", gin.H{"name": "One too many"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "limit_exceeded", resp["error"])
	assert.Equal(t, entitlement.CodeDashboardLimit, resp["code"])
	assert.Contains(t, resp["message"], "up to 3 dashboards")
}

func TestCreateClient_AddOnRaisesLimit(t *testing.T) {
	e := setupTestHandler(t, tiers.Free)
	e.dashboard(t, "cli_1")

	w, _ := e.post(t, "/v1/clients", gin.H{"name": "Second"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, e.addOns.Create(context.Background(), &addons.AddOn{
		ID: "add_1", AgencyID: "agc_1", Variant: addons.Dashboards5, Status: addons.StatusActive,
	}))
	w, _ = e.post(t, "/v1/clients", gin.H{"name": "Second"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateClient_Validation(t *testing.T) {
	e := setupTestHandler(t, tiers.Solo)

	w, resp := e.post(t, "/v1/clients", gin.H{"name": "Site", "domain": "not a domain"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", resp["error"])

	w, _ = e.post(t, "/v1/clients", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateClient_AdminNamesAgency(t *testing.T) {
	e := setupTestHandler(t, tiers.Free)
	e.dashboard(t, "cli_1")
	e.identity = auth.Identity{UserID: "usr_admin", Role: agency.RoleSuperAdmin}

	w, _ := e.post(t, "/v1/clients", gin.H{"name": "Comp"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := e.post(t, "/v1/clients", gin.H{"name": "Comp", "agencyId": "agc_1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := resp["client"].(map[string]interface{})["id"].(string)

	ids, err := e.workspace.ClientIDsForUsers(context.Background(), []string{"usr_owner"})
	require.NoError(t, err)
	assert.Contains(t, ids, id, "owner is granted the new dashboard")

	w, _ = e.post(t, "/v1/clients", gin.H{"name": "Comp", "agencyId": "agc_missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddKeywords_PerDashboardLimit(t *testing.T) {
	e := setupTestHandler(t, tiers.Starter)
	e.dashboard(t, "cli_1")

	batch := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		batch = append(batch, "keyword "+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	w, resp := e.post(t, "/v1/clients/cli_1/keywords", gin.H{"keywords": batch})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(50), resp["added"])

	w, resp = e.post(t, "/v1/clients/cli_1/keywords", gin.H{"keywords": []string{"one more"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, entitlement.CodeDashboardKeywordLimit, resp["code"])

	// Target keywords are counted separately.
	w, _ = e.post(t, "/v1/clients/cli_1/target-keywords", gin.H{"keywords": []string{"one more"}})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAddKeywords_NormalizesBatch(t *testing.T) {
	e := setupTestHandler(t, tiers.Solo)
	e.dashboard(t, "cli_1")

	w, resp := e.post(t, "/v1/clients/cli_1/keywords", gin.H{"keywords": []string{"SEO  Tools", "seo tools", " "}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(1), resp["requested"])
	assert.Equal(t, float64(1), resp["added"])

	w, resp = e.post(t, "/v1/clients/cli_1/keywords", gin.H{"keywords": []string{"  "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", resp["error"])
}

func TestAddKeywords_ForeignDashboardIsNotFound(t *testing.T) {
	e := setupTestHandler(t, tiers.Solo)
	require.NoError(t, e.workspace.CreateClient(context.Background(), &workspace.Client{ID: "cli_other", AgencyID: "agc_2"}))

	w, _ := e.post(t, "/v1/clients/cli_other/keywords", gin.H{"keywords": []string{"x"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.post(t, "/v1/clients/cli_missing/keywords", gin.H{"keywords": []string{"x"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddTeamMember(t *testing.T) {
	e := setupTestHandler(t, tiers.Solo)

	w, _ := e.post(t, "/v1/team/members", gin.H{"userId": "usr_a"})
	require.Equal(t, http.StatusCreated, w.Code)

	// Solo has a single seat.
	w, resp := e.post(t, "/v1/team/members", gin.H{"userId": "usr_b"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, entitlement.CodeTeamLimit, resp["code"])
}

func TestAddTeamMember_AlreadyMember(t *testing.T) {
	e := setupTestHandler(t, tiers.Growth)

	w, _ := e.post(t, "/v1/team/members", gin.H{"userId": "usr_a"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, resp := e.post(t, "/v1/team/members", gin.H{"userId": "usr_a"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_member", resp["error"])
}

func TestAddTeamMember_RejectsAgencyOwners(t *testing.T) {
	e := setupTestHandler(t, tiers.Growth)
	ctx := context.Background()
	require.NoError(t, e.agencies.Create(ctx, &agency.Agency{
		ID: "agc_2", Name: "Rival", OwnerUserID: "usr_rival", BillingClass: agency.BillingCharge, Tier: string(tiers.Growth),
	}))
	require.NoError(t, e.workspace.CreateClient(ctx, &workspace.Client{ID: "cli_rival", AgencyID: "agc_2", Name: "rival"}))
	require.NoError(t, e.workspace.GrantAccess(ctx, "usr_rival", "cli_rival"))

	w, resp := e.post(t, "/v1/team/members", gin.H{"userId": "usr_rival"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_member", resp["error"])

	// The rival's dashboards stay out of reach.
	w, _ = e.post(t, "/v1/clients/cli_rival/keywords", gin.H{"keywords": []string{"bakery near me"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Owners can't take a seat on their own agency either.
	w, _ = e.post(t, "/v1/team/members", gin.H{"userId": "usr_owner"})
	assert.Equal(t, http.StatusConflict, w.Code)

	ids, err := e.agencies.ListMemberIDs(ctx, "agc_1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCreateLookup_ConsumesCredits(t *testing.T) {
	e := setupTestHandler(t, tiers.Free)

	w, resp := e.post(t, "/v1/research/lookups", gin.H{"keywords": []string{"a", "b", "c"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	balance := resp["credits"].(map[string]interface{})
	assert.Equal(t, float64(3), balance["used"])
	assert.Equal(t, float64(5), balance["limit"])

	used, resetAt, err := e.agencies.GetCredits(context.Background(), "agc_1")
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	assert.NotNil(t, resetAt)
	assert.Len(t, e.workspace.Lookups("agc_1"), 1)

	// Free has 5 credits; 3 more would exceed it.
	w, resp = e.post(t, "/v1/research/lookups", gin.H{"keywords": []string{"d", "e", "f"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, entitlement.CodeCreditLimit, resp["code"])
	assert.Contains(t, resp["message"], "3 of 5")
	assert.Len(t, e.workspace.Lookups("agc_1"), 1, "denied lookup is not recorded")
}

func TestCreateLookup_AdminIsNotCharged(t *testing.T) {
	e := setupTestHandler(t, tiers.Free)
	e.identity = auth.Identity{UserID: "usr_admin", Role: agency.RoleAdmin}

	batch := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		batch = append(batch, string(rune('a'+i)))
	}
	w, resp := e.post(t, "/v1/research/lookups", gin.H{"keywords": batch})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, resp["credits"])

	used, _, err := e.agencies.GetCredits(context.Background(), "agc_1")
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

// A no-charge agency without a trial end date is treated as expired.
func TestTrialExpiredDeniesWrites(t *testing.T) {
	e := setupTestHandler(t, tiers.Free)
	require.NoError(t, e.agencies.SetSubscription(context.Background(), "agc_1", agency.Subscription{
		Tier:         string(tiers.Free),
		BillingClass: agency.BillingNoCharge,
	}))

	w, resp := e.post(t, "/v1/clients", gin.H{"name": "Site"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "trial_expired", resp["error"])
	assert.Equal(t, entitlement.TrialExpiredMessage, resp["message"])
}

func TestNoAgencyMembership(t *testing.T) {
	e := setupTestHandler(t, tiers.Solo)
	e.identity = auth.Identity{UserID: "usr_stranger", Role: agency.RoleAgency}

	w, resp := e.post(t, "/v1/clients", gin.H{"name": "Site"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, entitlement.CodeNoAgency, resp["code"])
}

func TestMarkIncluded_ExcludedFromCount(t *testing.T) {
	e := setupTestHandler(t, tiers.Free)
	e.dashboard(t, "cli_1")
	e.identity = auth.Identity{UserID: "usr_admin", Role: agency.RoleSuperAdmin}

	w, _ := e.post(t, "/v1/admin/agencies/agc_1/included-clients", gin.H{"clientId": "cli_1"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.post(t, "/v1/admin/agencies/agc_missing/included-clients", gin.H{"clientId": "cli_1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Complimentary dashboards don't use up the Free tier's single slot.
	e.identity = auth.Identity{UserID: "usr_owner", Role: agency.RoleAgency}
	w, _ = e.post(t, "/v1/clients", gin.H{"name": "Paid"})
	assert.Equal(t, http.StatusCreated, w.Code)
}
