package trialgate

import (
	"context"
	"errors"
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
	"github.com/rankwell/rankwell/internal/usage"
	"github.com/rankwell/rankwell/internal/workspace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setIdentity stands in for the JWT middleware.
func setIdentity(role agency.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextKeyIdentity, auth.Identity{UserID: "usr_owner", Role: role})
		c.Next()
	}
}

type router struct {
	*gin.Engine
	reached int
}

func newRouter(t *testing.T, trialEnd *time.Time, role agency.Role) *router {
	t.Helper()
	agencies := agency.NewMemoryStore()
	require.NoError(t, agencies.Create(context.Background(), &agency.Agency{
		ID:           "agc_1",
		OwnerUserID:  "usr_owner",
		BillingClass: agency.BillingNoCharge,
		TrialEndsAt:  trialEnd,
	}))
	builder := entitlement.NewBuilder(agencies,
		usage.NewAggregator(agencies, workspace.NewMemoryStore()),
		addons.NewReader(addons.NewMemoryStore()),
		credits.NewClock(agencies))
	return mount(New(builder, nil), role)
}

func mount(g *Gate, role agency.Role) *router {
	rt := &router{Engine: gin.New()}
	v1 := rt.Group("/v1", setIdentity(role), g.Middleware())
	handler := func(c *gin.Context) {
		rt.reached++
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
	v1.GET("/agencies/me", handler)
	v1.PATCH("/agencies/me", handler)
	v1.POST("/clients", handler)
	v1.GET("/tiers/:id", handler)
	v1.POST("/research/lookups", handler)
	return rt
}

func (rt *router) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	rt.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestGate_ExpiredTrialBlocksOutsideAllowlist(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	rt := newRouter(t, &yesterday, agency.RoleAgency)

	w := rt.do(http.MethodPost, "/v1/clients")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"TRIAL_EXPIRED"`)
	assert.Contains(t, w.Body.String(), `"error":"trial_expired"`)
	assert.Equal(t, 0, rt.reached, "blocked request must not reach the handler")

	assert.Equal(t, http.StatusOK, rt.do(http.MethodGet, "/v1/agencies/me").Code)
	assert.Equal(t, http.StatusOK, rt.do(http.MethodPatch, "/v1/agencies/me").Code)
	assert.Equal(t, http.StatusOK, rt.do(http.MethodGet, "/v1/tiers/solo").Code)
	assert.Equal(t, 3, rt.reached)
}

func TestGate_ActiveTrialAllowsEverything(t *testing.T) {
	tomorrow := time.Now().Add(24 * time.Hour)
	rt := newRouter(t, &tomorrow, agency.RoleAgency)

	assert.Equal(t, http.StatusOK, rt.do(http.MethodPost, "/v1/clients").Code)
	assert.Equal(t, http.StatusOK, rt.do(http.MethodGet, "/v1/agencies/me").Code)
}

func TestGate_OnlyAgencyRole(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	for _, role := range []agency.Role{agency.RoleTeamMember, agency.RoleAdmin, agency.RoleSuperAdmin} {
		rt := newRouter(t, &yesterday, role)
		assert.Equal(t, http.StatusOK, rt.do(http.MethodPost, "/v1/clients").Code, role)
	}
}

type failingSource struct{}

func (failingSource) ForRequest(*gin.Context) (*entitlement.Snapshot, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGate_SnapshotFailureIsNotATrialBlock(t *testing.T) {
	rt := mount(New(failingSource{}, nil), agency.RoleAgency)

	w := rt.do(http.MethodGet, "/v1/agencies/me")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "entitlements_unavailable")
	assert.NotContains(t, w.Body.String(), "TRIAL_EXPIRED")
	assert.Equal(t, 0, rt.reached)
}

func TestAllowed_PrefixMatchesWholeSegments(t *testing.T) {
	g := New(nil, nil)
	assert.True(t, g.Allowed(http.MethodGet, "/v1/tiers"))
	assert.True(t, g.Allowed(http.MethodGet, "/v1/tiers/growth"))
	assert.False(t, g.Allowed(http.MethodGet, "/v1/tiersx"))
	assert.False(t, g.Allowed(http.MethodPost, "/v1/agencies/me"))
	assert.True(t, g.Allowed(http.MethodPost, "/v1/subscription/activate"))
	assert.False(t, g.Allowed(http.MethodPost, "/v1/subscription"))
}
