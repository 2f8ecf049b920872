// Package trialgate blocks agency users whose free trial has ended from
// everything except the routes they need to pick a plan.
package trialgate

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/auth"
	"github.com/rankwell/rankwell/internal/entitlement"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/metrics"
)

// Route is an allowlisted method and path prefix.
type Route struct {
	Method string
	Prefix string
}

// DefaultAllowlist keeps profile, subscription and plan routes reachable.
var DefaultAllowlist = []Route{
	{http.MethodGet, "/v1/agencies/me"},
	{http.MethodPatch, "/v1/agencies/me"},
	{http.MethodGet, "/v1/subscription"},
	{http.MethodPost, "/v1/subscription/activate"},
	{http.MethodGet, "/v1/entitlements"},
	{http.MethodGet, "/v1/tiers"},
}

// SnapshotSource builds the request's entitlement snapshot.
type SnapshotSource interface {
	ForRequest(c *gin.Context) (*entitlement.Snapshot, error)
}

// Gate is the trial gate middleware.
type Gate struct {
	snapshots SnapshotSource
	allow     []Route
}

// New creates a gate. A nil allowlist uses DefaultAllowlist.
func New(snapshots SnapshotSource, allow []Route) *Gate {
	if allow == nil {
		allow = DefaultAllowlist
	}
	return &Gate{snapshots: snapshots, allow: allow}
}

// Allowed reports whether the request may pass an expired trial.
func (g *Gate) Allowed(method, path string) bool {
	for _, r := range g.allow {
		if r.Method == method && hasPathPrefix(path, r.Prefix) {
			return true
		}
	}
	return false
}

// Middleware only applies to the agency role. A blocked request is aborted
// before any handler runs; a snapshot failure is a 500, never a block.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.GetIdentity(c)
		if !ok || id.Role != agency.RoleAgency {
			c.Next()
			return
		}

		snap, err := g.snapshots.ForRequest(c)
		if err != nil {
			entitlement.RespondError(c, err)
			return
		}
		if !snap.TrialExpired || g.Allowed(c.Request.Method, c.Request.URL.Path) {
			c.Next()
			return
		}

		metrics.TrialGateBlocksTotal.Inc()
		logging.L(c.Request.Context()).Info("trial gate blocked request",
			"agency_id", snap.AgencyID, "method", c.Request.Method, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "trial_expired",
			"code":    entitlement.CodeTrialExpired,
			"message": entitlement.TrialExpiredMessage,
		})
	}
}

// hasPathPrefix matches whole path segments, so "/v1/tiers" covers
// "/v1/tiers/solo" but not "/v1/tiersx".
func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || strings.HasSuffix(prefix, "/")
}
