package entitlement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rankwell/rankwell/internal/auth"
)

// ContextKeySnapshot holds the snapshot built earlier in the same request.
const ContextKeySnapshot = "entitlementSnapshot"

// ForRequest returns the caller's snapshot, reusing one already built for
// this request (by the trial gate) and otherwise building it. Snapshots are
// never shared across requests.
func (b *Builder) ForRequest(c *gin.Context) (*Snapshot, error) {
	if v, ok := c.Get(ContextKeySnapshot); ok {
		if snap, ok := v.(*Snapshot); ok {
			return snap, nil
		}
	}
	id, ok := auth.GetIdentity(c)
	if !ok {
		return nil, ErrUnauthenticated
	}
	snap, err := b.Build(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	c.Set(ContextKeySnapshot, snap)
	return snap, nil
}

// RespondDenied writes a 403 carrying the verdict's code and message verbatim.
func RespondDenied(c *gin.Context, v Verdict) {
	errCode := "limit_exceeded"
	if v.Code == CodeTrialExpired {
		errCode = "trial_expired"
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":   errCode,
		"code":    v.Code,
		"message": v.Message,
	})
}

// RespondError maps a snapshot failure to a response that can't be mistaken
// for a business denial.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	case errors.Is(err, ErrTierNotConfigured):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "tier_not_configured",
			"message": "Your plan could not be determined. Contact support.",
		})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "entitlements_unavailable",
			"message": "Plan limits could not be checked right now. Please try again.",
		})
	}
}

// Handler serves the caller's current entitlements.
type Handler struct {
	builder *Builder
}

// NewHandler creates a new entitlement handler.
func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

// RegisterRoutes sets up the entitlement routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/entitlements", h.Get)
}

// Get handles GET /v1/entitlements.
func (h *Handler) Get(c *gin.Context) {
	snap, err := h.builder.ForRequest(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entitlements": snap,
		"checks": gin.H{
			"addDashboard":  snap.CanAddDashboard(),
			"addTeamMember": snap.CanAddTeamMember(),
		},
	})
}
