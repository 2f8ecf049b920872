package agency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rankwell/rankwell/internal/idgen"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/validation"
)

// DefaultTrialDays is the grace period granted to newly provisioned agencies.
const DefaultTrialDays = 14

// DashboardProvisioner creates the agency's own default dashboard.
type DashboardProvisioner interface {
	CreateDefaultDashboard(ctx context.Context, agencyID, ownerUserID, name string) (string, error)
}

// Caller resolves the authenticated user id from a request.
type Caller func(c *gin.Context) (userID string, ok bool)

// Handler provides HTTP endpoints for agency records.
type Handler struct {
	store      Store
	dashboards DashboardProvisioner
	caller     Caller
	now        func() time.Time
}

// NewHandler creates a new agency handler.
func NewHandler(store Store, dashboards DashboardProvisioner, caller Caller) *Handler {
	return &Handler{store: store, dashboards: dashboards, caller: caller, now: time.Now}
}

// RegisterRoutes sets up the caller-scoped agency routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agencies/me", h.GetMine)
	r.PATCH("/agencies/me", h.UpdateMine)
}

// RegisterAdminRoutes sets up the platform-admin provisioning routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/agencies", h.Create)
	r.GET("/admin/agencies/:id", h.Get)
}

// Create handles POST /v1/admin/agencies.
func (h *Handler) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		OwnerUserID string `json:"ownerUserId" binding:"required"`
		TrialDays   *int   `json:"trialDays"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name and ownerUserId required"})
		return
	}
	days := DefaultTrialDays
	if req.TrialDays != nil {
		if *req.TrialDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "trialDays must not be negative"})
			return
		}
		days = *req.TrialDays
	}

	ctx := c.Request.Context()
	if _, err := h.store.FindByUser(ctx, req.OwnerUserID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "already_member", "message": "user already belongs to an agency"})
		return
	} else if !errors.Is(err, ErrNoMembership) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to check membership"})
		return
	}

	now := h.now()
	trialEnds := now.AddDate(0, 0, days)
	a := &Agency{
		ID:           idgen.WithPrefix("agc_"),
		Name:         validation.SanitizeString(req.Name, 200),
		OwnerUserID:  req.OwnerUserID,
		BillingClass: BillingNoCharge,
		TrialEndsAt:  &trialEnds,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.Create(ctx, a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create agency"})
		return
	}

	if h.dashboards != nil {
		clientID, err := h.dashboards.CreateDefaultDashboard(ctx, a.ID, a.OwnerUserID, a.Name)
		if err != nil {
			logging.L(ctx).Warn("default dashboard provisioning failed", "agency_id", a.ID, "error", err)
			c.JSON(http.StatusCreated, gin.H{
				"agency":  a,
				"warning": "Agency created but default dashboard provisioning failed.",
			})
			return
		}
		if err := h.store.SetDefaultClient(ctx, a.ID, clientID); err == nil {
			a.DefaultClientID = &clientID
		}
	}

	c.JSON(http.StatusCreated, gin.H{"agency": a})
}

// Get handles GET /v1/admin/agencies/:id.
func (h *Handler) Get(c *gin.Context) {
	a, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAgencyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "agency not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agency": a})
}

// GetMine handles GET /v1/agencies/me.
func (h *Handler) GetMine(c *gin.Context) {
	a, ok := h.mine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agency":       a,
		"trialExpired": a.TrialExpired(h.now()),
	})
}

// UpdateMine handles PATCH /v1/agencies/me. Only the profile is editable here;
// tier and billing class belong to billing sync.
func (h *Handler) UpdateMine(c *gin.Context) {
	a, ok := h.mine(c)
	if !ok {
		return
	}
	var req struct {
		Name *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid request body"})
		return
	}
	if req.Name != nil {
		name := validation.SanitizeString(*req.Name, 200)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name must not be empty"})
			return
		}
		if err := h.store.UpdateProfile(c.Request.Context(), a.ID, name); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update agency"})
			return
		}
		a.Name = name
	}
	c.JSON(http.StatusOK, gin.H{"agency": a})
}

func (h *Handler) mine(c *gin.Context) (*Agency, bool) {
	userID, ok := h.caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return nil, false
	}
	a, err := h.store.FindByUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_agency", "message": "user has no agency membership"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load agency"})
		return nil, false
	}
	return a, true
}
