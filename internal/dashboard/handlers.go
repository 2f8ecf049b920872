// Package dashboard provides the JSON endpoints that grow an agency: client
// dashboards, tracked keywords, team seats and research lookups.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/credits"
	"github.com/rankwell/rankwell/internal/entitlement"
	"github.com/rankwell/rankwell/internal/idgen"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/validation"
	"github.com/rankwell/rankwell/internal/workspace"
)

// SnapshotSource builds the request's entitlement snapshot.
type SnapshotSource interface {
	ForRequest(c *gin.Context) (*entitlement.Snapshot, error)
}

// CreditWriter records consumed research credits.
type CreditWriter interface {
	Consume(ctx context.Context, agencyID string, n int) (credits.Balance, error)
}

// Handler provides the tenant-scoped mutating endpoints. Each one builds a
// snapshot, runs the matching check, and only then touches storage.
type Handler struct {
	store     workspace.Store
	agencies  agency.Store
	snapshots SnapshotSource
	credits   CreditWriter
}

// NewHandler creates a new dashboard handler.
func NewHandler(store workspace.Store, agencies agency.Store, snapshots SnapshotSource, credits CreditWriter) *Handler {
	return &Handler{store: store, agencies: agencies, snapshots: snapshots, credits: credits}
}

// RegisterRoutes sets up the dashboard routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/clients", h.CreateClient)
	r.POST("/clients/:id/keywords", h.AddKeywords)
	r.POST("/clients/:id/target-keywords", h.AddTargetKeywords)
	r.POST("/team/members", h.AddTeamMember)
	r.POST("/research/lookups", h.CreateLookup)
}

// RegisterAdminRoutes sets up platform-admin dashboard routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/agencies/:id/included-clients", h.MarkIncluded)
}

// CreateClient handles POST /v1/clients.
func (h *Handler) CreateClient(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Domain   string `json:"domain"`
		AgencyID string `json:"agencyId"` // admins only
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name is required"})
		return
	}
	if errs := validation.Validate(
		validation.MaxLength("name", req.Name, 200),
		validation.ValidDomain("domain", req.Domain),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}

	snap, ok := h.snapshot(c)
	if !ok {
		return
	}
	if v := snap.CanAddDashboard(); !v.Allowed {
		entitlement.RespondDenied(c, v)
		return
	}

	ctx := c.Request.Context()
	agencyID, granteeID, ok := h.target(c, snap, req.AgencyID)
	if !ok {
		return
	}

	client := &workspace.Client{
		ID:        idgen.WithPrefix("cli_"),
		AgencyID:  agencyID,
		Name:      validation.SanitizeString(req.Name, 200),
		Domain:    validation.NormalizeDomain(req.Domain),
		CreatedBy: snap.UserID,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateClient(ctx, client); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create client"})
		return
	}
	if err := h.store.GrantAccess(ctx, granteeID, client.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to grant access"})
		return
	}

	logging.L(ctx).Info("dashboard created", "agency_id", agencyID, "client_id", client.ID)
	c.JSON(http.StatusCreated, gin.H{"client": client})
}

// AddKeywords handles POST /v1/clients/:id/keywords.
func (h *Handler) AddKeywords(c *gin.Context) {
	h.addPhrases(c, false)
}

// AddTargetKeywords handles POST /v1/clients/:id/target-keywords.
func (h *Handler) AddTargetKeywords(c *gin.Context) {
	h.addPhrases(c, true)
}

func (h *Handler) addPhrases(c *gin.Context, target bool) {
	var req struct {
		Keywords []string `json:"keywords" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "keywords are required"})
		return
	}
	phrases := validation.NormalizeKeywords(req.Keywords)
	if errs := validation.Validate(validation.BatchSize("keywords", len(phrases), validation.MaxKeywordBatch)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}

	snap, ok := h.snapshot(c)
	if !ok {
		return
	}
	clientID := c.Param("id")
	if !h.visible(c, snap, clientID) {
		return
	}

	v := snap.CanAddKeywords(clientID, len(phrases))
	if target {
		v = snap.CanAddTargetKeywords(clientID, len(phrases))
	}
	if !v.Allowed {
		entitlement.RespondDenied(c, v)
		return
	}

	add := h.store.AddKeywords
	if target {
		add = h.store.AddTargetKeywords
	}
	added, err := add(c.Request.Context(), clientID, phrases)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to add keywords"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"clientId": clientID, "requested": len(phrases), "added": added})
}

// AddTeamMember handles POST /v1/team/members.
func (h *Handler) AddTeamMember(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "userId is required"})
		return
	}

	snap, ok := h.snapshot(c)
	if !ok {
		return
	}
	if v := snap.CanAddTeamMember(); !v.Allowed {
		entitlement.RespondDenied(c, v)
		return
	}
	if snap.AgencyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_agency", "message": "team members are added from within an agency"})
		return
	}

	if err := h.agencies.AddMember(c.Request.Context(), snap.AgencyID, req.UserID); err != nil {
		if errors.Is(err, agency.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_member", "message": "user already belongs to an agency"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to add team member"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agencyId": snap.AgencyID, "userId": req.UserID})
}

// CreateLookup handles POST /v1/research/lookups. Each keyword costs one
// credit; credits are consumed after the lookup is recorded.
func (h *Handler) CreateLookup(c *gin.Context) {
	var req struct {
		Keywords []string `json:"keywords" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "keywords are required"})
		return
	}
	phrases := validation.NormalizeKeywords(req.Keywords)
	if errs := validation.Validate(validation.BatchSize("keywords", len(phrases), validation.MaxKeywordBatch)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "details": errs})
		return
	}

	snap, ok := h.snapshot(c)
	if !ok {
		return
	}
	need := len(phrases)
	if v := snap.HasResearchCredits(need); !v.Allowed {
		entitlement.RespondDenied(c, v)
		return
	}

	ctx := c.Request.Context()
	lookup := &workspace.ResearchLookup{
		ID:        idgen.WithPrefix("lkp_"),
		AgencyID:  snap.AgencyID,
		UserID:    snap.UserID,
		Keywords:  phrases,
		Credits:   need,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateLookup(ctx, lookup); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to record lookup"})
		return
	}

	// Platform admins have no agency counter to charge.
	if snap.AgencyID == "" {
		c.JSON(http.StatusCreated, gin.H{"lookup": lookup})
		return
	}
	balance, err := h.credits.Consume(ctx, snap.AgencyID, need)
	if err != nil {
		logging.L(ctx).Error("credit consumption failed after lookup", "agency_id", snap.AgencyID, "lookup_id", lookup.ID, "error", err)
		c.JSON(http.StatusCreated, gin.H{
			"lookup":  lookup,
			"warning": "Lookup recorded but credit usage could not be updated.",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lookup": lookup, "credits": gin.H{
		"used":    balance.Used,
		"limit":   snap.CreditsLimit,
		"resetAt": balance.ResetAt,
	}})
}

// MarkIncluded handles POST /v1/admin/agencies/:id/included-clients.
func (h *Handler) MarkIncluded(c *gin.Context) {
	var req struct {
		ClientID string `json:"clientId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "clientId is required"})
		return
	}
	ctx := c.Request.Context()
	agencyID := c.Param("id")
	if _, err := h.agencies.Get(ctx, agencyID); err != nil {
		if errors.Is(err, agency.ErrAgencyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "agency not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load agency"})
		return
	}
	if err := h.store.MarkIncluded(ctx, agencyID, req.ClientID); err != nil {
		if errors.Is(err, workspace.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "client not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to mark client included"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agencyId": agencyID, "clientId": req.ClientID, "included": true})
}

func (h *Handler) snapshot(c *gin.Context) (*entitlement.Snapshot, bool) {
	snap, err := h.snapshots.ForRequest(c)
	if err != nil {
		entitlement.RespondError(c, err)
		return nil, false
	}
	return snap, true
}

// target picks the agency a new dashboard belongs to and the user granted
// access. Admins name the agency and the grant goes to its owner.
func (h *Handler) target(c *gin.Context, snap *entitlement.Snapshot, requested string) (agencyID, granteeID string, ok bool) {
	if snap.Kind != entitlement.KindAdminUnrestricted {
		return snap.AgencyID, snap.UserID, true
	}
	if requested == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "agencyId is required for platform admins"})
		return "", "", false
	}
	a, err := h.agencies.Get(c.Request.Context(), requested)
	if err != nil {
		if errors.Is(err, agency.ErrAgencyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "agency not found"})
			return "", "", false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load agency"})
		return "", "", false
	}
	return a.ID, a.OwnerUserID, true
}

// visible 404s dashboards outside the caller's agency.
func (h *Handler) visible(c *gin.Context, snap *entitlement.Snapshot, clientID string) bool {
	if _, err := h.store.GetClient(c.Request.Context(), clientID); err != nil {
		if errors.Is(err, workspace.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "client not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load client"})
		return false
	}
	if snap.Kind == entitlement.KindTenant && !snap.Accessible(clientID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "client not found"})
		return false
	}
	return true
}
