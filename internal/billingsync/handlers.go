package billingsync

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/auth"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/metrics"
)

const webhookBodyLimit = 1 << 20

// Handler serves the subscription endpoints and the Stripe webhook.
type Handler struct {
	syncer   *Syncer
	fetcher  SubscriptionFetcher
	agencies agency.Store
	secret   string
}

// NewHandler creates a billing handler. fetcher may be nil when Stripe is not
// configured; activation then answers 503.
func NewHandler(syncer *Syncer, fetcher SubscriptionFetcher, agencies agency.Store, webhookSecret string) *Handler {
	return &Handler{syncer: syncer, fetcher: fetcher, agencies: agencies, secret: webhookSecret}
}

// RegisterRoutes sets up the caller-scoped subscription routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/subscription", h.GetSubscription)
	r.POST("/subscription/activate", h.Activate)
}

// RegisterWebhookRoutes sets up the unauthenticated webhook route.
func (h *Handler) RegisterWebhookRoutes(r *gin.RouterGroup) {
	r.POST("/billing/stripe/webhook", h.Webhook)
}

// GetSubscription handles GET /v1/subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	a, ok := h.callerAgency(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":                 a.Tier,
		"billingClass":         a.BillingClass,
		"trialEndsAt":          a.TrialEndsAt,
		"trialExpired":         a.TrialExpired(h.syncer.now()),
		"stripeSubscriptionId": a.StripeSubscriptionID,
	})
}

// Activate handles POST /v1/subscription/activate. It is reachable with an
// expired trial so the agency can pay its way out.
func (h *Handler) Activate(c *gin.Context) {
	var req struct {
		SubscriptionID string `json:"subscriptionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "subscriptionId is required"})
		return
	}
	if h.fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing_unavailable", "message": "billing is not configured"})
		return
	}
	a, ok := h.callerAgency(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	sub, err := h.fetcher.GetSubscription(ctx, strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		logging.L(ctx).Warn("subscription fetch failed", "agency_id", a.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "billing_unavailable", "message": "could not load subscription"})
		return
	}

	res, err := h.syncer.ApplyTo(ctx, a.ID, sub)
	if err != nil {
		metrics.BillingSyncEventsTotal.WithLabelValues("activate", "error").Inc()
		switch {
		case errors.Is(err, ErrCustomerMismatch):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "subscription belongs to another customer"})
		case errors.Is(err, ErrUnmappedPrice):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unmapped_price", "message": "subscription price is not a known plan"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to apply subscription"})
		}
		return
	}
	metrics.BillingSyncEventsTotal.WithLabelValues("activate", "applied").Inc()
	c.JSON(http.StatusOK, gin.H{"subscription": res})
}

// Webhook handles POST /v1/billing/stripe/webhook.
func (h *Handler) Webhook(c *gin.Context) {
	if strings.TrimSpace(h.secret) == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing_unavailable", "message": "webhook secret not configured"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "failed to read request body"})
		return
	}
	sig := c.GetHeader("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature", "message": "missing Stripe signature"})
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature", "message": "invalid Stripe signature"})
		return
	}

	ctx := c.Request.Context()
	eventType := string(event.Type)
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
	default:
		metrics.BillingSyncEventsTotal.WithLabelValues(eventType, "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		metrics.BillingSyncEventsTotal.WithLabelValues(eventType, "error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "could not decode subscription"})
		return
	}
	if event.Type == "customer.subscription.deleted" {
		sub.Status = stripe.SubscriptionStatusCanceled
	}

	res, err := h.syncer.Apply(ctx, &sub)
	switch {
	case errors.Is(err, ErrNoAgency):
		// Acknowledge so Stripe stops retrying; nothing here can own it.
		logging.L(ctx).Warn("subscription for unknown agency", "event_id", event.ID, "subscription_id", sub.ID)
		metrics.BillingSyncEventsTotal.WithLabelValues(eventType, "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case err != nil:
		logging.L(ctx).Error("stripe webhook processing failed", "event_id", event.ID, "type", eventType, "error", err)
		metrics.BillingSyncEventsTotal.WithLabelValues(eventType, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "processing failed"})
		return
	}

	result := "applied"
	if res.Skipped != "" {
		result = "skipped"
	}
	metrics.BillingSyncEventsTotal.WithLabelValues(eventType, result).Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) callerAgency(c *gin.Context) (*agency.Agency, bool) {
	id, ok := auth.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return nil, false
	}
	a, err := h.agencies.FindByUser(c.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, agency.ErrNoMembership) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_agency", "message": "user has no agency membership"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load agency"})
		return nil, false
	}
	return a, true
}
