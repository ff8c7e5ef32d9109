package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/normalize"
	"github.com/firstbud/attribution-service/internal/services"
)

// SubscriptionHandler handles subscription API requests
type SubscriptionHandler struct {
	subscriptions *services.SubscriptionService
	cache         *services.StatsCacheService
	logger        *zap.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(
	subscriptions *services.SubscriptionService,
	cache *services.StatsCacheService,
	logger *zap.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		cache:         cache,
		logger:        logger,
	}
}

// List returns all product subscriptions
// GET /api/v1/subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.subscriptions.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "total": len(subs)})
}

// Stats returns the subscription rollup, cached briefly.
// GET /api/v1/subscriptions/stats
func (h *SubscriptionHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, _ := h.cache.Get(ctx, "subscriptions"); cached != nil && cached.Subscriptions != nil {
		c.JSON(http.StatusOK, gin.H{"stats": cached.Subscriptions, "cached_at": cached.CachedAt})
		return
	}

	stats, err := h.subscriptions.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to compute subscription stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	_ = h.cache.Set(ctx, "subscriptions", &services.CachedStats{Subscriptions: stats})
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// CancelRequest identifies the customer cancelling a plan
type CancelRequest struct {
	CustomerPhone string `json:"customer_phone" binding:"required"`
}

// Cancel marks one customer's plan cancelled
// POST /api/v1/subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	subscriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID"})
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer_phone is required"})
		return
	}

	phone := normalize.Phone(req.CustomerPhone)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	link, err := h.subscriptions.Cancel(c.Request.Context(), phone, subscriptionID)
	if err != nil {
		if errors.Is(err, attribution.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found for this customer"})
			return
		}
		h.logger.Error("Failed to cancel subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	_ = h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Subscription cancelled", "subscription": link})
}

// Rebuild recomputes every subscription from the surviving order records
// POST /api/v1/subscriptions/rebuild
func (h *SubscriptionHandler) Rebuild(c *gin.Context) {
	if err := h.subscriptions.Rebuild(c.Request.Context()); err != nil {
		h.logger.Error("Failed to rebuild subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Subscriptions rebuilt"})
}
