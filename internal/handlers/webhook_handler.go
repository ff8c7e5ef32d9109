package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/services"
	"github.com/firstbud/attribution-service/internal/shopify"
)

// WebhookHandler receives Shopify webhook deliveries
type WebhookHandler struct {
	reconciliation *services.ReconciliationService
	shopRepo       *repository.ShopRepository
	signature      *shopify.Signature
	shopDomain     string
	logger         *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	reconciliation *services.ReconciliationService,
	shopRepo *repository.ShopRepository,
	signature *shopify.Signature,
	shopDomain string,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		reconciliation: reconciliation,
		shopRepo:       shopRepo,
		signature:      signature,
		shopDomain:     shopDomain,
		logger:         logger,
	}
}

// HandleOrdersCreate ingests an orders/create (or orders/updated)
// delivery. Shopify retries failed deliveries, so the same order can
// arrive more than once; reconciliation makes that safe.
// POST /api/v1/webhooks/orders-create
func (h *WebhookHandler) HandleOrdersCreate(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if !h.signature.VerifyWebhook(body, c.GetHeader("X-Shopify-Hmac-Sha256")) {
		h.logger.Warn("webhook rejected: invalid HMAC",
			zap.String("topic", c.GetHeader("X-Shopify-Topic")))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return
	}

	var payload shopify.OrderPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order payload"})
		return
	}

	domain := c.GetHeader("X-Shopify-Shop-Domain")
	if domain == "" {
		domain = h.shopDomain
	}
	shop, err := h.shopRepo.GetByDomain(c.Request.Context(), domain)
	if err != nil {
		if errors.Is(err, attribution.ErrShopNotFound) {
			h.logger.Warn("webhook for unknown shop", zap.String("domain", domain))
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown shop"})
			return
		}
		h.logger.Error("Failed to load shop", zap.String("domain", domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	order, err := h.reconciliation.ProcessOrder(c.Request.Context(), shop, &payload)
	if err != nil {
		h.logger.Error("Failed to process webhook order",
			zap.String("shopify_order_id", payload.OrderID()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "processed",
		"order_id":        order.ID,
		"platform_source": order.PlatformSource,
	})
}
