package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/services"
)

// AttributionHandler handles attributed-order API requests
type AttributionHandler struct {
	orderRepo *repository.OrderRepository
	sync      *services.SyncService
	cache     *services.StatsCacheService
	logger    *zap.Logger
}

// NewAttributionHandler creates a new AttributionHandler
func NewAttributionHandler(
	orderRepo *repository.OrderRepository,
	sync *services.SyncService,
	cache *services.StatsCacheService,
	logger *zap.Logger,
) *AttributionHandler {
	return &AttributionHandler{
		orderRepo: orderRepo,
		sync:      sync,
		cache:     cache,
		logger:    logger,
	}
}

func parseOrderFilter(c *gin.Context) repository.OrderFilter {
	filter := repository.OrderFilter{
		PlatformSource: c.Query("platform_source"),
		Limit:          50,
	}
	if s := c.Query("campaign_id"); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			filter.CampaignID = &id
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Since = &t
		}
	}
	if s := c.Query("until"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.Until = &t
		}
	}
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			filter.Limit = v
		}
	}
	if s := c.Query("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			filter.Offset = v
		}
	}
	return filter
}

// Orders pages through attributed orders
// GET /api/v1/orders
func (h *AttributionHandler) Orders(c *gin.Context) {
	filter := parseOrderFilter(c)

	orders, total, err := h.orderRepo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Sources breaks orders and revenue down by attributed platform
// GET /api/v1/orders/sources
func (h *AttributionHandler) Sources(c *gin.Context) {
	ctx := c.Request.Context()
	filter := parseOrderFilter(c)

	// Only the unfiltered view is worth caching.
	unfiltered := filter.PlatformSource == "" && filter.CampaignID == nil &&
		filter.Since == nil && filter.Until == nil
	if unfiltered {
		if cached, _ := h.cache.Get(ctx, "sources"); cached != nil && cached.Sources != nil {
			c.JSON(http.StatusOK, gin.H{"sources": cached.Sources, "cached_at": cached.CachedAt})
			return
		}
	}

	sources, err := h.orderRepo.RevenueBySource(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to compute source breakdown", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if unfiltered {
		_ = h.cache.Set(ctx, "sources", &services.CachedStats{Sources: sources})
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// Campaigns rolls attributed orders up per campaign
// GET /api/v1/orders/campaigns
func (h *AttributionHandler) Campaigns(c *gin.Context) {
	rows, err := h.orderRepo.RevenueByCampaign(c.Request.Context(), parseOrderFilter(c))
	if err != nil {
		h.logger.Error("Failed to compute campaign performance", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": rows})
}

// TriggerSync runs a full sync pass inline and reports the counts
// POST /api/v1/admin/sync
func (h *AttributionHandler) TriggerSync(c *gin.Context) {
	result, err := h.sync.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("Manual sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}

	_ = h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Sync completed", "result": result})
}
