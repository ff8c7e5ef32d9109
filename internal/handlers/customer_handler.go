package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/normalize"
	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/services"
)

// CustomerHandler handles customer analysis API requests
type CustomerHandler struct {
	analysis *services.CustomerAnalysisService
	cache    *services.StatsCacheService
	logger   *zap.Logger
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(
	analysis *services.CustomerAnalysisService,
	cache *services.StatsCacheService,
	logger *zap.Logger,
) *CustomerHandler {
	return &CustomerHandler{
		analysis: analysis,
		cache:    cache,
		logger:   logger,
	}
}

// List pages through customer aggregates
// GET /api/v1/customers
func (h *CustomerHandler) List(c *gin.Context) {
	filter := repository.CustomerFilter{
		Search:       c.Query("search"),
		CustomerType: c.Query("customer_type"),
		City:         c.Query("city"),
		Limit:        50,
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	customers, total, err := h.analysis.ListCustomers(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list customers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customers": customers,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// Get returns one customer with their subscription history. The phone
// in the path is normalized first, so any dialable form works.
// GET /api/v1/customers/:phone
func (h *CustomerHandler) Get(c *gin.Context) {
	phone := normalize.Phone(c.Param("phone"))
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	customer, subscriptions, err := h.analysis.GetCustomer(c.Request.Context(), phone)
	if err != nil {
		if errors.Is(err, attribution.ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
			return
		}
		h.logger.Error("Failed to get customer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customer":      customer,
		"subscriptions": subscriptions,
	})
}

// Stats returns the dashboard-level customer rollup, cached briefly.
// GET /api/v1/customers/stats
func (h *CustomerHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, _ := h.cache.Get(ctx, "customers"); cached != nil && cached.Customers != nil {
		c.JSON(http.StatusOK, gin.H{"stats": cached.Customers, "cached_at": cached.CachedAt})
		return
	}

	stats, err := h.analysis.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to compute customer stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	_ = h.cache.Set(ctx, "customers", &services.CachedStats{Customers: stats})
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
