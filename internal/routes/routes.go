package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/firstbud/attribution-service/internal/handlers"
	"github.com/firstbud/attribution-service/internal/services"
)

// RouteConfig holds configuration for routes
type RouteConfig struct {
	WebhookHandler      *handlers.WebhookHandler
	UploadHandler       *handlers.UploadHandler
	CustomerHandler     *handlers.CustomerHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	CampaignHandler     *handlers.CampaignHandler
	AttributionHandler  *handlers.AttributionHandler
	UploadWorker        *services.UploadWorker
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *RouteConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"service":        "attribution-service",
			"active_uploads": cfg.UploadWorker.Active(),
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Webhook routes (public - verified by HMAC, not auth)
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("/orders-create", cfg.WebhookHandler.HandleOrdersCreate)
		webhooks.POST("/orders-updated", cfg.WebhookHandler.HandleOrdersCreate)
	}

	// Customer analysis and the CSV upload flow
	customers := v1.Group("/customers")
	{
		customers.POST("/upload-csv", cfg.UploadHandler.Upload)
		customers.GET("/upload-status/:id", cfg.UploadHandler.Get)
		customers.GET("/uploads", cfg.UploadHandler.List)
		customers.DELETE("/uploads/:id", cfg.UploadHandler.Delete)

		customers.GET("", cfg.CustomerHandler.List)
		customers.GET("/stats", cfg.CustomerHandler.Stats)
		customers.GET("/:phone", cfg.CustomerHandler.Get)
	}

	// Subscriptions
	subscriptions := v1.Group("/subscriptions")
	{
		subscriptions.GET("", cfg.SubscriptionHandler.List)
		subscriptions.GET("/stats", cfg.SubscriptionHandler.Stats)
		subscriptions.POST("/rebuild", cfg.SubscriptionHandler.Rebuild)
		subscriptions.POST("/:id/cancel", cfg.SubscriptionHandler.Cancel)
	}

	// Campaigns, coupons and leads
	campaigns := v1.Group("/campaigns")
	{
		campaigns.POST("", cfg.CampaignHandler.Create)
		campaigns.GET("", cfg.CampaignHandler.List)
		campaigns.DELETE("/:id", cfg.CampaignHandler.Delete)
		campaigns.POST("/:id/coupon", cfg.CampaignHandler.AttachCoupon)
		campaigns.POST("/:id/leads", cfg.CampaignHandler.UploadLeads)
		campaigns.GET("/:id/leads", cfg.CampaignHandler.Leads)
	}

	// Attributed orders and manual sync
	orders := v1.Group("/orders")
	{
		orders.GET("", cfg.AttributionHandler.Orders)
		orders.GET("/sources", cfg.AttributionHandler.Sources)
		orders.GET("/campaigns", cfg.AttributionHandler.Campaigns)
	}
	v1.POST("/admin/sync", cfg.AttributionHandler.TriggerSync)
}
