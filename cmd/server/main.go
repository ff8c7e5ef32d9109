package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/config"
	"github.com/firstbud/attribution-service/internal/database"
	"github.com/firstbud/attribution-service/internal/events"
	"github.com/firstbud/attribution-service/internal/handlers"
	"github.com/firstbud/attribution-service/internal/logger"
	"github.com/firstbud/attribution-service/internal/middleware"
	"github.com/firstbud/attribution-service/internal/repository"
	"github.com/firstbud/attribution-service/internal/routes"
	"github.com/firstbud/attribution-service/internal/services"
	"github.com/firstbud/attribution-service/internal/shopify"
)

func main() {
	// Load .env file in development
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize Sentry for error tracking
	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          cfg.Sentry.Release,
			TracesSampleRate: 0.1,
		}); err != nil {
			zapLogger.Warn("Failed to initialize Sentry", zap.Error(err))
			sentryEnabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Connect to database
	db, err := database.Connect(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Connect to Redis (optional - stats fall back to the database)
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable, stats caching disabled", zap.Error(err))
			redisClient = nil
		}
	}

	// Connect to NATS (optional - only if configured)
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			zapLogger.Warn("Failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			zapLogger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
			defer natsConn.Close()
		}
	}
	eventPublisher := events.NewPublisher(natsConn, zapLogger)

	// Initialize repositories
	shopRepo := repository.NewShopRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// Initialize Shopify admin client and webhook verification
	shopifyClient := shopify.NewClient(&shopify.ClientConfig{
		ShopDomain:  cfg.Shopify.ShopDomain,
		AccessToken: cfg.Shopify.AccessToken,
		APIVersion:  cfg.Shopify.APIVersion,
		Logger:      zapLogger,
	})
	signature := shopify.NewSignature(cfg.Shopify.WebhookSecret)

	// Initialize services
	reconciliationService := services.NewReconciliationService(
		orderRepo, couponRepo, leadRepo, eventPublisher, zapLogger,
	)
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, uploadRepo, zapLogger)
	analysisService := services.NewCustomerAnalysisService(
		uploadRepo, customerRepo, subscriptionService, eventPublisher, zapLogger,
	)
	uploadWorker := services.NewUploadWorker(analysisService, zapLogger)
	syncService := services.NewSyncService(
		shopifyClient, shopRepo, couponRepo, campaignRepo, reconciliationService,
		&services.SyncServiceConfig{
			ShopDomain:  cfg.Shopify.ShopDomain,
			AccessToken: cfg.Shopify.AccessToken,
			MaxOrders:   cfg.Sync.MaxOrders,
		},
		zapLogger,
	)
	statsCache := services.NewStatsCacheService(redisClient, 5*time.Minute, zapLogger)

	// Start NATS subscriber for sync requests
	var eventSubscriber *events.Subscriber
	if natsConn != nil {
		eventSubscriber = events.NewSubscriber(natsConn, syncService, zapLogger)
		if err := eventSubscriber.Start(); err != nil {
			zapLogger.Warn("Failed to start event subscriber", zap.Error(err))
		}
	}

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(
		reconciliationService, shopRepo, signature, cfg.Shopify.ShopDomain, zapLogger)
	uploadHandler := handlers.NewUploadHandler(analysisService, uploadWorker, statsCache, zapLogger)
	customerHandler := handlers.NewCustomerHandler(analysisService, statsCache, zapLogger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, statsCache, zapLogger)
	campaignHandler := handlers.NewCampaignHandler(
		campaignRepo, couponRepo, leadRepo, shopRepo, cfg.Shopify.ShopDomain, zapLogger)
	attributionHandler := handlers.NewAttributionHandler(orderRepo, syncService, statsCache, zapLogger)

	// Set Gin mode
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(zapLogger))
	if sentryEnabled {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	allowedOrigins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")
	router.Use(middleware.CORSWithOrigins(allowedOrigins))

	routes.SetupRoutes(router, &routes.RouteConfig{
		WebhookHandler:      webhookHandler,
		UploadHandler:       uploadHandler,
		CustomerHandler:     customerHandler,
		SubscriptionHandler: subscriptionHandler,
		CampaignHandler:     campaignHandler,
		AttributionHandler:  attributionHandler,
		UploadWorker:        uploadWorker,
	})

	// Background sync: one pass at startup, then on an interval.
	syncCtx, cancelSync := context.WithCancel(context.Background())
	go func() {
		run := func() {
			ctx, cancel := context.WithTimeout(syncCtx, 5*time.Minute)
			defer cancel()
			if _, err := syncService.Run(ctx); err != nil {
				zapLogger.Warn("Background sync failed", zap.Error(err))
			}
		}
		run()

		ticker := time.NewTicker(cfg.Sync.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-syncCtx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		zapLogger.Info("🚀 Attribution service starting on port " + cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	cancelSync()
	if eventSubscriber != nil {
		eventSubscriber.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight uploads reach a terminal status.
	uploadWorker.Wait()

	zapLogger.Info("Server exited")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
