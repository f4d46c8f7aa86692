package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Pinak57/localchef-server/cache"
	"github.com/Pinak57/localchef-server/controllers"
	"github.com/Pinak57/localchef-server/database"
	"github.com/Pinak57/localchef-server/middleware"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	"github.com/Pinak57/localchef-server/pkg/logger"
	"github.com/Pinak57/localchef-server/routes"
	"github.com/Pinak57/localchef-server/services"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		logger.MustNew(os.Getenv("APP_ENV"), nil).Fatal("Config load failed", zap.Error(err))
	}

	// --- AWS setup ---
	awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
	if err != nil {
		logger.MustNew(cfg.Env, nil).Fatal("Failed to load AWS config", zap.Error(err))
	}

	var shipTo io.Writer
	cwLogs, cwErr := aws_pkg.NewCloudWatchLogsClient(context.Background(), awsCfg, cfg.ServiceName)
	if cwErr == nil && cwLogs.IsEnabled() {
		shipTo = cwLogs
	}
	log := logger.MustNew(cfg.Env, shipTo)
	defer log.Sync()
	if cwErr != nil {
		log.Warn("CloudWatch Logs init failed (non-fatal)", zap.Error(cwErr))
	}

	metricsClient := aws_pkg.NewMetricsClient(awsCfg)

	// --- Store ---
	stores, err := database.OpenStores(context.Background(), cfg.Store, awsCfg, log)
	if err != nil {
		log.Fatal("Store initialization failed", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}

	// --- Optional integrations ---
	var snsClient aws_pkg.SNSPublisher
	if cfg.OrderSNSTopicARN != "" || cfg.PaymentSNSTopicARN != "" {
		snsClient = aws_pkg.NewSNSClient(awsCfg, log)
	}

	var catalog services.MealCatalog
	if cfg.MealServiceURL != "" {
		catalog = services.NewHTTPMealCatalog(cfg.MealServiceURL)
	}

	deps := services.ReconciliationDeps{
		Publisher: snsClient,
		TopicArn:  cfg.PaymentSNSTopicARN,
		Metrics:   metricsClient,
	}
	if cfg.SettlementRetryQueueURL != "" {
		deps.RetryQueue = aws_pkg.NewSQSProducer(awsCfg, cfg.SettlementRetryQueueURL)
	}
	if cfg.WebhookArchiveBucket != "" {
		deps.Archiver = aws_pkg.NewS3Archiver(awsCfg, cfg.WebhookArchiveBucket)
	}
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable; webhook dedupe relies on the store alone", zap.Error(err))
		} else {
			defer redisClient.Close()
			deps.Deduper = cache.NewWebhookEventCache(redisClient, cache.DefaultEventTTL)
		}
	}

	// --- Dependency injection ---
	gateway := services.NewStripeService(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.FrontendURL)
	retry := services.DefaultRetryPolicy()
	retry.AttemptTimeout = cfg.StripeTimeout
	retry.MaxAttempts = cfg.StripeMaxAttempts

	orderService := services.NewOrderService(stores.Orders, catalog, snsClient, cfg.OrderSNSTopicARN, metricsClient, log, cfg.StoreTimeout)
	checkoutService := services.NewCheckoutService(gateway, stores.Orders, stores.Payments, retry, metricsClient, log, cfg.StoreTimeout)
	reconService := services.NewReconciliationService(gateway, stores.Payments, stores.Orders, deps, log, cfg.StoreTimeout)

	orderController := controllers.NewOrderController(orderService, log)
	paymentController := controllers.NewPaymentController(checkoutService, reconService, log)

	// --- HTTP router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, cfg.RateLimitPerMinute/2+1))
	r.Use(middleware.MetricsMiddleware(metricsClient, cfg.ServiceName))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Timeout(30 * time.Second))

	auth := middleware.AuthMiddleware([]byte(cfg.JWTSecret), cfg.TrustGatewayHeaders)
	routes.RegisterOrderRoutes(r, orderController, auth)
	routes.RegisterPaymentRoutes(r, paymentController, auth)
	routes.RegisterAdminRoutes(r, orderController, paymentController, auth)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": cfg.ServiceName, "store": cfg.Store.Backend})
	})

	// --- Settlement retry consumer ---
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if cfg.SettlementRetryQueueURL != "" {
		poller := aws_pkg.NewSQSConsumer(awsCfg, cfg.SettlementRetryQueueURL, log)
		go services.NewSQSReconcileConsumer(poller, reconService, log).Start(consumerCtx)
	}

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("LocalChef server started", zap.String("port", cfg.Port), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")
	stopConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if err := stores.Close(); err != nil {
		log.Error("Store close error", zap.Error(err))
	}

	log.Info("LocalChef server stopped gracefully")
}
