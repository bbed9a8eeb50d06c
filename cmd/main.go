package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/cache"
	"quantity-sync-service/internal/clients/shopify"
	"quantity-sync-service/internal/config"
	"quantity-sync-service/internal/events"
	"quantity-sync-service/internal/handlers"
	"quantity-sync-service/internal/metrics"
	"quantity-sync-service/internal/middleware"
	"quantity-sync-service/internal/report"
	"quantity-sync-service/internal/repository"
	"quantity-sync-service/internal/secrets"
	"quantity-sync-service/internal/services"
	"quantity-sync-service/internal/storage"
)

// @title Quantity Sync API
// @version 1.0.0
// @description Synchronizes store inventory quantities from uploaded csv and xlsx files

// @host localhost:8080
// @BasePath /api/v1

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.IsProduction() {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	logEntry := logger.WithField("service", "quantity-sync-service")

	ctx := context.Background()
	checks := map[string]handlers.Pinger{}

	registry, err := config.LoadStores(cfg.StoresConfigPath, cfg.ShopifyAPIVersion)
	if err != nil {
		logEntry.WithError(err).Fatal("Failed to load store registry")
	}
	logEntry.WithField("stores", len(registry.List())).Info("Store registry loaded")

	// Run history: postgres when configured, memory otherwise
	var (
		defaultsRepo services.SourceFileRepository
		runsRepo     services.RunRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := config.InitDB(cfg)
		if err != nil {
			logEntry.WithError(err).Fatal("Failed to connect to database")
		}
		if err := repository.AutoMigrate(db); err != nil {
			logEntry.WithError(err).Fatal("Failed to migrate database")
		}
		defaultsRepo = repository.NewSourceFileRepository(db)
		runsRepo = repository.NewSyncRunRepository(db)
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		logEntry.Info("Run history stored in postgres")
	} else {
		defaultsRepo = repository.NewMemorySourceFileRepository()
		runsRepo = repository.NewMemorySyncRunRepository(1000)
		logEntry.Warn("DATABASE_URL not configured, run history kept in memory")
	}

	// Run lock: redis when configured, in-process otherwise
	var locker services.RunLocker = services.NewStoreSemaphore(cfg.SyncLockWait)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logEntry.WithError(err).Fatal("Invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logEntry.WithError(err).Warn("Redis unavailable, using in-process run lock")
			client.Close()
		} else {
			defer client.Close()
			locker = cache.NewRedisLocker(client, cfg.SyncLockTTL, cfg.SyncLockWait, logEntry)
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			logEntry.Info("Using redis run lock")
		}
	}

	// Access tokens from GCP Secret Manager when a project is configured
	var secretManager *secrets.Manager
	if cfg.GCPProjectID != "" {
		secretManager, err = secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
		if err != nil {
			logEntry.WithError(err).Warn("Failed to initialize GCP Secret Manager")
		} else {
			defer secretManager.Close()
			logEntry.Info("GCP Secret Manager initialized")
		}
	}

	gateways := shopify.NewFactory(registry, secrets.NewTokenResolver(secretManager), shopify.FactoryOptions{
		RateLimit:  cfg.ShopifyRateLimit,
		Timeout:    cfg.ShopifyTimeout,
		MaxRetries: cfg.SyncMaxRetries,
		RetryDelay: cfg.SyncRetryDelay,
	}, logEntry)

	files, err := storage.NewLocalStore(cfg.ResourcesDir)
	if err != nil {
		logEntry.WithError(err).Fatal("Failed to open resources dir")
	}

	collector := metrics.NewCollector("quantity_sync")

	syncService := services.NewSyncService(
		files,
		defaultsRepo,
		runsRepo,
		gateways,
		services.NewCatalogResolver(cfg.SyncLookupConcurrency, logEntry),
		locker,
		services.SyncServiceConfig{
			BatchSize:          cfg.SyncBatchSize,
			SubmitConcurrency:  cfg.SyncSubmitConcurrency,
			BatchTimeout:       cfg.SyncBatchTimeout,
			Reason:             cfg.AdjustmentReason,
			ReferenceURIPrefix: cfg.ReferenceURIPrefix,
		},
		logEntry,
	)
	syncService.SetChangeLogWriter(report.NewChangeLog(cfg.LogsDir, logEntry))
	syncService.SetMetrics(collector)

	// NATS event publisher (optional)
	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(ctx, cfg.NATSURL, logEntry)
		if err != nil {
			logEntry.WithError(err).Warn("Failed to initialize NATS publisher, continuing without events")
		} else {
			defer publisher.Close()
			syncService.SetEventPublisher(publisher)
			logEntry.Info("Connected to NATS JetStream for event publishing")
		}
	} else {
		logEntry.Info("NATS_URL not configured, event publishing disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Stores:         registry,
		Files:          services.NewFileService(files, defaultsRepo, logEntry),
		Sync:           syncService,
		Health:         handlers.NewHealthHandler(checks),
		Metrics:        collector.Handler(),
		MetricsMW:      collector.Middleware(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Log:            logEntry,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logEntry.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
			"header":      middleware.StoreHeader,
		}).Info("Quantity sync service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logEntry.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logEntry.Info("Shutting down quantity-sync-service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logEntry.WithError(err).Error("Server forced to shutdown")
	}

	logEntry.Info("Quantity sync service stopped")
}
