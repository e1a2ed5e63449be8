package main

import (
	"os"
	"strings"

	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/database"
	"catalog-sync-service/internal/handlers"
	"catalog-sync-service/internal/middleware"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/services"
	"catalog-sync-service/internal/source"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env in development; ignored when absent
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "development" {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.Category{},
		&models.Brand{},
		&models.Material{},
		&models.PricingTier{},
		&models.CatalogProduct{},
		&models.SyncRun{},
		&models.SyncRunError{},
		&models.InventoryMovement{},
	); err != nil {
		logger.WithError(err).Warn("auto-migration failed")
	}
	logger.Info("database models migrated")

	// Initialize repositories
	tierRepo := repository.NewTierRepository(db)
	lookupRepo := repository.NewLookupRepository(db)
	productRepo := repository.NewProductRepository(db)
	runRepo := repository.NewRunRepository(db)
	movementRepo := repository.NewMovementRepository(db)

	// Initialize source client
	client := source.NewHTTPClient(
		cfg.SourceBaseURL,
		cfg.SourceAPIToken,
		cfg.SourceTimeout,
		cfg.SourcePageSize,
		source.WithRateLimit(cfg.SourceRateLimit),
	)

	// Initialize services
	lookupService := services.NewLookupService(lookupRepo, logger)
	syncService := services.NewSyncService(runRepo, tierRepo, productRepo, movementRepo, lookupService, client, cfg, logger)
	recalcService := services.NewRecalcService(runRepo, tierRepo, productRepo, cfg, logger)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	syncHandler := handlers.NewSyncHandler(syncService, recalcService)

	router := setupRouter(cfg, healthHandler, syncHandler)

	logger.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
	}).Info("catalog sync service starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	syncHandler *handlers.SyncHandler,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Security headers middleware
	router.Use(middleware.SecurityHeaders())

	// CORS middleware
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}
	router.Use(middleware.CORS(origins))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		sync := v1.Group("/sync")
		{
			sync.POST("/runs", syncHandler.CreateRun)
			sync.POST("/recalculate", syncHandler.CreateRecalculation)
			sync.GET("/runs", syncHandler.ListRuns)
			sync.GET("/runs/:id", syncHandler.GetRun)
			sync.GET("/runs/:id/errors", syncHandler.GetRunErrors)
			sync.GET("/runs/:id/movements", syncHandler.GetRunMovements)
			sync.POST("/runs/:id/cancel", syncHandler.CancelRun)
			sync.GET("/stats", syncHandler.GetStats)
			sync.POST("/test-connection", syncHandler.TestConnection)
		}
	}

	return router
}
