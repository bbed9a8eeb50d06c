package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"quantity-sync-service/internal/config"
	"quantity-sync-service/internal/middleware"
	"quantity-sync-service/internal/services"
)

// RouterDeps carries what the HTTP surface needs
type RouterDeps struct {
	Stores         *config.StoreRegistry
	Files          *services.FileService
	Sync           *services.SyncService
	Health         *HealthHandler
	Metrics        http.Handler
	MetricsMW      gin.HandlerFunc
	AllowedOrigins []string
	Log            *logrus.Entry
}

// NewRouter wires every route of the service
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(deps.AllowedOrigins))
	if deps.MetricsMW != nil {
		router.Use(deps.MetricsMW)
	}

	health := deps.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	fileHandler := NewFileHandler(deps.Files, deps.Sync)
	syncHandler := NewSyncHandler(deps.Sync)
	storeHandler := NewStoreHandler(deps.Stores)

	router.GET("/api/v1/stores", storeHandler.List)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireStore(deps.Stores))
	{
		api.GET("/resources", fileHandler.List)
		api.GET("/resources/template", fileHandler.Template)
		api.DELETE("/resources/:filename", fileHandler.Delete)
		api.PATCH("/resources/:filename/defaults", fileHandler.UpdateDefaults)
		api.POST("/uploadFile", fileHandler.Upload)
		api.GET("/check/:filename", fileHandler.Check)

		api.POST("/sync/:filename", syncHandler.Sync)
		api.GET("/runs", syncHandler.ListRuns)
		api.GET("/runs/:id", syncHandler.GetRun)
	}
	return router
}
