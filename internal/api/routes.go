package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/api/handlers"
	"github.com/trendlens/trendlens-go/internal/database"
)

// SetupRoutes registers the health endpoint, the run trigger and the
// read-only presentation routes.
func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, service handlers.AnalysisRunner, version string, logger *logrus.Logger) {
	healthHandler := handlers.NewHealthHandler(db, redis, version)
	router.GET("/health", healthHandler.Check)

	analysisHandler := handlers.NewAnalysisHandler(service, logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		analysis := v1.Group("/analysis")
		{
			analysis.POST("/run", analysisHandler.TriggerRun)
			analysis.GET("/latest", analysisHandler.GetLatest)
			analysis.GET("/latest/correlation", analysisHandler.GetLatestCorrelation)
			analysis.GET("/latest/causality", analysisHandler.GetLatestCausality)
			analysis.GET("/latest/forecast", analysisHandler.GetLatestForecast)
			analysis.GET("/history", analysisHandler.GetHistory)
		}
	}
}
