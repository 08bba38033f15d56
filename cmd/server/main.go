package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/trendlens/trendlens-go/internal/api"
	"github.com/trendlens/trendlens-go/internal/artifacts"
	"github.com/trendlens/trendlens-go/internal/cache"
	"github.com/trendlens/trendlens-go/internal/config"
	"github.com/trendlens/trendlens-go/internal/database"
	"github.com/trendlens/trendlens-go/internal/logging"
	"github.com/trendlens/trendlens-go/internal/services"
	"github.com/trendlens/trendlens-go/internal/storage"
	"github.com/trendlens/trendlens-go/internal/telemetry"
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.Environment)

	provider, err := telemetry.Init(cfg.Telemetry.Enabled, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize telemetry")
	}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	store := storage.NewStore(db.Pool, cfg.Analysis.HistoryRetention)
	versioner := artifacts.NewVersioner(store, cfg.Analysis.HistoryRetention, logger)
	artifactCache := cache.NewRedisArtifactCache(redis.Client, time.Hour)
	service := services.NewAnalysisService(cfg, store, versioner, artifactCache, logger)

	// Periodic trigger for scheduled runs; the HTTP trigger stays
	// available either way.
	var scheduler *cron.Cron
	if cfg.Scheduler.Enabled {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Scheduler.CronSpec, func() {
			if _, _, err := service.RunAnalysis(context.Background(), false); err != nil {
				logger.WithError(err).Error("Scheduled analysis run failed")
			}
		})
		if err != nil {
			logger.WithError(err).Fatal("Invalid scheduler cron spec")
		}
		scheduler.Start()
		logger.WithField("cron_spec", cfg.Scheduler.CronSpec).Info("Scheduler started")
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, db, redis, service, telemetry.ServiceVersion, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := provider.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Telemetry shutdown failed")
	}

	logger.Info("Server exited")
}
