package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/marcusb/corpusd/internal/api"
	"github.com/marcusb/corpusd/internal/api/middleware"
	"github.com/marcusb/corpusd/internal/config"
	"github.com/marcusb/corpusd/internal/gateway"
	"github.com/marcusb/corpusd/internal/logger"
	"github.com/marcusb/corpusd/internal/repository"
	"github.com/marcusb/corpusd/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		ServiceName: "corpusd-api",
	})
	logger.SetDefaultLogger(appLogger)

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	recordRepo := repository.NewRecordRepository(db)
	ingestJobRepo := repository.NewIngestJobRepository(db)
	analyticsJobRepo := repository.NewAnalyticsJobRepository(db)
	projectRepo := repository.NewProjectRepository(db)

	// Initialize model gateway
	gatewayClient := gateway.NewClient(&cfg.Gateway)
	pdfExtractor := gateway.NewPDFExtractor()

	// Initialize services
	duplicateFilter := service.NewDuplicateFilter(recordRepo)
	vectorizer := service.NewVectorizer(recordRepo, ingestJobRepo, gatewayClient, service.VectorizerConfig{
		BatchSize:    cfg.Ingest.VectorBatchSize,
		MaxFailures:  cfg.Ingest.MaxFailures,
		RetryBackoff: cfg.Ingest.RetryBackoff,
	})
	ingestService := service.NewIngestService(
		recordRepo,
		ingestJobRepo,
		duplicateFilter,
		vectorizer,
		service.NewPayloadCache(),
		resty.New(),
		service.IngestConfig{ChunkSize: cfg.Ingest.ChunkSize},
	)
	similarityService := service.NewSimilarityService(recordRepo, gatewayClient, service.SimilarityConfig{
		DefaultLimit:    cfg.Similarity.DefaultLimit,
		RerankThreshold: cfg.Similarity.RerankThreshold,
	})
	alignmentService := service.NewAlignmentService(
		recordRepo,
		analyticsJobRepo,
		projectRepo,
		gatewayClient,
		pdfExtractor,
	)

	// Setup router
	router := api.SetupRouter(api.RouterConfig{
		Ingest:     ingestService,
		Similarity: similarityService,
		Alignment:  alignmentService,
		Records:    recordRepo,
		Projects:   projectRepo,
		Mode:       cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
