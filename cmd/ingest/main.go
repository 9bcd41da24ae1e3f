package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/marcusb/corpusd/internal/config"
	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/gateway"
	"github.com/marcusb/corpusd/internal/logger"
	"github.com/marcusb/corpusd/internal/repository"
	"github.com/marcusb/corpusd/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "corpusd-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	file := flag.String("file", "", "Path to the CSV file to ingest")
	projectID := flag.String("project", "", "Project id the records belong to")
	recordType := flag.String("type", "TASK", "Record type: TASK or FEEDBACK")
	sourceName := flag.String("source", "cli", "Source label stored on each record")
	keywords := flag.String("keywords", "", "Comma-separated keyword filter; rows matching none are skipped")
	embed := flag.Bool("embed", false, "Generate embeddings after storing")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *file == "" || *projectID == "" {
		appLogger.Fatal("Both -file and -project are required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	payload, err := os.ReadFile(*file)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read CSV file")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories and services
	recordRepo := repository.NewRecordRepository(db)
	ingestJobRepo := repository.NewIngestJobRepository(db)
	gatewayClient := gateway.NewClient(&cfg.Gateway)

	vectorizer := service.NewVectorizer(recordRepo, ingestJobRepo, gatewayClient, service.VectorizerConfig{
		BatchSize:    cfg.Ingest.VectorBatchSize,
		MaxFailures:  cfg.Ingest.MaxFailures,
		RetryBackoff: cfg.Ingest.RetryBackoff,
	})
	ingestService := service.NewIngestService(
		recordRepo,
		ingestJobRepo,
		service.NewDuplicateFilter(recordRepo),
		vectorizer,
		service.NewPayloadCache(),
		resty.New(),
		service.IngestConfig{ChunkSize: cfg.Ingest.ChunkSize},
	)

	var filterKeywords []string
	if *keywords != "" {
		for _, kw := range strings.Split(*keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				filterKeywords = append(filterKeywords, kw)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	jobID, err := ingestService.Submit(ctx, service.IngestKindCSV, string(payload), service.IngestOptions{
		ProjectID:          *projectID,
		Source:             *sourceName,
		Type:               domain.RecordType(*recordType),
		FilterKeywords:     filterKeywords,
		GenerateEmbeddings: *embed,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to submit ingest job")
	}

	appLogger.WithFields(logger.Fields{
		"job_id":  jobID,
		"project": *projectID,
		"type":    *recordType,
	}).Info("Ingestion started")

	// Poll until the background queue finishes the job
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := ingestService.Cancel(context.Background(), jobID); err != nil {
				appLogger.WithError(err).Warn("Failed to cancel job")
			}
			appLogger.Info("Cancellation requested, exiting")
			return
		case <-ticker.C:
		}

		job, err := ingestService.Status(ctx, jobID)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to poll job status")
		}
		if !job.Status.Terminal() {
			continue
		}

		fields := logger.Fields{
			"status":  job.Status,
			"total":   job.TotalRecords,
			"saved":   job.SavedCount,
			"skipped": job.SkippedCount,
		}
		if job.Error != "" {
			fields["error"] = job.Error
		}
		appLogger.WithFields(fields).Info("Ingestion finished")
		if job.Status != domain.IngestStatusCompleted {
			os.Exit(1)
		}
		return
	}
}
