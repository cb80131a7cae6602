package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"log/slog"

	"github.com/sergeymorykov/events-backend/internal/config"
	"github.com/sergeymorykov/events-backend/internal/database"
	"github.com/sergeymorykov/events-backend/internal/dedup"
	"github.com/sergeymorykov/events-backend/internal/extraction"
	"github.com/sergeymorykov/events-backend/internal/inference"
	"github.com/sergeymorykov/events-backend/internal/ingestion"
	"github.com/sergeymorykov/events-backend/internal/logging"
	"github.com/sergeymorykov/events-backend/internal/metrics"
	"github.com/sergeymorykov/events-backend/internal/server"
)

func main() {
	// A local .env is optional; the environment wins in deployment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting events-backend ingest daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, database.Config{
		URL:                cfg.Database.URL,
		MaxConnections:     cfg.Database.MaxConnections,
		MaxIdleConnections: cfg.Database.MaxIdleConnections,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		ConnectTimeout:     cfg.Database.ConnectTimeout,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(ctx, db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	eventStore := database.NewPostgresEventStore(db)
	vectorIndex := database.NewPostgresVectorIndex(db)
	postRepo := database.NewPostgresPostRepository(db)
	processingRepo := database.NewPostgresProcessingRepository(db)

	client, err := inference.NewClient(cfg.Inference, logger)
	if err != nil {
		logger.Error("failed to create inference client", "error", err)
		os.Exit(1)
	}

	workflow := extraction.NewWorkflow(client, client, cfg.Pipeline.MaxEventsPerPost, logger)
	resolver := dedup.NewResolver(eventStore, vectorIndex, cfg.Pipeline.SimilarityThreshold, logger)

	collector, err := metrics.NewPipelineCollector()
	if err != nil {
		logger.Error("failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	orchestrator := ingestion.NewOrchestrator(
		postRepo,
		processingRepo,
		workflow,
		client,
		resolver,
		collector,
		logger,
		ingestion.Config{
			Concurrency: cfg.Pipeline.Concurrency,
			BatchLimit:  cfg.Pipeline.BatchLimit,
			Interval:    cfg.Pipeline.Interval,
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := server.New(cfg.Server, logger, mux)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("pipeline stopped", "error", err)
	}

	stop()

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
