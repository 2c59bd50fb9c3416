package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"news-forecaster/internal/engine"
	"news-forecaster/internal/engine/engineobs"
	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/llm"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/price"
	"news-forecaster/internal/runlog"
	"news-forecaster/internal/scraper"
	"news-forecaster/internal/storage"
	"news-forecaster/internal/store"
	"news-forecaster/internal/trace"
)

var version = "dev"

// initializeSystem loads .env and sets up logging and tracing
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(version); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs gzips failure logs older than ANALYZER_LOG_RETENTION_DAYS
func compressOldLogs(ctx context.Context, failures *runlog.Log) {
	v := os.Getenv("ANALYZER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid ANALYZER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := failures.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeStore opens the database and builds the store with a Yahoo price anchor
func initializeStore(ctx context.Context, cfg *store.Config) (*storage.Store, *gorm.DB, error) {
	db, err := storage.Open(cfg.Database.Path, cfg.Database.BusyTimeoutMS)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open database", err, "path", cfg.Database.Path)
		return nil, nil, err
	}

	src := price.NewYahooSource(cfg.Price.BaseURL)
	anchor := price.NewAnchor(src, price.Options{
		MaxAttempts:    cfg.Price.MaxAttempts,
		InitialBackoff: cfg.Price.InitialBackoff,
	})

	st := storage.New(db, anchor, storage.Options{
		MaxAttempts:    cfg.Storage.MaxAttempts,
		InitialBackoff: cfg.Storage.InitialBackoff,
	})
	return st, db, nil
}

// initializeOrchestrator wires the router and store into an observable orchestrator
func initializeOrchestrator(ctx context.Context, cfg *store.Config, st interfaces.AnalysisStore, failures *runlog.Log) (interfaces.Orchestrator, error) {
	individual, aggregated, err := cfg.ReadInstructions()
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to read system instructions", err)
		return nil, err
	}

	router := llm.NewRouter(cfg)
	orch := engine.New(cfg, individual, aggregated, router, st, engine.WithFailureLog(failures))

	logger.Info(ctx, "Orchestrator ready",
		"models", cfg.Models,
		"forecast_days", cfg.Analysis.ForecastDays,
		"max_priority", *cfg.Analysis.MaxPriority,
	)
	return engineobs.Wrap(orch), nil
}

func initializeScraper(cfg *store.Config, st interfaces.ArticleSink, failures *runlog.Log) *scraper.Scraper {
	return scraper.New(cfg.Scraper.FeedURL, st, scraper.Options{
		UserAgent: cfg.Scraper.UserAgent,
		Failures:  failures,
	})
}
