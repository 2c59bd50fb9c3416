package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"news-forecaster/internal/logger"
	"news-forecaster/internal/runlog"
	"news-forecaster/internal/scraper"
	"news-forecaster/internal/storage"
	"news-forecaster/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	db, err := storage.Open(cfg.Database.Path, cfg.Database.BusyTimeoutMS)
	if err != nil {
		log.Fatal(err)
	}
	defer storage.Close(db)

	st := storage.New(db, nil, storage.Options{
		MaxAttempts:    cfg.Storage.MaxAttempts,
		InitialBackoff: cfg.Storage.InitialBackoff,
	})
	s := scraper.New(cfg.Scraper.FeedURL, st, scraper.Options{
		UserAgent: cfg.Scraper.UserAgent,
		Failures:  runlog.New(cfg.LogDir),
	})

	res, err := s.Run(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Scrape failed", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Scrape finished", "seen", res.Seen, "skipped", res.Skipped, "inserted", res.Inserted, "failed", res.Failed)
}
