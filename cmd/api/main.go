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
	"news-forecaster/internal/server"
	"news-forecaster/internal/storage"
	"news-forecaster/internal/store"
	"news-forecaster/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	if err := trace.Init("dev"); err != nil {
		log.Printf("failed to initialize tracer: %v", err)
	}
	defer trace.Shutdown(context.Background())

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

	// read-only: no price anchor needed
	st := storage.New(db, nil, storage.Options{})

	if err := server.New(cfg.Server.Addr, st).Run(ctx); err != nil {
		logger.ErrorWithErr(ctx, "API server stopped", err)
		os.Exit(1)
	}
}
