package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/runlog"
	"news-forecaster/internal/scraper"
	"news-forecaster/internal/storage"
	"news-forecaster/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// cronLog routes cron's own messages through the structured logger.
type cronLog struct{ ctx context.Context }

func (l cronLog) Info(msg string, kv ...any) { logger.Debug(l.ctx, "cron: "+msg, kv...) }
func (l cronLog) Error(err error, msg string, kv ...any) {
	logger.ErrorWithErr(l.ctx, "cron: "+msg, err, kv...)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	scrapeOnly := flag.Bool("scrape-only", false, "only fetch new articles")
	processOnly := flag.Bool("process-only", false, "only analyze stored articles")
	flag.Parse()

	if *scrapeOnly && *processOnly {
		log.Fatal("-scrape-only and -process-only are mutually exclusive")
	}

	must(initializeSystem())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	must(err)

	st, db, err := initializeStore(ctx, cfg)
	must(err)
	defer storage.Close(db)
	defer trace.Shutdown(context.Background())

	failures := runlog.New(cfg.LogDir)
	compressOldLogs(ctx, failures)

	var (
		orch interfaces.Orchestrator
		scr  *scraper.Scraper
	)
	if !*scrapeOnly {
		orch, err = initializeOrchestrator(ctx, cfg, st, failures)
		must(err)
	}
	if !*processOnly {
		scr = initializeScraper(cfg, st, failures)
	}

	// a cycle always finishes once started, even after a shutdown signal
	cycle := func() {
		runCtx := context.WithoutCancel(ctx)
		if scr != nil {
			res, err := scr.Run(runCtx)
			if err != nil {
				logger.ErrorWithErr(runCtx, "Scrape failed", err)
			} else {
				logger.Info(runCtx, "Scrape finished", "seen", res.Seen, "inserted", res.Inserted, "failed", res.Failed)
			}
		}
		if orch != nil {
			if _, err := orch.RunPass(runCtx); err != nil {
				logger.ErrorWithErr(runCtx, "Pass failed", err)
			}
		}
	}

	cycle()
	if *once {
		return
	}

	c := cron.New(cron.WithLogger(cronLog{ctx: ctx}), cron.WithChain(cron.SkipIfStillRunning(cronLog{ctx: ctx})))
	if _, err := c.AddFunc(cfg.Schedule.Cron, cycle); err != nil {
		logger.ErrorWithErr(ctx, "Invalid schedule", err, "cron", cfg.Schedule.Cron)
		os.Exit(1)
	}
	c.Start()
	logger.Info(ctx, "Analyzer started", "schedule", cfg.Schedule.Cron)

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down, waiting for the running cycle")
	<-c.Stop().Done()
}
