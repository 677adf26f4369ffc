package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-assistant/internal/app"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/inbox"
	"github.com/dvloznov/finance-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	watcher, err := inbox.NewWatcher(cfg.InboxPath(), a.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create inbox watcher")
	}

	// Workers outlive ctx so queued documents can finish during shutdown.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if err := a.Queue.Start(workerCtx, a.IngestJobHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Str("inbox", watcher.Dir()).Msg("Worker service started, waiting for documents...")

	if err := watcher.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Inbox watcher stopped")
	}

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
