package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-assistant/internal/api/handlers"
	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/app"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()

	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set - admin endpoints are open")
	}

	// Start job consumer in background
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := a.Queue.Start(workerCtx, a.IngestJobHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	h := &handlers.Handlers{
		Conversations: handlers.NewConversationsHandler(a.History, log),
		Chat:          handlers.NewChatHandler(a.Agent, a.Trace, log),
		Admin:         handlers.NewAdminHandler(a.Ingestor, a.Storage, a.Queue, int64(cfg.MaxUploadMB)<<20, log),
		Jobs:          handlers.NewJobsHandler(a.JobStore, log),
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Chain(h.Routes(), log, cfg.AdminToken),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// A turn may run several model calls and tools.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight ingestion jobs finish before the stores close.
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
