package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/txgroup/internal/api/handlers"
	"github.com/dvloznov/txgroup/internal/api/middleware"
	"github.com/dvloznov/txgroup/internal/app"
	"github.com/dvloznov/txgroup/internal/config"
	"github.com/dvloznov/txgroup/internal/jobs/inmemory"
	"github.com/dvloznov/txgroup/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("TXGROUP_CONFIG"), "Path to a YAML config file (or set TXGROUP_CONFIG env)")
		port       = flag.Int("port", 0, "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := logger.WithContext(context.Background(), log)

	if cfg.GCS.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - only gs:// URIs with an explicit bucket can be registered")
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Config{
		BufferSize: cfg.Jobs.BufferSize,
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		Backoff:    cfg.Jobs.Backoff,
	}, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.Jobs.Workers).Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, application.Service.HandleJob); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	mux := handlers.NewRouter(
		handlers.NewBatchesHandler(application.Service, jobQueue),
		handlers.NewCategoriesHandler(application.Service),
		handlers.NewJobsHandler(jobStore),
	)

	// Create HTTP server
	addr := ":" + strconv.Itoa(cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      middleware.Chain(mux, log, cfg.HTTP.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
