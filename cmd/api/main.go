package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-import/internal/api"
	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/metrics"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config.yaml (defaults to ./config.yaml when present)")
		retries    = flag.Int("retries", 2, "Retries for transient import failures")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithWriter(os.Stdout).Level(logger.ParseLevel(cfg.Log.Level))
	ctx := logger.WithContext(context.Background(), log)

	if cfg.API.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - statement uploads will be disabled")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer a.Close()

	// Initialize job infrastructure
	queueOpts := []inmemory.QueueOption{inmemory.WithRetries(*retries, time.Second)}
	if a.Recorder != nil {
		queueOpts = append(queueOpts, inmemory.WithDepthObserver(a.Recorder.SetQueueDepth))
	}
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, queueOpts...)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting import worker")
	if err := jobQueue.Start(workerCtx, a.Runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start import worker")
	}

	srv := api.NewServer(log, jobQueue, jobStore, a.Book)
	srv.SetUploadBucket(cfg.API.Bucket)
	if a.Registry != nil {
		srv.SetMetricsHandler(metrics.Handler(a.Registry))
	}

	port := fmt.Sprintf("%d", cfg.API.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
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

	// Let the in-flight import finish before the ledger closes
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
