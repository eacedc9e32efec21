package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/jobs"
	"github.com/dvloznov/ledger-import/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/source"
)

// The worker imports every statement in a directory in name order,
// one batch per file, and exits once all of them have finished.
func main() {
	var (
		configPath    = flag.String("config", "", "Path to config.yaml")
		dir           = flag.String("dir", "", "Directory of statements to import (required)")
		accountID     = flag.String("account", "", "Capital account the statements describe (required)")
		authoritative = flag.Bool("authoritative", false, "Let the statements supersede matched entries")
		retries       = flag.Int("retries", 2, "Retries for transient failures")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)

	if *dir == "" || *accountID == "" {
		log.Fatal().Msg("Usage: worker -dir PATH -account ID")
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	locations, err := statements(*dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list statements")
	}
	if len(locations) == 0 {
		log.Info().Str("dir", *dir).Msg("No statements to import")
		return
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer a.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(len(locations), jobStore, inmemory.WithRetries(*retries, time.Second))

	for i, loc := range locations {
		kind, _ := source.KindFromFilename(loc)
		job := &jobs.ImportJob{
			JobID:         fmt.Sprintf("%04d-%s", i+1, filepath.Base(loc)),
			Source:        string(kind),
			Location:      loc,
			AccountID:     *accountID,
			Authoritative: *authoritative,
			// Keeps the jobs listed in file order.
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		if err := jobQueue.PublishImport(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to enqueue import job")
		}
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, a.Runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}
	log.Info().Int("statements", len(locations)).Msg("Worker started")

	failed := waitForJobs(ctx, jobStore, len(locations))

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for the in-flight job
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if failed > 0 || ctx.Err() != nil {
		log.Error().Int("failed", failed).Msg("Worker finished with failures")
		a.Close()
		os.Exit(1)
	}
	log.Info().Msg("All statements imported")
}

// statements lists the importable files in dir, sorted by name. Order
// histories are skipped; they share the csv extension with statements and
// are imported explicitly.
func statements(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := source.KindFromFilename(e.Name()); ok {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// waitForJobs polls until every job is completed or failed, logging each
// outcome once, and returns the number that failed.
func waitForJobs(ctx context.Context, store jobs.JobStore, total int) int {
	log := logger.FromContext(ctx)
	reported := make(map[string]bool)
	failed := 0

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for len(reported) < total {
		select {
		case <-ctx.Done():
			log.Warn().Msg("Interrupted, abandoning queued statements")
			return failed
		case <-ticker.C:
		}

		list, err := store.ListJobs(ctx, jobs.JobFilter{})
		if err != nil {
			log.Error().Err(err).Msg("Failed to list jobs")
			continue
		}
		for _, job := range list {
			if reported[job.JobID] {
				continue
			}
			switch job.Status {
			case jobs.JobStatusCompleted:
				reported[job.JobID] = true
				log.Info().Str("location", job.Location).Msg(job.Result.Summary)
			case jobs.JobStatusFailed:
				reported[job.JobID] = true
				failed++
				log.Error().Str("location", job.Location).Str("record", job.ErrorKey).Msg(job.Error)
			}
		}
	}
	return failed
}
