// Package app assembles the ledger, importer and job runner from config.
// The API server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dvloznov/ledger-import/internal/config"
	bq "github.com/dvloznov/ledger-import/internal/infra/bigquery"
	"github.com/dvloznov/ledger-import/internal/infra/sqlite"
	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/jobs"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/metrics"
	"github.com/dvloznov/ledger-import/internal/review"
	"github.com/dvloznov/ledger-import/internal/source"
)

// AccountStore is implemented by both ledger backends.
type AccountStore interface {
	ledger.Store
	io.Closer
	UpsertAccount(ctx context.Context, a *ledger.Account) error
}

// App holds the wired services.
type App struct {
	Config   *config.Config
	Store    AccountStore
	Book     *ledger.Book
	Importer *importer.Importer
	Runner   *jobs.Runner
	Registry *prometheus.Registry
	Recorder *metrics.Recorder
}

// OpenStore opens the ledger backend selected by cfg.
func OpenStore(ctx context.Context, cfg config.LedgerConfig) (AccountStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return s, nil
	case config.DriverBigQuery:
		s, err := bq.NewStore(ctx, cfg.Project, cfg.Dataset)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("OpenStore: %q: %w", cfg.Driver, config.ErrUnknownDriver)
}

// New opens the ledger and wires the importer around it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	imCfg, err := cfg.Importer()
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	book, err := ledger.Open(ctx, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	a := &App{Config: cfg, Store: store, Book: book}

	opts := []importer.Option{importer.WithSink(Sinks(cfg.Notion))}
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Recorder = metrics.NewRecorder(a.Registry)
		opts = append(opts, importer.WithObserver(a.Recorder))
	}
	a.Importer = importer.New(book, imCfg, opts...)

	srcOpts := cfg.SourceOptions()
	if gen, err := source.NewGenerator(ctx); err != nil {
		log.Warn().Err(err).Msg("No Gemini client, pdf and orders imports are disabled")
	} else {
		srcOpts.Model = gen
	}
	a.Runner = jobs.NewRunner(a.Importer, srcOpts)

	log.Info().
		Str("driver", cfg.Ledger.Driver).
		Int("accounts", len(book.Accounts())).
		Int("transactions", len(book.Transactions())).
		Msg("Ledger ready")
	return a, nil
}

// Sinks builds the review sink: the log always, plus Notion when configured.
func Sinks(cfg config.NotionConfig) importer.Sink {
	sinks := review.Multi{review.LogSink{}}
	if cfg.Token != "" && cfg.DatabaseID != "" {
		sinks = append(sinks, review.NewNotionSink(review.NewNotionClient(cfg.Token), cfg.DatabaseID))
	}
	return sinks
}

// Close releases the ledger backend.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
