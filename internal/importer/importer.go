// Package importer drives one import batch end to end: validation, matching,
// order decomposition and merging, all committed as a single unit.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/match"
	"github.com/dvloznov/ledger-import/internal/merge"
	"github.com/dvloznov/ledger-import/internal/orders"
	"github.com/dvloznov/ledger-import/internal/record"
)

// Sink receives merges that need manual review.
type Sink interface {
	Flag(ctx context.Context, w merge.Warning) error
}

// Observer is told about every finished batch, successful or not.
type Observer interface {
	ObserveBatch(source string, summary *Summary, err error, elapsed time.Duration)
}

// Importer imports batches into one book.
type Importer struct {
	book       *ledger.Book
	cfg        Config
	sink       Sink
	observer   Observer
	decomposer *orders.Decomposer
	pipeline   *Pipeline
}

// Option configures an Importer.
type Option func(*Importer)

// WithSink routes review warnings to s.
func WithSink(s Sink) Option {
	return func(im *Importer) { im.sink = s }
}

// WithObserver reports batch outcomes to o.
func WithObserver(o Observer) Option {
	return func(im *Importer) { im.observer = o }
}

// New creates an Importer writing into book.
func New(book *ledger.Book, cfg Config, opts ...Option) *Importer {
	im := &Importer{
		book:       book,
		cfg:        cfg,
		decomposer: orders.NewDecomposer(),
		pipeline:   NewImportPipeline(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import processes batch. On any error nothing is written to the ledger and
// the error wraps a *BatchError naming the offending record or order.
func (im *Importer) Import(ctx context.Context, batch *record.Batch) (summary *Summary, err error) {
	start := time.Now()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	log := logger.FromContext(ctx).With().
		Str("batch_id", batch.ID).
		Str("source", batch.Source).
		Str("account_id", batch.AccountID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	summary = &Summary{BatchID: batch.ID, Source: batch.Source}
	defer func() {
		if im.observer != nil {
			im.observer.ObserveBatch(batch.Source, summary, err, time.Since(start))
		}
	}()

	cs, err := im.book.Begin()
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}
	defer cs.Discard()

	state := &ImportState{
		Batch:      batch,
		Config:     im.cfg,
		Changeset:  cs,
		Decomposer: im.decomposer,
		Finder:     match.NewFinder(cs, im.cfg.TieBreak),
		Summary:    summary,
		matched:    make(map[*ledger.Entry]bool),
	}

	log.Info().Int("records", len(batch.Records)).Msg("Import started")
	if err := im.pipeline.Execute(ctx, state); err != nil {
		var be *BatchError
		if errors.As(err, &be) {
			log.Error().Err(be.Err).Str("record_key", be.Key).Msg("Import failed")
		} else {
			log.Error().Err(err).Msg("Import failed")
		}
		return nil, fmt.Errorf("Import: %w", err)
	}

	for _, w := range summary.Warnings {
		log.Warn().
			Str("record_key", w.Key).
			Str("candidate_tx", w.CandidateTx).
			Str("matched_tx", w.MatchedTx).
			Msg(w.Message)
		if im.sink == nil {
			continue
		}
		if err := im.sink.Flag(ctx, w); err != nil {
			log.Error().Err(err).Str("record_key", w.Key).Msg("Failed to flag warning for review")
		}
	}

	log.Info().
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("deleted", summary.Deleted).
		Int("held", len(summary.Held)).
		Dur("elapsed", time.Since(start)).
		Msg("Import committed")
	return summary, nil
}
