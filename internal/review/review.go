// Package review routes merge warnings to somewhere a person will look at
// them.
package review

import (
	"context"
	"errors"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/merge"
	"github.com/dvloznov/ledger-import/internal/money"
)

// LogSink writes each warning to the context logger.
type LogSink struct{}

// Flag implements importer.Sink.
func (LogSink) Flag(ctx context.Context, w merge.Warning) error {
	log := logger.FromContext(ctx)
	log.Warn().
		Str("record_key", w.Key).
		Str("candidate_tx", w.CandidateTx).
		Str("matched_tx", w.MatchedTx).
		Str("date", w.Date.String()).
		Str("amount", money.Format(w.Amount)).
		Msg("Review needed: " + w.Message)
	return nil
}

// Multi fans a warning out to every sink and joins their errors.
type Multi []importer.Sink

// Flag implements importer.Sink.
func (m Multi) Flag(ctx context.Context, w merge.Warning) error {
	var errs []error
	for _, s := range m {
		if err := s.Flag(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ importer.Sink = LogSink{}
	_ importer.Sink = Multi(nil)
)
