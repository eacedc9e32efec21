package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/record"
	"github.com/dvloznov/ledger-import/internal/source"
)

// Importer imports one batch. *importer.Importer implements it.
type Importer interface {
	Import(ctx context.Context, batch *record.Batch) (*importer.Summary, error)
}

// Runner executes import jobs: open the source, read records with the
// reader for its kind, import them as one batch.
type Runner struct {
	importer Importer
	opts     source.Options
	open     func(ctx context.Context, location string) (io.ReadCloser, error)
}

// NewRunner creates a Runner. opts configure the readers.
func NewRunner(im Importer, opts source.Options) *Runner {
	return &Runner{importer: im, opts: opts, open: source.Open}
}

// Handle implements JobHandler.
func (r *Runner) Handle(ctx context.Context, job *ImportJob) error {
	log := logger.FromContext(ctx)

	reader, err := source.New(source.Kind(job.Source), r.opts)
	if err != nil {
		return fmt.Errorf("Handle: %w: %w", ErrNoRetry, err)
	}

	rc, err := r.open(ctx, job.Location)
	if err != nil {
		return fmt.Errorf("Handle: opening %s: %w", job.Location, err)
	}
	defer rc.Close()

	records, err := reader.Read(ctx, rc)
	if err != nil {
		if errors.Is(err, source.ErrMalformed) || errors.Is(err, source.ErrMissingColumn) {
			err = fmt.Errorf("%w: %w", ErrNoRetry, err)
		}
		return fmt.Errorf("Handle: reading %s: %w", job.Location, err)
	}
	log.Debug().Int("records", len(records)).Msg("Source read")

	batch := &record.Batch{
		Source:        job.Source,
		AccountID:     job.AccountID,
		Authoritative: job.Authoritative,
		Records:       records,
	}
	summary, err := r.importer.Import(ctx, batch)
	job.BatchID = batch.ID
	if err != nil {
		var be *importer.BatchError
		if errors.As(err, &be) {
			job.ErrorKey = be.Key
			err = fmt.Errorf("%w: %w", ErrNoRetry, err)
		}
		return fmt.Errorf("Handle: %w", err)
	}

	job.Result = &Result{
		Summary: summary.String(),
		Records: summary.Records,
		Created: summary.Created,
		Updated: summary.Updated,
		Deleted: summary.Deleted,
		Flagged: summary.Flagged,
		Held:    summary.Held,
	}
	return nil
}
