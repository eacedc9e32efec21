package jobs

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/record"
	"github.com/dvloznov/ledger-import/internal/source"
)

// MockImporter implements Importer for testing.
type MockImporter struct {
	ImportFunc func(ctx context.Context, batch *record.Batch) (*importer.Summary, error)
	batches    []*record.Batch
}

func (m *MockImporter) Import(ctx context.Context, batch *record.Batch) (*importer.Summary, error) {
	m.batches = append(m.batches, batch)
	batch.ID = "batch-1"
	if m.ImportFunc != nil {
		return m.ImportFunc(ctx, batch)
	}
	return &importer.Summary{BatchID: batch.ID, Source: batch.Source, Records: len(batch.Records), Imported: len(batch.Records), Created: len(batch.Records)}, nil
}

const statementCSV = "Date,Amount,Description\n2023-03-01,-19.99,Coffee\n2023-03-02,-5.00,Bus\n"

func newTestRunner(im Importer, files map[string]string) *Runner {
	r := NewRunner(im, source.Options{Columns: source.DefaultColumns()})
	r.open = func(ctx context.Context, location string) (io.ReadCloser, error) {
		content, ok := files[location]
		if !ok {
			return nil, os.ErrNotExist
		}
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return r
}

func TestRunner_Handle(t *testing.T) {
	im := &MockImporter{}
	r := newTestRunner(im, map[string]string{"statement.csv": statementCSV})

	job := &ImportJob{JobID: "job-1", Source: "csv", Location: "statement.csv", AccountID: "card", Authoritative: true}
	if err := r.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	if len(im.batches) != 1 {
		t.Fatalf("importer called %d times, want 1", len(im.batches))
	}
	b := im.batches[0]
	if b.Source != "csv" || b.AccountID != "card" || !b.Authoritative {
		t.Errorf("batch header = %+v", b)
	}
	var amounts []int64
	for _, rec := range b.Records {
		amounts = append(amounts, rec.Amount)
	}
	if diff := cmp.Diff([]int64{-1999, -500}, amounts); diff != "" {
		t.Errorf("record amounts mismatch (-want +got):\n%s", diff)
	}

	if job.BatchID != "batch-1" {
		t.Errorf("BatchID = %q, want batch-1", job.BatchID)
	}
	if job.Result == nil || job.Result.Created != 2 || job.Result.Records != 2 {
		t.Fatalf("Result = %+v", job.Result)
	}
	if !strings.Contains(job.Result.Summary, "2 records") {
		t.Errorf("summary = %q", job.Result.Summary)
	}
}

func TestRunner_HandleErrors(t *testing.T) {
	ambiguous := &importer.BatchError{BatchID: "batch-1", Key: "111", Err: errors.New("ambiguous return")}

	tests := []struct {
		name      string
		job       ImportJob
		importErr error
		wantRetry bool
		wantKey   string
		wantIs    error
	}{
		{
			name:   "unknown source kind",
			job:    ImportJob{Source: "mt940", Location: "statement.csv", AccountID: "card"},
			wantIs: source.ErrUnknownKind,
		},
		{
			name:      "missing file is retried",
			job:       ImportJob{Source: "csv", Location: "missing.csv", AccountID: "card"},
			wantRetry: true,
			wantIs:    os.ErrNotExist,
		},
		{
			name:   "missing column",
			job:    ImportJob{Source: "csv", Location: "bad.csv", AccountID: "card"},
			wantIs: source.ErrMissingColumn,
		},
		{
			name:      "batch error",
			job:       ImportJob{Source: "csv", Location: "statement.csv", AccountID: "card"},
			importErr: ambiguous,
			wantKey:   "111",
			wantIs:    ambiguous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := &MockImporter{
				ImportFunc: func(ctx context.Context, batch *record.Batch) (*importer.Summary, error) {
					return nil, tt.importErr
				},
			}
			r := newTestRunner(im, map[string]string{
				"statement.csv": statementCSV,
				"bad.csv":       "When,HowMuch\n2023-03-01,1.00\n",
			})

			job := tt.job
			err := r.Handle(context.Background(), &job)
			if err == nil {
				t.Fatal("Handle() succeeded")
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("Handle() error = %v, want %v", err, tt.wantIs)
			}
			if got := !errors.Is(err, ErrNoRetry); got != tt.wantRetry {
				t.Errorf("retryable = %v, want %v (error %v)", got, tt.wantRetry, err)
			}
			if job.ErrorKey != tt.wantKey {
				t.Errorf("ErrorKey = %q, want %q", job.ErrorKey, tt.wantKey)
			}
			if job.Result != nil {
				t.Errorf("failed job has a result: %+v", job.Result)
			}
		})
	}
}
