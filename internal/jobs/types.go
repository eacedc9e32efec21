// Package jobs queues import batches so they run one at a time against the
// ledger.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueClosed = errors.New("queue is closed")
	ErrMissingJob  = errors.New("job ID is required")
	// ErrNoRetry marks handler errors that retrying cannot fix, e.g. an
	// ambiguous batch.
	ErrNoRetry = errors.New("not retryable")
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the batch was committed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed and nothing was written.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ImportJob imports one source file into the ledger.
type ImportJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Source is the reader kind: csv, xlsx, qif, ofx, pdf or orders.
	Source string `json:"source"`

	// Location is a local path or a gs:// URI.
	Location string `json:"location"`

	// AccountID is the capital account the source describes.
	AccountID string `json:"account_id"`

	// Authoritative lets the source's amounts supersede matched entries.
	Authoritative bool `json:"authoritative,omitempty"`

	// BatchID is the import batch the job ran as.
	BatchID string `json:"batch_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is filled in once the batch is committed.
	Result *Result `json:"result,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
	// ErrorKey names the record or order that failed the batch.
	ErrorKey string `json:"error_key,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Result is what a committed batch did.
type Result struct {
	Summary string   `json:"summary"`
	Records int      `json:"records"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Flagged int      `json:"flagged"`
	Held    []string `json:"held,omitempty"`
}

// Publisher enqueues jobs.
type Publisher interface {
	// PublishImport enqueues an import job.
	PublishImport(ctx context.Context, job *ImportJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for the in-flight job to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may fill in the job's result fields.
type JobHandler func(ctx context.Context, job *ImportJob) error

// JobStore keeps job state for status queries.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ImportJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	AccountID string
	Source    string
	Status    JobStatus

	Limit  int
	Offset int
}
