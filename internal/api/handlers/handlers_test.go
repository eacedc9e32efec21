package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledger-import/internal/jobs"
)

type publisherFunc func(ctx context.Context, job *jobs.ImportJob) error

func (f publisherFunc) PublishImport(ctx context.Context, job *jobs.ImportJob) error {
	return f(ctx, job)
}

func (f publisherFunc) Close() error { return nil }

func TestImportsHandler_UploadImport(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		uploadErr  error
		wantStatus int
		wantJob    *jobs.ImportJob
	}{
		{
			name:       "uploads and enqueues",
			query:      "filename=../march.xlsx&account_id=card&authoritative=true",
			wantStatus: http.StatusAccepted,
			wantJob:    &jobs.ImportJob{Source: "xlsx", AccountID: "card", Authoritative: true},
		},
		{
			name:       "explicit orders kind",
			query:      "filename=orders.csv&account_id=card&source=orders",
			wantStatus: http.StatusAccepted,
			wantJob:    &jobs.ImportJob{Source: "orders", AccountID: "card"},
		},
		{
			name:       "missing filename",
			query:      "account_id=card",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "upload fails",
			query:      "filename=march.csv&account_id=card",
			uploadErr:  errors.New("permission denied"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var published []*jobs.ImportJob
			h := NewImportsHandler(publisherFunc(func(ctx context.Context, job *jobs.ImportJob) error {
				job.JobID = "job-1"
				published = append(published, job)
				return nil
			}), "statements")
			h.now = func() time.Time { return time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC) }

			var uploadedURI, uploadedBody string
			h.upload = func(ctx context.Context, uri string, r io.Reader) error {
				b, _ := io.ReadAll(r)
				uploadedURI, uploadedBody = uri, string(b)
				return tt.uploadErr
			}

			req := httptest.NewRequest(http.MethodPost, "/api/imports/upload?"+tt.query, strings.NewReader("Date,Amount\n"))
			rec := httptest.NewRecorder()
			h.UploadImport(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantJob == nil {
				if len(published) != 0 {
					t.Errorf("published %d jobs on failure", len(published))
				}
				return
			}

			if !strings.HasPrefix(uploadedURI, "gs://statements/uploads/2023/03/10/") {
				t.Errorf("uploaded to %q", uploadedURI)
			}
			if uploadedBody != "Date,Amount\n" {
				t.Errorf("uploaded body = %q", uploadedBody)
			}
			if len(published) != 1 {
				t.Fatalf("published %d jobs, want 1", len(published))
			}
			got := published[0]
			if got.Location != uploadedURI || got.Source != tt.wantJob.Source ||
				got.AccountID != tt.wantJob.AccountID || got.Authoritative != tt.wantJob.Authoritative {
				t.Errorf("job = %+v, want %+v at %s", got, tt.wantJob, uploadedURI)
			}
		})
	}
}

func TestResolveKind(t *testing.T) {
	tests := []struct {
		kind, filename string
		want           string
		wantErr        bool
	}{
		{"", "march.QFX", "ofx", false},
		{"", "march.pdf", "pdf", false},
		{"orders", "orders.csv", "orders", false},
		{"", "orders.json", "", true},
		{"camt", "march.xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.filename, func(t *testing.T) {
			got, err := resolveKind(tt.kind, tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveKind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("resolveKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
