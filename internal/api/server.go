// Package api provides the HTTP server for submitting imports and inspecting
// the ledger they produce.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/api/handlers"
	"github.com/dvloznov/ledger-import/internal/api/middleware"
	"github.com/dvloznov/ledger-import/internal/jobs"
)

// Server is the import API server.
type Server struct {
	log       zerolog.Logger
	publisher jobs.Publisher
	jobs      jobs.JobStore
	book      handlers.Ledger
	bucket    string
	metrics   http.Handler
	now       func() time.Time
}

// NewServer creates a new API server.
func NewServer(log zerolog.Logger, publisher jobs.Publisher, store jobs.JobStore, book handlers.Ledger) *Server {
	return &Server{
		log:       log,
		publisher: publisher,
		jobs:      store,
		book:      book,
		now:       time.Now,
	}
}

// SetUploadBucket enables statement uploads into bucket.
func (s *Server) SetUploadBucket(bucket string) { s.bucket = bucket }

// SetMetricsHandler mounts h at /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) { s.metrics = h }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	imports := handlers.NewImportsHandler(s.publisher, s.bucket)
	jobsHandler := handlers.NewJobsHandler(s.jobs)
	accounts := handlers.NewAccountsHandler(s.book)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.log))
	r.Use(middleware.Recovery)
	r.Use(chimw.Timeout(5 * time.Minute))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   s.now().Format(time.RFC3339),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/imports", imports.CreateImport)
		r.Post("/imports/upload", imports.UploadImport)
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)
		r.Get("/accounts", accounts.ListAccounts)
		r.Get("/accounts/{id}/entries", accounts.ListEntries)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}
