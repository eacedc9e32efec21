package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dvloznov/ledger-import/internal/api/middleware"
	"github.com/dvloznov/ledger-import/internal/jobs"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
	"github.com/dvloznov/ledger-import/internal/money"
	"github.com/dvloznov/ledger-import/internal/source"
)

// ImportsHandler handles import submission endpoints.
type ImportsHandler struct {
	publisher jobs.Publisher
	bucket    string
	upload    func(ctx context.Context, uri string, r io.Reader) error
	now       func() time.Time
}

// NewImportsHandler creates a new imports handler. Uploads are stored under
// bucket; an empty bucket disables them.
func NewImportsHandler(publisher jobs.Publisher, bucket string) *ImportsHandler {
	return &ImportsHandler{
		publisher: publisher,
		bucket:    bucket,
		upload:    source.UploadGCS,
		now:       time.Now,
	}
}

type importRequest struct {
	Source        string `json:"source"`
	Location      string `json:"location"`
	AccountID     string `json:"account_id"`
	Authoritative bool   `json:"authoritative"`
}

// resolveKind validates the requested kind, or infers it from the filename.
func resolveKind(kind, filename string) (source.Kind, error) {
	if kind == "" {
		k, ok := source.KindFromFilename(filename)
		if !ok {
			return "", fmt.Errorf("cannot infer source kind of %q", filename)
		}
		return k, nil
	}
	if !slices.Contains(source.Kinds, source.Kind(kind)) {
		return "", fmt.Errorf("unknown source kind %q", kind)
	}
	return source.Kind(kind), nil
}

// CreateImport handles POST /api/imports
func (h *ImportsHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Location == "" || req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "location and account_id are required")
		return
	}
	kind, err := resolveKind(req.Source, req.Location)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.enqueue(w, r, &jobs.ImportJob{
		Source:        string(kind),
		Location:      req.Location,
		AccountID:     req.AccountID,
		Authoritative: req.Authoritative,
	})
}

// UploadImport handles POST /api/imports/upload?filename=...&account_id=...
// The body is streamed to GCS and the stored object is queued for import.
func (h *ImportsHandler) UploadImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Uploads are disabled")
		return
	}

	query := r.URL.Query()
	filename := path.Base(query.Get("filename"))
	accountID := query.Get("account_id")
	if filename == "." || filename == "/" || accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "filename and account_id are required")
		return
	}
	kind, err := resolveKind(query.Get("source"), filename)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	authoritative, _ := strconv.ParseBool(query.Get("authoritative"))

	objectName := fmt.Sprintf("uploads/%s/%s-%s", h.now().Format("2006/01/02"), uuid.NewString(), filename)
	gcsURI := fmt.Sprintf("gs://%s/%s", h.bucket, objectName)

	if err := h.upload(ctx, gcsURI, r.Body); err != nil {
		log.Error().Err(err).Str("gcs_uri", gcsURI).Msg("Failed to upload statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	log.Info().Str("gcs_uri", gcsURI).Msg("Statement uploaded")

	h.enqueue(w, r, &jobs.ImportJob{
		Source:        string(kind),
		Location:      gcsURI,
		AccountID:     accountID,
		Authoritative: authoritative,
	})
}

func (h *ImportsHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.ImportJob) {
	log := logger.FromContext(r.Context())

	if err := h.publisher.PublishImport(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Str("source", job.Source).
		Str("account_id", job.AccountID).
		Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"location": job.Location,
		"status":   string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		AccountID: query.Get("account_id"),
		Source:    query.Get("source"),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.ImportJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Ledger is the read side of the book served over HTTP.
// *ledger.Book implements it.
type Ledger interface {
	Account(id string) (*ledger.Account, bool)
	Accounts() []*ledger.Account
	EntriesFor(accountID string) []*ledger.Entry
}

// AccountsHandler handles account-related endpoints.
type AccountsHandler struct {
	book Ledger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(book Ledger) *AccountsHandler {
	return &AccountsHandler{book: book}
}

type accountView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Currency    string `json:"currency,omitempty"`
	Kind        string `json:"kind"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

func newAccountView(a *ledger.Account) accountView {
	return accountView{
		ID:          a.ID,
		Name:        a.Name,
		Currency:    a.Currency,
		Kind:        string(a.Kind),
		Placeholder: a.Placeholder,
	}
}

// EntryView is the JSON shape of one ledger entry.
type EntryView struct {
	TransactionID string            `json:"transaction_id"`
	EntryID       string            `json:"entry_id"`
	Date          string            `json:"date"`
	Amount        string            `json:"amount"`
	Other         []string          `json:"other_accounts"`
	Memo          string            `json:"memo,omitempty"`
	Check         string            `json:"check,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// NewEntryView renders e together with the accounts on the other side of
// its transaction.
func NewEntryView(e *ledger.Entry) EntryView {
	v := EntryView{
		EntryID: e.ID,
		Date:    e.Date().String(),
		Amount:  money.Format(e.Amount),
		Other:   []string{},
		Memo:    e.Memo,
		Check:   e.Check,
	}
	if tx := e.Transaction(); tx != nil {
		v.TransactionID = tx.ID
		for _, o := range tx.Entries() {
			if o.ID != e.ID {
				v.Other = append(v.Other, o.AccountID)
			}
		}
	}
	if tags := e.Tags(); len(tags) > 0 {
		v.Tags = make(map[string]string, len(tags))
		for f, val := range tags {
			v.Tags[string(f)] = val
		}
	}
	return v
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.book.Accounts()
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, newAccountView(a))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": views,
		"count":    len(views),
	})
}

// ListEntries handles GET /api/accounts/{id}/entries
func (h *AccountsHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	account, ok := h.book.Account(accountID)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	}

	entries := h.book.EntriesFor(accountID)
	views := make([]EntryView, 0, len(entries))
	var balance int64
	for _, e := range entries {
		views = append(views, NewEntryView(e))
		balance += e.Amount
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account": newAccountView(account),
		"entries": views,
		"count":   len(views),
		"balance": money.Format(balance),
	})
}
