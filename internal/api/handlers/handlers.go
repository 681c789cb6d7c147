// Package handlers implements the JSON HTTP API over the ledger service and
// the remap job queue.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/txgroup/internal/api/middleware"
	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/grouping"
	"github.com/dvloznov/txgroup/internal/ingest"
	"github.com/dvloznov/txgroup/internal/jobs"
	"github.com/dvloznov/txgroup/internal/ledger"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/mapping"
	"github.com/dvloznov/txgroup/internal/store"
	"github.com/dvloznov/txgroup/internal/summary"
)

// Ledger is the part of ledger.Service the API serves.
type Ledger interface {
	RegisterBatch(ctx context.Context, uri, filename string) (*domain.ImportBatch, error)
	GetBatch(ctx context.Context, batchID string) (*domain.ImportBatch, error)
	ListBatches(ctx context.Context) ([]*domain.ImportBatch, error)
	DeleteBatch(ctx context.Context, batchID string) error
	MapBatch(ctx context.Context, batchID string, m mapping.ColumnMapping) (*ledger.MapResult, error)
	Groups(ctx context.Context, batchID string) ([]grouping.TypeGroup, error)
	Summary(ctx context.Context, batchID string) (summary.Summary, error)
	AssignCategory(ctx context.Context, batchID string, recordIDs []string, categoryID string) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	Dashboard(ctx context.Context) (*ledger.Dashboard, error)
}

var _ Ledger = (*ledger.Service)(nil)

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, mapping.ErrMappingIncomplete),
		errors.Is(err, mapping.ErrDuplicateField),
		errors.Is(err, mapping.ErrUnknownField),
		errors.Is(err, mapping.ErrUnknownHeader),
		errors.Is(err, ingest.ErrNoHeader):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrBatchBusy):
		return http.StatusConflict
	case errors.Is(err, ingest.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes it with the mapped status. Internal
// errors are not echoed to the client.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	log.Warn().Err(err).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, err.Error())
}

// BatchesHandler handles batch-related endpoints.
type BatchesHandler struct {
	ledger    Ledger
	publisher jobs.Publisher
}

// NewBatchesHandler creates a new batches handler. Mapping requests are
// queued on publisher unless the caller asks to wait.
func NewBatchesHandler(l Ledger, publisher jobs.Publisher) *BatchesHandler {
	return &BatchesHandler{
		ledger:    l,
		publisher: publisher,
	}
}

// ListBatches handles GET /api/batches
func (h *BatchesHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batches, err := h.ledger.ListBatches(ctx)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to list batches")
		return
	}
	if batches == nil {
		batches = []*domain.ImportBatch{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// RegisterBatch handles POST /api/batches
func (h *BatchesHandler) RegisterBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI      string `json:"uri"`
		Filename string `json:"filename"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "uri is required")
		return
	}

	ctx := r.Context()
	batch, err := h.ledger.RegisterBatch(ctx, req.URI, req.Filename)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to register batch")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, batch)
}

// GetBatch handles GET /api/batches/{id}
func (h *BatchesHandler) GetBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	ctx := r.Context()

	batch, err := h.ledger.GetBatch(ctx, batchID)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to get batch")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, batch)
}

// DeleteBatch handles DELETE /api/batches/{id}
func (h *BatchesHandler) DeleteBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	ctx := r.Context()

	if err := h.ledger.DeleteBatch(ctx, batchID); err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to delete batch")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MapBatch handles POST /api/batches/{id}/mapping
//
// The mapping is checked against the batch headers up front so that a bad
// request fails fast. The remap itself is queued (202) unless ?wait=true,
// in which case it runs inline and the result is returned.
func (h *BatchesHandler) MapBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	var req struct {
		Mapping mapping.ColumnMapping `json:"mapping"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx).With().Str("batch_id", batchID).Logger()

	for i, a := range req.Mapping {
		f, err := mapping.ParseField(string(a.Field))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Mapping[i].Field = f
	}

	batch, err := h.ledger.GetBatch(ctx, batchID)
	if err != nil {
		writeServiceError(w, log, err, "Failed to get batch")
		return
	}
	if err := req.Mapping.Validate(batch.Headers); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait || h.publisher == nil {
		result, err := h.ledger.MapBatch(ctx, batchID, req.Mapping)
		if err != nil {
			writeServiceError(w, log, err, "Failed to map batch")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
		return
	}

	job := &jobs.RemapBatchJob{
		BatchID: batchID,
		Mapping: req.Mapping,
	}
	if err := h.publisher.PublishRemapBatch(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue remap job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue remap job")
		return
	}

	log.Info().Str("job_id", job.JobID).Msg("Remap job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"batch_id": batchID,
		"status":   string(job.Status),
	})
}

// Groups handles GET /api/batches/{id}/groups
func (h *BatchesHandler) Groups(w http.ResponseWriter, r *http.Request, batchID string) {
	ctx := r.Context()

	groups, err := h.ledger.Groups(ctx, batchID)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to group records")
		return
	}
	if groups == nil {
		groups = []grouping.TypeGroup{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"types": groups,
		"count": len(groups),
	})
}

// Summary handles GET /api/batches/{id}/summary
func (h *BatchesHandler) Summary(w http.ResponseWriter, r *http.Request, batchID string) {
	ctx := r.Context()

	s, err := h.ledger.Summary(ctx, batchID)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to summarize batch")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, s)
}

// AssignCategory handles POST /api/batches/{id}/assign
func (h *BatchesHandler) AssignCategory(w http.ResponseWriter, r *http.Request, batchID string) {
	var req struct {
		RecordIDs  []string `json:"record_ids"`
		CategoryID string   `json:"category_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.RecordIDs) == 0 || req.CategoryID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "record_ids and category_id are required")
		return
	}

	ctx := r.Context()
	if err := h.ledger.AssignCategory(ctx, batchID, req.RecordIDs, req.CategoryID); err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to assign category")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"assigned":    len(req.RecordIDs),
		"category_id": req.CategoryID,
	})
}

// Dashboard handles GET /api/dashboard
func (h *BatchesHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := h.ledger.Dashboard(ctx)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to build dashboard")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, d)
}

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	ledger Ledger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(l Ledger) *CategoriesHandler {
	return &CategoriesHandler{ledger: l}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.ledger.ListCategories(ctx)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
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
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		writeServiceError(w, logger.FromContext(ctx).With().Str("job_id", jobID).Logger(), err, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		BatchID: query.Get("batch_id"),
		Status:  jobs.JobStatus(query.Get("status")),
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
		writeServiceError(w, logger.FromContext(ctx), err, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.RemapBatchJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
