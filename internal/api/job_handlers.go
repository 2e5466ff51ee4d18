package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/tabular-ingest/internal/repository"
)

// HandleGetJob returns one job document.
//
// GET /api/imports/{jobID}
func (h *Handlers) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// HandleListJobs returns jobs newest-first with pagination metadata.
//
// GET /api/imports?page&size
func (h *Handlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, repository.DefaultPageSize, maxPageSize)

	jobs, total, err := h.svc.List(r.Context(), params.Page, params.Size)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(jobs, params, int64(total)))
}

// HandleGetProgress returns the live progress snapshot for a job. While
// the job runs the snapshot comes from the tracker; otherwise it is
// projected from the stored row.
//
// GET /api/imports/{jobID}/progress
func (h *Handlers) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Progress(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// HandleGetSchema returns the schema detected for a job's file.
//
// GET /api/imports/{jobID}/schema
func (h *Handlers) HandleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.svc.Schema(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

// HandleListRecords returns a job's ingested records in row order.
//
// GET /api/imports/{jobID}/records?page&size
func (h *Handlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, repository.DefaultPageSize, maxPageSize)

	records, total, err := h.svc.Records(r.Context(), chi.URLParam(r, "jobID"), params.Page, params.Size)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(records, params, total))
}

// HandleSearchRecords returns records whose values contain the search
// term, capped at the repository search limit.
//
// GET /api/imports/{jobID}/records/search?q=
func (h *Handlers) HandleSearchRecords(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")

	records, err := h.svc.SearchRecords(r.Context(), chi.URLParam(r, "jobID"), term)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   strings.TrimSpace(term),
		"count":   len(records),
		"limit":   repository.SearchLimit,
		"records": records,
	})
}

// HandleDeleteJob removes a job with its schema and records. Jobs that
// are actively processing are refused with a 409.
//
// DELETE /api/imports/{jobID}
func (h *Handlers) HandleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": true,
	})
}
