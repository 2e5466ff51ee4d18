// Package api is the HTTP surface of the ingestion engine. Handlers
// translate requests into service calls and service errors into status
// codes; no parsing or persistence logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/tabular-ingest/internal/parser"
	"github.com/ignite/tabular-ingest/internal/repository"
	"github.com/ignite/tabular-ingest/internal/service/ingest"
)

// Handlers holds the ingestion service the HTTP layer fronts.
type Handlers struct {
	svc *ingest.Service
}

// NewHandlers creates the handler set around an ingestion service.
func NewHandlers(svc *ingest.Service) *Handlers {
	return &Handlers{svc: svc}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service-layer sentinels onto HTTP statuses.
// Unknown errors become a 500 without leaking internals beyond the
// error text itself.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrEmptyInput),
		errors.Is(err, ingest.ErrEmptyTerm),
		errors.Is(err, parser.ErrUnsupportedFormat):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrJobNotFound),
		errors.Is(err, repository.ErrSchemaNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrJobRunning):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
