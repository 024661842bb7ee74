// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/spc/internal/adapters/mq/queue"
	"github.com/okian/spc/internal/adapters/repository"
	service "github.com/okian/spc/internal/app"
	"github.com/okian/spc/internal/domain/types"
)

// maxBodyBytes bounds request bodies; posted series are the largest.
const maxBodyBytes = 16 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	MeasurementDependencies
	ColumnDependencies
	ComputeDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	measurementsHandler *MeasurementsHandler
	columnsHandler      *ColumnsHandler
	computeHandler      *ComputeHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		measurementsHandler: NewMeasurementsHandler(deps),
		columnsHandler:      NewColumnsHandler(deps),
		computeHandler:      NewComputeHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /measurements", MetricsMiddleware(s.measurementsHandler.HandlePostMeasurement, "measurements"))

	mux.HandleFunc("GET /columns", MetricsMiddleware(s.columnsHandler.HandleList, "columns"))
	mux.HandleFunc("GET /columns/{id}", MetricsMiddleware(s.columnsHandler.HandleGet, "column"))
	mux.HandleFunc("PUT /columns/{id}", MetricsMiddleware(s.columnsHandler.HandlePut, "column"))
	mux.HandleFunc("DELETE /columns/{id}", MetricsMiddleware(s.columnsHandler.HandleDelete, "column"))
	mux.HandleFunc("GET /columns/{id}/ichart", MetricsMiddleware(s.columnsHandler.HandleIChart, "column_ichart"))
	mux.HandleFunc("GET /columns/{id}/capability", MetricsMiddleware(s.columnsHandler.HandleCapability, "column_capability"))

	mux.HandleFunc("POST /ichart", MetricsMiddleware(s.computeHandler.HandleIChart, "ichart"))
	mux.HandleFunc("POST /capability", MetricsMiddleware(s.computeHandler.HandleCapability, "capability"))
	mux.HandleFunc("POST /rules", MetricsMiddleware(s.computeHandler.HandleRules, "rules"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps upstream error kinds to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, types.ErrInvalidInput),
		errors.Is(err, repository.ErrEmptyColumnID),
		errors.Is(err, repository.ErrEmptySeries),
		errors.Is(err, repository.ErrNonFinite):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, service.ErrBackpressure), errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
