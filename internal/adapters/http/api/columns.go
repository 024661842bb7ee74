package api

import (
	"context"
	"net/http"

	"github.com/okian/spc/internal/adapters/repository"
	service "github.com/okian/spc/internal/app"
	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/model"
)

// ColumnDependencies defines the interface for stored column operations.
type ColumnDependencies interface {
	Columns(ctx context.Context) ([]repository.ColumnInfo, error)
	Column(ctx context.Context, columnID string) (model.Series, error)
	ReplaceColumn(ctx context.Context, columnID string, values []float64) error
	DeleteColumn(ctx context.Context, columnID string) error
	IChart(ctx context.Context, columnID string) (service.ChartReport, error)
	Capability(ctx context.Context, columnID string, limits capability.SpecLimits) (capability.Result, error)
}

// ColumnsHandler handles /columns requests.
type ColumnsHandler struct {
	deps ColumnDependencies
}

// NewColumnsHandler creates a new columns handler.
func NewColumnsHandler(deps ColumnDependencies) *ColumnsHandler {
	return &ColumnsHandler{deps: deps}
}

type columnsResponse struct {
	Columns []repository.ColumnInfo `json:"columns"`
}

type seriesRequest struct {
	Values []float64 `json:"values"`
}

// HandleList handles GET /columns requests.
func (h *ColumnsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_columns"
	cols, err := h.deps.Columns(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, columnsResponse{Columns: cols})
}

// HandleGet handles GET /columns/{id} requests.
func (h *ColumnsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_column"
	series, err := h.deps.Column(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// HandlePut handles PUT /columns/{id} requests.
func (h *ColumnsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_column"
	var req seriesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := r.PathValue("id")
	if err := h.deps.ReplaceColumn(r.Context(), id, req.Values); err != nil {
		writeServiceError(w, op, err)
		return
	}
	series, err := h.deps.Column(r.Context(), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// HandleDelete handles DELETE /columns/{id} requests.
func (h *ColumnsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_column"
	if err := h.deps.DeleteColumn(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleIChart handles GET /columns/{id}/ichart requests.
func (h *ColumnsHandler) HandleIChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.column_ichart"
	report, err := h.deps.IChart(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newChartResponse(report))
}

// HandleCapability handles GET /columns/{id}/capability requests. Limits
// come from the lsl, usl and target query parameters.
func (h *ColumnsHandler) HandleCapability(w http.ResponseWriter, r *http.Request) {
	const op = "api.column_capability"
	limits, err := queryLimits(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Capability(r.Context(), r.PathValue("id"), limits)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newCapabilityResponse(res))
}
