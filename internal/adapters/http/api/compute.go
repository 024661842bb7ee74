package api

import (
	"context"
	"net/http"

	service "github.com/okian/spc/internal/app"
	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/rules"
	"github.com/okian/spc/internal/domain/types"
)

// ComputeDependencies defines the stateless computations over posted values.
type ComputeDependencies interface {
	IChartValues(ctx context.Context, values []float64) (service.ChartReport, error)
	CapabilityValues(ctx context.Context, values []float64, limits capability.SpecLimits) (capability.Result, error)
	EvaluateRules(ctx context.Context, values []float64, mean, sigma types.Number) ([]rules.Result, error)
}

// ComputeHandler handles the stateless computation endpoints.
type ComputeHandler struct {
	deps ComputeDependencies
}

// NewComputeHandler creates a new compute handler.
func NewComputeHandler(deps ComputeDependencies) *ComputeHandler {
	return &ComputeHandler{deps: deps}
}

type capabilityRequest struct {
	Values []float64    `json:"values"`
	LSL    types.Number `json:"lsl"`
	USL    types.Number `json:"usl"`
	Target types.Number `json:"target"`
}

type rulesRequest struct {
	Values []float64    `json:"values"`
	Mean   types.Number `json:"mean"`
	Sigma  types.Number `json:"sigma"`
}

type rulesResponse struct {
	Rules   []rules.Result `json:"rules"`
	Flagged []int          `json:"flagged"`
}

// HandleIChart handles POST /ichart requests.
func (h *ComputeHandler) HandleIChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_ichart"
	var req seriesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	report, err := h.deps.IChartValues(r.Context(), req.Values)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newChartResponse(report))
}

// HandleCapability handles POST /capability requests.
func (h *ComputeHandler) HandleCapability(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_capability"
	var req capabilityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	limits := capability.SpecLimits{LSL: req.LSL, USL: req.USL, Target: req.Target}
	res, err := h.deps.CapabilityValues(r.Context(), req.Values, limits)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newCapabilityResponse(res))
}

// HandleRules handles POST /rules requests. Mean and sigma are optional.
func (h *ComputeHandler) HandleRules(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_rules"
	var req rulesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	results, err := h.deps.EvaluateRules(r.Context(), req.Values, req.Mean, req.Sigma)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rulesResponse{Rules: results, Flagged: rules.Flagged(results)})
}
