package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/spc/internal/app"
	"github.com/okian/spc/internal/domain/model"
)

// MeasurementDependencies defines the interface for measurement ingestion.
type MeasurementDependencies interface {
	Enqueue(ctx context.Context, m model.Measurement) (service.Ack, error)
}

// MeasurementsHandler handles measurement submissions.
type MeasurementsHandler struct {
	deps MeasurementDependencies
}

// NewMeasurementsHandler creates a new measurements handler.
func NewMeasurementsHandler(deps MeasurementDependencies) *MeasurementsHandler {
	return &MeasurementsHandler{deps: deps}
}

// measurementRequest mirrors the OpenAPI schema for POST /measurements.
type measurementRequest struct {
	EventID  string   `json:"event_id"`
	ColumnID string   `json:"column_id"`
	Value    *float64 `json:"value"`
	TS       string   `json:"ts"`
}

func (m measurementRequest) toModel() (model.Measurement, error) {
	switch {
	case strings.TrimSpace(m.ColumnID) == "":
		return model.Measurement{}, errors.New("missing column_id")
	case m.Value == nil:
		return model.Measurement{}, errors.New("missing value")
	}
	out := model.Measurement{
		EventID:  strings.TrimSpace(m.EventID),
		ColumnID: m.ColumnID,
		Value:    *m.Value,
	}
	if ts := strings.TrimSpace(m.TS); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return model.Measurement{}, errors.New("invalid ts; must be RFC3339")
		}
		out.TS = parsed
	}
	return out, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostMeasurement handles POST /measurements requests.
func (h *MeasurementsHandler) HandlePostMeasurement(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_measurement"
	var req measurementRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ack, err := h.deps.Enqueue(r.Context(), m)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if ack.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: ack.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ack.EventID})
}
