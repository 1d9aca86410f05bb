// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/pulsegate/internal/domain/model"
)

// SamplesHandler ingests wearable heart-rate samples.
type SamplesHandler struct {
	deps Dependencies
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps Dependencies) *SamplesHandler {
	return &SamplesHandler{deps: deps}
}

// sampleResponse acknowledges an ingested sample and surfaces the detection
// it triggered, if any.
type sampleResponse struct {
	Status    string                `json:"status"`
	Detection *model.DetectionEvent `json:"detection,omitempty"`
}

// HandlePostSample handles POST /samples requests.
func (h *SamplesHandler) HandlePostSample(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sample"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ts, _ := time.Parse(time.RFC3339, req.TS) // validated above
	ev := h.deps.IngestSample(r.Context(), model.HeartRateSample{
		Value:  req.HeartRate,
		TS:     ts,
		Source: req.Source,
	})

	writeJSON(w, http.StatusAccepted, sampleResponse{Status: "accepted", Detection: ev})
}
