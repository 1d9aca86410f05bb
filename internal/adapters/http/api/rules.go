// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/pulsegate/internal/domain/detector"
)

// RulesHandler reads and updates the detection rules.
type RulesHandler struct {
	deps Dependencies
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(deps Dependencies) *RulesHandler {
	return &RulesHandler{deps: deps}
}

// rulesDocument mirrors the OpenAPI schema for /rules. Windows travel as
// whole seconds on the wire.
type rulesDocument struct {
	HighThresholdBPM      int  `json:"high_threshold_bpm"`
	LowThresholdBPM       int  `json:"low_threshold_bpm"`
	RapidIncreaseDeltaBPM int  `json:"rapid_increase_delta_bpm"`
	RapidIncreaseWindowS  int  `json:"rapid_increase_window_sec"`
	ExtremeSpikeDeltaBPM  int  `json:"extreme_spike_delta_bpm"`
	ExtremeSpikeWindowS   int  `json:"extreme_spike_window_sec"`
	HighThresholdEnabled  bool `json:"high_threshold_enabled"`
	LowThresholdEnabled   bool `json:"low_threshold_enabled"`
	RapidIncreaseEnabled  bool `json:"rapid_increase_enabled"`
	ExtremeSpikeEnabled   bool `json:"extreme_spike_enabled"`
}

func toDocument(r detector.Rules) rulesDocument {
	return rulesDocument{
		HighThresholdBPM:      r.HighThresholdBPM,
		LowThresholdBPM:       r.LowThresholdBPM,
		RapidIncreaseDeltaBPM: r.RapidIncreaseDeltaBPM,
		RapidIncreaseWindowS:  int(r.RapidIncreaseWindow / time.Second),
		ExtremeSpikeDeltaBPM:  r.ExtremeSpikeDeltaBPM,
		ExtremeSpikeWindowS:   int(r.ExtremeSpikeWindow / time.Second),
		HighThresholdEnabled:  r.HighThresholdEnabled,
		LowThresholdEnabled:   r.LowThresholdEnabled,
		RapidIncreaseEnabled:  r.RapidIncreaseEnabled,
		ExtremeSpikeEnabled:   r.ExtremeSpikeEnabled,
	}
}

func (d rulesDocument) toRules() detector.Rules {
	return detector.Rules{
		HighThresholdBPM:      d.HighThresholdBPM,
		LowThresholdBPM:       d.LowThresholdBPM,
		RapidIncreaseDeltaBPM: d.RapidIncreaseDeltaBPM,
		RapidIncreaseWindow:   time.Duration(d.RapidIncreaseWindowS) * time.Second,
		ExtremeSpikeDeltaBPM:  d.ExtremeSpikeDeltaBPM,
		ExtremeSpikeWindow:    time.Duration(d.ExtremeSpikeWindowS) * time.Second,
		HighThresholdEnabled:  d.HighThresholdEnabled,
		LowThresholdEnabled:   d.LowThresholdEnabled,
		RapidIncreaseEnabled:  d.RapidIncreaseEnabled,
		ExtremeSpikeEnabled:   d.ExtremeSpikeEnabled,
	}
}

// HandleRules handles GET and PUT /rules requests.
func (h *RulesHandler) HandleRules(w http.ResponseWriter, r *http.Request) {
	const op = "api.rules"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toDocument(h.deps.Rules()))
	case http.MethodPut:
		var doc rulesDocument
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := h.deps.SetRules(doc.toRules()); err != nil {
			if errors.Is(err, detector.ErrInvalidRules) {
				writeError(w, http.StatusBadRequest, "invalid_rules", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal", err)
			return
		}
		writeJSON(w, http.StatusOK, toDocument(h.deps.Rules()))
	default:
		http.NotFound(w, r)
	}
}
