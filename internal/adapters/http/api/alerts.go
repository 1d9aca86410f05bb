// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/okian/pulsegate/internal/domain/gate"
	"github.com/okian/pulsegate/internal/domain/model"
)

// AlertHandler exposes the confirmation gate to the UI.
type AlertHandler struct {
	deps Dependencies
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(deps Dependencies) *AlertHandler {
	return &AlertHandler{deps: deps}
}

// alertResponse is the UI view of the gate: what is pending and how long the
// wearer has left to cancel.
type alertResponse struct {
	State            string                `json:"state"`
	Pending          *model.DetectionEvent `json:"pending,omitempty"`
	RemainingSeconds int                   `json:"remaining_seconds,omitempty"`
	Deadline         *time.Time            `json:"deadline,omitempty"`
	LastOutcome      string                `json:"last_outcome,omitempty"`
	LastResolvedAt   *time.Time            `json:"last_resolved_at,omitempty"`
}

// HandleGetAlert handles GET /alert requests.
func (h *AlertHandler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	snap := h.deps.Alert()
	resp := alertResponse{
		State:       string(snap.State),
		Pending:     snap.Pending,
		LastOutcome: string(snap.LastOutcome),
	}
	if snap.Pending != nil {
		resp.RemainingSeconds = int(snap.Remaining / time.Second)
		deadline := snap.Deadline
		resp.Deadline = &deadline
	}
	if !snap.LastResolvedAt.IsZero() {
		resolvedAt := snap.LastResolvedAt
		resp.LastResolvedAt = &resolvedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleConfirm handles POST /alert/confirm requests.
func (h *AlertHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.deps.ConfirmAlert, "confirmed")
}

// HandleCancel handles POST /alert/cancel requests.
func (h *AlertHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.deps.CancelAlert, "cancelled")
}

func (h *AlertHandler) resolve(w http.ResponseWriter, r *http.Request, action func(context.Context) error, status string) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := action(r.Context()); err != nil {
		if errors.Is(err, gate.ErrNoPendingAlert) {
			writeError(w, http.StatusConflict, "no_pending_alert", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
