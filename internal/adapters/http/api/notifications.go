// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/pulsegate/internal/adapters/delivery"
)

// NotificationsHandler inspects and acknowledges queued notifications.
type NotificationsHandler struct {
	deps Dependencies
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(deps Dependencies) *NotificationsHandler {
	return &NotificationsHandler{deps: deps}
}

// HandleList handles GET /notifications requests.
func (h *NotificationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Notifications())
}

// HandleAck handles POST /notifications/{id}/ack requests.
func (h *NotificationsHandler) HandleAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/notifications/")
	id, found := strings.CutSuffix(rest, "/ack")
	if !found || id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	if err := h.deps.AckNotification(r.Context(), id); err != nil {
		if errors.Is(err, delivery.ErrUnknownNotification) {
			writeError(w, http.StatusNotFound, "unknown_notification", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
