// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/pulsegate/internal/domain/model"
)

// ContactsHandler reads and updates the emergency contacts.
type ContactsHandler struct {
	deps Dependencies
}

// NewContactsHandler creates a new contacts handler.
func NewContactsHandler(deps Dependencies) *ContactsHandler {
	return &ContactsHandler{deps: deps}
}

// HandleContacts handles GET and PUT /contacts requests.
func (h *ContactsHandler) HandleContacts(w http.ResponseWriter, r *http.Request) {
	const op = "api.contacts"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Contacts())
	case http.MethodPut:
		var contacts []model.Contact
		if err := json.NewDecoder(r.Body).Decode(&contacts); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := h.deps.SetContacts(contacts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_contacts", err)
			return
		}
		writeJSON(w, http.StatusOK, h.deps.Contacts())
	default:
		http.NotFound(w, r)
	}
}
