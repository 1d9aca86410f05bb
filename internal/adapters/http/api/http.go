// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/pulsegate/internal/domain/detector"
	"github.com/okian/pulsegate/internal/domain/gate"
	"github.com/okian/pulsegate/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest feeds one wearable sample through the pipeline.
	IngestSample(ctx context.Context, sample model.HeartRateSample) *model.DetectionEvent

	// Confirmation UI operations.
	Alert() gate.Snapshot
	ConfirmAlert(ctx context.Context) error
	CancelAlert(ctx context.Context) error

	// Runtime configuration.
	Rules() detector.Rules
	SetRules(rules detector.Rules) error
	Contacts() []model.Contact
	SetContacts(contacts []model.Contact) error

	// Delivery queue inspection.
	Notifications() []model.QueuedNotification
	AckNotification(ctx context.Context, id string) error
}

// Server wires HTTP routes for the monitoring API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	samplesHandler       *SamplesHandler
	alertHandler         *AlertHandler
	rulesHandler         *RulesHandler
	contactsHandler      *ContactsHandler
	notificationsHandler *NotificationsHandler
	dashboardHandler     *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(statsProvider),
		samplesHandler:       NewSamplesHandler(deps),
		alertHandler:         NewAlertHandler(deps),
		rulesHandler:         NewRulesHandler(deps),
		contactsHandler:      NewContactsHandler(deps),
		notificationsHandler: NewNotificationsHandler(deps),
		dashboardHandler:     newdashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/samples", MetricsMiddleware(s.samplesHandler.HandlePostSample, "samples"))
	mux.HandleFunc("/alert", MetricsMiddleware(s.alertHandler.HandleGetAlert, "alert"))
	mux.HandleFunc("/alert/confirm", MetricsMiddleware(s.alertHandler.HandleConfirm, "alert_confirm"))
	mux.HandleFunc("/alert/cancel", MetricsMiddleware(s.alertHandler.HandleCancel, "alert_cancel"))
	mux.HandleFunc("/rules", MetricsMiddleware(s.rulesHandler.HandleRules, "rules"))
	mux.HandleFunc("/contacts", MetricsMiddleware(s.contactsHandler.HandleContacts, "contacts"))
	mux.HandleFunc("/notifications", MetricsMiddleware(s.notificationsHandler.HandleList, "notifications"))
	mux.HandleFunc("/notifications/", MetricsMiddleware(s.notificationsHandler.HandleAck, "notifications_ack"))
}

// sampleRequest mirrors the OpenAPI schema for POST /samples.
type sampleRequest struct {
	HeartRate int    `json:"heart_rate"`
	TS        string `json:"ts"`
	Source    string `json:"source"`
}

func (s sampleRequest) validate() error {
	switch {
	case s.HeartRate <= 0:
		return errors.New("heart_rate must be positive")
	case s.TS == "":
		return errors.New("missing ts")
	}
	if _, err := time.Parse(time.RFC3339, s.TS); err != nil {
		return errors.New("invalid ts; must be RFC3339")
	}
	return nil
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
