// Package service wires the monitoring pipeline together and implements the
// dependencies required by the HTTP API: samples in, detector, confirmation
// gate, and the durable notification queue out.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulsegate/internal/adapters/delivery"
	"github.com/okian/pulsegate/internal/adapters/netmon"
	"github.com/okian/pulsegate/internal/adapters/repository"
	"github.com/okian/pulsegate/internal/adapters/transport"
	"github.com/okian/pulsegate/internal/domain/detector"
	"github.com/okian/pulsegate/internal/domain/gate"
	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
	"github.com/okian/pulsegate/pkg/metrics"
)

// Service owns the monitoring pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	detector detector.Detector
	gate     *gate.ConfirmationGate
	queue    *delivery.Queue
	monitor  *netmon.Monitor
	store    repository.Store
	sender   transport.Sender

	// Configuration
	clk                clock.Clock
	rules              detector.Rules
	confirmationWindow time.Duration
	queueOpts          []delivery.Option
	monitorOpts        []netmon.Option
	redisAddr          string
	redisDB            int
	gatewayURL         string
	contacts           []model.Contact

	// State
	started bool
	cancel  context.CancelFunc
	done    sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRules sets the initial detection rules.
func WithRules(rules detector.Rules) Option {
	return func(s *Service) {
		s.rules = rules
	}
}

// WithConfirmationWindow sets the gate countdown duration.
func WithConfirmationWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmationWindow = d
		}
	}
}

// WithQueueOptions forwards tuning to the delivery queue.
func WithQueueOptions(opts ...delivery.Option) Option {
	return func(s *Service) {
		s.queueOpts = append(s.queueOpts, opts...)
	}
}

// WithMonitorOptions forwards tuning to the network monitor.
func WithMonitorOptions(opts ...netmon.Option) Option {
	return func(s *Service) {
		s.monitorOpts = append(s.monitorOpts, opts...)
	}
}

// WithRedis makes the queue persist to redis instead of process memory.
func WithRedis(addr string, db int) Option {
	return func(s *Service) {
		s.redisAddr = addr
		s.redisDB = db
	}
}

// WithGatewayURL sets the notification gateway the webhook sender posts to.
func WithGatewayURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.gatewayURL = url
		}
	}
}

// WithContacts sets the initial emergency contacts.
func WithContacts(contacts []model.Contact) Option {
	return func(s *Service) {
		s.contacts = contacts
	}
}

// WithStore injects the durable store, overriding redis/memory selection.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSender injects the transport, overriding the webhook sender.
func WithSender(sender transport.Sender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithClock injects the time source for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clk = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		clk:                clock.New(),
		rules:              detector.DefaultRules(),
		confirmationWindow: 15 * time.Second,
		gatewayURL:         "http://localhost:9081/notify",
		logger:             nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the pipeline and launches the background loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting monitoring service...")

	s.detector = detector.New(detector.WithRules(s.rules))

	if s.store == nil {
		if s.redisAddr != "" {
			rs := repository.NewRedisStoreFromAddr(s.redisAddr, s.redisDB)
			if err := rs.Ping(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			s.store = rs
			s.logger.Info(ctx, "using redis notification store",
				logger.String("addr", s.redisAddr))
		} else {
			s.store = repository.NewMemoryStore()
			s.logger.Info(ctx, "using in-memory notification store")
		}
	}

	if s.sender == nil {
		s.sender = transport.NewWebhookSender(s.gatewayURL)
	}

	s.queue = delivery.New(s.store, s.sender,
		append([]delivery.Option{delivery.WithClock(s.clk)}, s.queueOpts...)...)
	if err := s.queue.Restore(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	s.gate = gate.New(
		gate.WithClock(s.clk),
		gate.WithWindow(s.confirmationWindow),
		gate.WithSink(s),
	)

	s.monitor = netmon.New(append([]netmon.Option{netmon.WithClock(s.clk)}, s.monitorOpts...)...)
	s.monitor.Subscribe(s.queue)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done.Add(2)
	go func() {
		defer s.done.Done()
		s.queue.Run(runCtx)
	}()
	go func() {
		defer s.done.Done()
		s.monitor.Run(runCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "monitoring service started",
		logger.Int("contacts", len(s.contacts)),
		logger.Duration("confirmation_window", s.confirmationWindow),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping monitoring service...")

	s.cancel()
	s.done.Wait()

	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "monitoring service stopped")
}

// IngestSample feeds a sample through the detector and, when a rule fires,
// offers the detection to the confirmation gate.
func (s *Service) IngestSample(ctx context.Context, sample model.HeartRateSample) *model.DetectionEvent {
	ev := s.detector.Ingest(ctx, sample)
	if ev == nil {
		return nil
	}

	s.logger.Warn(ctx, "deviation detected",
		logger.String("kind", string(ev.Kind)),
		logger.Int("heart_rate", ev.HeartRate),
		logger.String("details", ev.Details))
	s.gate.Offer(ctx, *ev)
	return ev
}

// EmergencyConfirmed implements gate.Sink: a confirmed emergency fans out to
// the registered contacts through the delivery queue.
func (s *Service) EmergencyConfirmed(ctx context.Context, emergency model.EmergencyEvent) {
	emergency.Recipients = s.Contacts()

	if err := s.queue.Enqueue(ctx, emergency); err != nil {
		s.logger.Error(ctx, "enqueue emergency notifications", logger.Error(err),
			logger.String("emergency_id", emergency.ID))
		metrics.RecordErrorByComponent("delivery", "enqueue_failed")
	}
}

// Alert reports the gate state for the confirmation UI.
func (s *Service) Alert() gate.Snapshot {
	return s.gate.Snapshot()
}

// ConfirmAlert escalates the pending alert immediately.
func (s *Service) ConfirmAlert(ctx context.Context) error {
	return s.gate.Confirm(ctx)
}

// CancelAlert stands the pending alert down.
func (s *Service) CancelAlert(ctx context.Context) error {
	return s.gate.Cancel(ctx)
}

// SubscribeAlerts registers a gate listener for push-style observers.
func (s *Service) SubscribeAlerts(l gate.Listener) func() {
	return s.gate.Subscribe(l)
}

// Rules returns the current detection rules.
func (s *Service) Rules() detector.Rules {
	return s.detector.Rules()
}

// SetRules replaces the detection rules after validation.
func (s *Service) SetRules(rules detector.Rules) error {
	return s.detector.SetRules(rules)
}

// Contacts returns a copy of the registered emergency contacts.
func (s *Service) Contacts() []model.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Contact, len(s.contacts))
	copy(out, s.contacts)
	return out
}

// SetContacts replaces the emergency contacts after validating each entry.
func (s *Service) SetContacts(contacts []model.Contact) error {
	for _, c := range contacts {
		switch {
		case c.ID == "":
			return fmt.Errorf("%w: contact missing id", ErrInvalidContact)
		case c.Address == "":
			return fmt.Errorf("%w: contact %s missing address", ErrInvalidContact, c.ID)
		case !c.Channel.Valid():
			return fmt.Errorf("%w: contact %s has unknown channel %q", ErrInvalidContact, c.ID, c.Channel)
		case !c.Priority.Valid():
			return fmt.Errorf("%w: contact %s has unknown priority %q", ErrInvalidContact, c.ID, c.Priority)
		}
	}

	s.mu.Lock()
	s.contacts = contacts
	s.mu.Unlock()
	return nil
}

// Notifications returns the delivery queue contents.
func (s *Service) Notifications() []model.QueuedNotification {
	return s.queue.Notifications()
}

// AckNotification removes a notification from the queue.
func (s *Service) AckNotification(ctx context.Context, id string) error {
	return s.queue.Ack(ctx, id)
}

// Online reports the last observed connectivity.
func (s *Service) Online() bool {
	return s.monitor.Online()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	contacts := len(s.contacts)
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":  started,
		"contacts": contacts,
	}

	if started {
		stats["alert"] = s.gate.Snapshot()
		stats["queue"] = s.queue.Stats()
		stats["online"] = s.monitor.Online()
		stats["rules"] = s.detector.Rules()
	}

	return stats
}
