// Package gate holds detected deviations for a confirmation window before
// declaring an emergency. Silence confirms; an explicit cancel stands down.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
	"github.com/okian/pulsegate/pkg/metrics"
)

// defaultConfirmationWindow is how long the wearer has to cancel a pending
// alert before it escalates.
const defaultConfirmationWindow = 15 * time.Second

// State is the gate's position in the alert lifecycle.
type State string

const (
	// StateIdle means no alert is pending.
	StateIdle State = "idle"
	// StateAwaitingConfirmation means a detection is held and counting down.
	StateAwaitingConfirmation State = "awaiting_confirmation"
	// StateConfirmed is the last resolution when the alert escalated.
	StateConfirmed State = "confirmed"
	// StateCancelled is the last resolution when the wearer stood down.
	StateCancelled State = "cancelled"
)

// Resolution says how a pending alert left the gate.
type Resolution string

const (
	// ResolutionTimeout: the countdown ran out, silence escalates.
	ResolutionTimeout Resolution = "timeout"
	// ResolutionManual: the wearer or a caregiver confirmed explicitly.
	ResolutionManual Resolution = "manual"
	// ResolutionCancelled: the wearer cancelled the pending alert.
	ResolutionCancelled Resolution = "cancelled"
)

// Snapshot is a point-in-time view of the gate for status queries.
type Snapshot struct {
	State     State                 `json:"state"`
	Pending   *model.DetectionEvent `json:"pending,omitempty"`
	Deadline  time.Time             `json:"deadline,omitempty"`
	Remaining time.Duration         `json:"remaining,omitempty"`

	// Last resolved alert, retained after the gate returns to idle.
	LastOutcome    State     `json:"last_outcome,omitempty"`
	LastResolvedAt time.Time `json:"last_resolved_at,omitempty"`
}

// Sink receives emergencies the gate has confirmed.
type Sink interface {
	EmergencyConfirmed(ctx context.Context, emergency model.EmergencyEvent)
}

// Listener observes the confirmation countdown. Callbacks run on the gate's
// goroutines and must not block.
type Listener interface {
	// CountdownTick fires roughly once per second while an alert is pending.
	CountdownTick(pending model.DetectionEvent, remaining time.Duration)

	// AlertResolved fires when the pending alert leaves the gate.
	AlertResolved(outcome State, how Resolution)
}

// Gate arbitrates pending alerts and their confirmation countdown.
type Gate interface {
	// Offer hands a detection to the gate. An idle gate arms the countdown;
	// a pending alert is replaced only by a strictly higher-priority kind,
	// which also restarts the countdown. Returns true when the detection was
	// accepted as the pending alert.
	Offer(ctx context.Context, ev model.DetectionEvent) bool

	// Confirm escalates the pending alert immediately.
	Confirm(ctx context.Context) error

	// Cancel stands the pending alert down. No emergency is raised.
	Cancel(ctx context.Context) error

	// Snapshot reports the current state for status queries.
	Snapshot() Snapshot

	// Subscribe registers a countdown listener. The returned function
	// removes it again.
	Subscribe(l Listener) func()
}

// ConfirmationGate implements Gate with a single pending slot. One alert at
// a time: overlapping detections compete on priority rather than queueing.
type ConfirmationGate struct {
	clk    clock.Clock
	window time.Duration
	sink   Sink
	lg     logger.Logger

	mu             sync.Mutex
	pending        *model.DetectionEvent
	deadline       time.Time
	timer          *clock.Timer
	generation     uint64 // invalidates timers from replaced or resolved alerts
	lastOutcome    State
	lastResolvedAt time.Time
	listeners      map[uint64]Listener
	nextListenerID uint64
}

// New creates a gate with configuration options.
func New(opts ...Option) *ConfirmationGate {
	g := &ConfirmationGate{
		clk:       clock.New(),
		window:    defaultConfirmationWindow,
		lg:        logger.Named("gate"),
		listeners: make(map[uint64]Listener),
	}

	// Apply all options
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Offer hands a detection to the gate.
func (g *ConfirmationGate) Offer(ctx context.Context, ev model.DetectionEvent) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		if ev.Kind.Priority() <= g.pending.Kind.Priority() {
			g.lg.Debug(ctx, "detection ignored, pending alert has equal or higher priority",
				logger.String("offered", string(ev.Kind)),
				logger.String("pending", string(g.pending.Kind)))
			return false
		}
		g.lg.Info(ctx, "pending alert replaced by higher-priority detection",
			logger.String("offered", string(ev.Kind)),
			logger.String("replaced", string(g.pending.Kind)))
	}

	g.armLocked(ev)
	return true
}

// armLocked installs ev as the pending alert and restarts the countdown.
// Must be called with g.mu held.
func (g *ConfirmationGate) armLocked(ev model.DetectionEvent) {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.generation++
	gen := g.generation
	g.pending = &ev
	g.deadline = g.clk.Now().Add(g.window)
	g.timer = g.clk.AfterFunc(g.window, func() {
		g.expire(gen)
	})
	// Register the ticker before returning so a mock clock advanced right
	// after Offer still drives the countdown.
	ticker := g.clk.Ticker(time.Second)
	go g.tickLoop(gen, ticker)

	g.lg.Info(context.Background(), "alert pending confirmation",
		logger.String("kind", string(ev.Kind)),
		logger.Int("heart_rate", ev.HeartRate),
		logger.Duration("window", g.window))
}

// tickLoop surfaces the countdown to listeners at 1 Hz until the alert of
// this generation resolves or is replaced.
func (g *ConfirmationGate) tickLoop(gen uint64, ticker *clock.Ticker) {
	defer ticker.Stop()

	for range ticker.C {
		g.mu.Lock()
		if gen != g.generation || g.pending == nil {
			g.mu.Unlock()
			return
		}
		pending := *g.pending
		remaining := g.deadline.Sub(g.clk.Now())
		ls := g.listenersLocked()
		g.mu.Unlock()

		if remaining < 0 {
			remaining = 0
		}
		for _, l := range ls {
			l.CountdownTick(pending, remaining)
		}
	}
}

// listenersLocked snapshots the listener set. Must be called with g.mu held.
func (g *ConfirmationGate) listenersLocked() []Listener {
	ls := make([]Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		ls = append(ls, l)
	}
	return ls
}

// Subscribe registers a countdown listener and returns its removal function.
func (g *ConfirmationGate) Subscribe(l Listener) func() {
	g.mu.Lock()
	id := g.nextListenerID
	g.nextListenerID++
	g.listeners[id] = l
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// notifyResolved fans the outcome out to listeners outside the lock.
func (g *ConfirmationGate) notifyResolved(outcome State, how Resolution) {
	g.mu.Lock()
	ls := g.listenersLocked()
	g.mu.Unlock()

	for _, l := range ls {
		l.AlertResolved(outcome, how)
	}
}

// expire fires when the countdown runs out. Silence confirms.
func (g *ConfirmationGate) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.generation || g.pending == nil {
		g.mu.Unlock()
		return
	}
	emergency := g.resolveLocked(StateConfirmed)
	g.mu.Unlock()

	metrics.RecordAlertCountdownExpired()
	g.notifyResolved(StateConfirmed, ResolutionTimeout)
	g.dispatch(context.Background(), emergency, ResolutionTimeout)
}

// Confirm escalates the pending alert immediately.
func (g *ConfirmationGate) Confirm(ctx context.Context) error {
	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return ErrNoPendingAlert
	}
	emergency := g.resolveLocked(StateConfirmed)
	g.mu.Unlock()

	g.notifyResolved(StateConfirmed, ResolutionManual)
	g.dispatch(ctx, emergency, ResolutionManual)
	return nil
}

// Cancel stands the pending alert down.
func (g *ConfirmationGate) Cancel(ctx context.Context) error {
	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return ErrNoPendingAlert
	}
	cancelled := *g.pending
	g.resolveLocked(StateCancelled)
	g.mu.Unlock()

	metrics.RecordAlertCancelled()
	g.notifyResolved(StateCancelled, ResolutionCancelled)
	g.lg.Info(ctx, "pending alert cancelled",
		logger.String("kind", string(cancelled.Kind)))
	return nil
}

// resolveLocked clears the pending slot and records the outcome. Returns the
// emergency synthesized from the pending alert; meaningful only for the
// confirmed outcome. Must be called with g.mu held.
func (g *ConfirmationGate) resolveLocked(outcome State) model.EmergencyEvent {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.generation++

	ev := *g.pending
	g.pending = nil
	g.deadline = time.Time{}
	g.lastOutcome = outcome
	g.lastResolvedAt = g.clk.Now()

	return model.EmergencyEvent{
		ID:          uuid.NewString(),
		Kind:        ev.Kind,
		HeartRate:   ev.HeartRate,
		DetectedAt:  ev.DetectedAt,
		ConfirmedAt: g.lastResolvedAt,
	}
}

// dispatch hands a confirmed emergency to the sink outside the lock.
func (g *ConfirmationGate) dispatch(ctx context.Context, emergency model.EmergencyEvent, how Resolution) {
	metrics.RecordAlertConfirmed()
	metrics.RecordEmergency()
	g.lg.Warn(ctx, "emergency confirmed",
		logger.String("emergency_id", emergency.ID),
		logger.String("kind", string(emergency.Kind)),
		logger.Int("heart_rate", emergency.HeartRate),
		logger.String("resolution", string(how)))

	if g.sink != nil {
		g.sink.EmergencyConfirmed(ctx, emergency)
	}
}

// Snapshot reports the current state for status queries.
func (g *ConfirmationGate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		State:          StateIdle,
		LastOutcome:    g.lastOutcome,
		LastResolvedAt: g.lastResolvedAt,
	}
	if g.pending != nil {
		pending := *g.pending
		snap.State = StateAwaitingConfirmation
		snap.Pending = &pending
		snap.Deadline = g.deadline
		if remaining := g.deadline.Sub(g.clk.Now()); remaining > 0 {
			snap.Remaining = remaining
		}
	}
	return snap
}
