// Package delivery owns the durable notification queue: fan-out per
// recipient, prioritized batched sending, exponential backoff, and
// write-through persistence so nothing is lost across restarts.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/okian/pulsegate/internal/adapters/repository"
	"github.com/okian/pulsegate/internal/adapters/transport"
	"github.com/okian/pulsegate/internal/domain/dedupe"
	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
	"github.com/okian/pulsegate/pkg/metrics"
)

// Default queue tuning.
const (
	defaultCycleInterval   = 30 * time.Second
	defaultBatchSize       = 3
	defaultMaxAttempts     = 5
	defaultRetryBase       = 30 * time.Second
	defaultRetryMax        = 300 * time.Second
	defaultRetryJitter     = 30 * time.Second
	defaultSentGrace       = 60 * time.Second
	defaultFailedRetention = 24 * time.Hour
	defaultSendTimeout     = 10 * time.Second
)

// Stats summarizes the queue for the stats endpoint.
type Stats struct {
	Pending  int  `json:"pending"`
	Sending  int  `json:"sending"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Expired  int  `json:"expired"`
	Online   bool `json:"online"`
	Depth    int  `json:"depth"`
	Total    int  `json:"total"`
	Restored int  `json:"restored"`
}

// Queue is the durable notification delivery queue. Enqueue and Ack are safe
// from any goroutine; processing runs on one lane (Run, or ProcessCycle in
// tests) so attempts never race each other.
type Queue struct {
	clk     clock.Clock
	store   repository.Store
	sender  transport.Sender
	deduper dedupe.Deduper
	lg      logger.Logger

	cycleInterval   time.Duration
	batchSize       int
	maxAttempts     int
	policy          backoffPolicy
	sentGrace       time.Duration
	failedRetention time.Duration
	sendTimeout     time.Duration

	online   atomic.Bool
	wake     chan struct{}
	restored atomic.Int64

	mu    sync.Mutex
	items map[string]*model.QueuedNotification
}

// New creates a queue over the given store and sender with configuration
// options.
func New(store repository.Store, sender transport.Sender, opts ...Option) *Queue {
	q := &Queue{
		clk:             clock.New(),
		store:           store,
		sender:          sender,
		deduper:         dedupe.NewInMemoryDeduper(),
		lg:              logger.Named("delivery"),
		cycleInterval:   defaultCycleInterval,
		batchSize:       defaultBatchSize,
		maxAttempts:     defaultMaxAttempts,
		policy:          newBackoffPolicy(defaultRetryBase, defaultRetryMax, defaultRetryJitter),
		sentGrace:       defaultSentGrace,
		failedRetention: defaultFailedRetention,
		sendTimeout:     defaultSendTimeout,
		wake:            make(chan struct{}, 1),
		items:           make(map[string]*model.QueuedNotification),
	}
	q.online.Store(true)

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Restore rebuilds the in-memory queue from the durable store. Entries
// caught mid-send by a crash go back to pending; sent entries past their
// grace window are dropped. Call once before Run.
func (q *Queue) Restore(ctx context.Context) error {
	persisted, err := q.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}

	now := q.clk.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range persisted {
		n := persisted[i]
		switch {
		case n.Status == model.StatusSending:
			// Crash mid-flight: the attempt outcome is unknown, retry.
			n.Status = model.StatusPending
			if err := q.store.Save(ctx, n); err != nil {
				q.lg.Error(ctx, "persist restored notification", logger.Error(err),
					logger.String("notification_id", n.ID))
			}
		case n.Status == model.StatusSent && !now.Before(n.SentAt.Add(q.sentGrace)):
			if err := q.store.Delete(ctx, n.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				q.lg.Error(ctx, "drop stale sent notification", logger.Error(err),
					logger.String("notification_id", n.ID))
			}
			continue
		}

		q.items[n.ID] = &n
		q.deduper.SeenAndRecord(ctx, n.DedupeKey())
		q.restored.Add(1)
	}

	q.lg.Info(ctx, "delivery queue restored",
		logger.Int("notifications", len(q.items)))
	q.updateDepthLocked()
	return nil
}

// Enqueue fans the emergency out to one notification per recipient and
// persists each before returning. A recipient already queued for this
// emergency is skipped.
func (q *Queue) Enqueue(ctx context.Context, emergency model.EmergencyEvent) error {
	if len(emergency.Recipients) == 0 {
		return ErrNoRecipients
	}

	now := q.clk.Now()
	for _, contact := range emergency.Recipients {
		n := model.QueuedNotification{
			ID:          uuid.NewString(),
			EmergencyID: emergency.ID,
			RecipientID: contact.ID,
			Channel:     contact.Channel,
			Address:     contact.Address,
			Message:     composeMessage(emergency, contact),
			Priority:    contact.Priority,
			Status:      model.StatusPending,
			EnqueuedAt:  now,
		}

		if q.deduper.SeenAndRecord(ctx, n.DedupeKey()) {
			q.lg.Debug(ctx, "recipient already queued for emergency",
				logger.String("emergency_id", emergency.ID),
				logger.String("recipient_id", contact.ID))
			continue
		}

		if err := q.store.Save(ctx, n); err != nil {
			q.deduper.Unrecord(ctx, n.DedupeKey())
			return fmt.Errorf("enqueue notification: %w", err)
		}

		q.mu.Lock()
		q.items[n.ID] = &n
		q.updateDepthLocked()
		q.mu.Unlock()
		metrics.RecordNotificationEnqueued()
	}

	q.kick()
	return nil
}

// composeMessage renders the text sent to a contact.
func composeMessage(emergency model.EmergencyEvent, contact model.Contact) string {
	msg := fmt.Sprintf("EMERGENCY (%s): heart rate %d bpm detected at %s, confirmed at %s.",
		emergency.Kind, emergency.HeartRate,
		emergency.DetectedAt.Format(time.RFC3339),
		emergency.ConfirmedAt.Format(time.RFC3339))
	if emergency.Location != "" {
		msg += " Last known location: " + emergency.Location + "."
	}
	if contact.Name != "" {
		msg = contact.Name + " — " + msg
	}
	return msg
}

// Run drives the queue until ctx is done: one cycle per interval plus an
// immediate cycle whenever kicked by an enqueue or an online transition.
func (q *Queue) Run(ctx context.Context) {
	ticker := q.clk.Ticker(q.cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.ProcessCycle(ctx)
		case <-q.wake:
			q.ProcessCycle(ctx)
		}
	}
}

// ProcessCycle runs one delivery pass: cleanup, then up to batchSize sends
// in (priority desc, enqueued asc) order. Offline cycles only clean up.
func (q *Queue) ProcessCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.RecordCycleLatency(float64(time.Since(start).Milliseconds()))
	}()

	now := q.clk.Now()
	q.cleanup(ctx, now)

	if !q.online.Load() {
		q.lg.Debug(ctx, "offline, deferring delivery cycle")
		return
	}

	for _, n := range q.nextBatch(now) {
		q.attempt(ctx, n)
	}

	q.mu.Lock()
	q.updateDepthLocked()
	q.mu.Unlock()
}

// nextBatch selects due notifications in (priority desc, enqueued asc)
// order, at most batchSize of them.
func (q *Queue) nextBatch(now time.Time) []*model.QueuedNotification {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*model.QueuedNotification
	for _, n := range q.items {
		switch n.Status {
		case model.StatusPending:
			due = append(due, n)
		case model.StatusFailed:
			if !now.Before(n.NextRetryAt) {
				due = append(due, n)
			}
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority.Rank() != due[j].Priority.Rank() {
			return due[i].Priority.Rank() > due[j].Priority.Rank()
		}
		return due[i].EnqueuedAt.Before(due[j].EnqueuedAt)
	})

	if len(due) > q.batchSize {
		due = due[:q.batchSize]
	}
	return due
}

// attempt performs one transport send for the notification and persists the
// resulting transition.
func (q *Queue) attempt(ctx context.Context, n *model.QueuedNotification) {
	q.transition(ctx, n, func(n *model.QueuedNotification) {
		n.Status = model.StatusSending
	})

	sendCtx, cancel := context.WithTimeout(ctx, q.sendTimeout)
	sendStart := time.Now()
	err := q.sender.Send(sendCtx, n.Address, n.Channel, n.Message)
	cancel()

	metrics.RecordDeliveryAttempt()
	metrics.RecordSendLatency(float64(time.Since(sendStart).Milliseconds()))

	now := q.clk.Now()
	if err == nil {
		q.transition(ctx, n, func(n *model.QueuedNotification) {
			n.Status = model.StatusSent
			n.LastAttemptAt = now
			n.SentAt = now
		})
		metrics.RecordNotificationSent()
		q.lg.Info(ctx, "notification delivered",
			logger.String("notification_id", n.ID),
			logger.String("recipient_id", n.RecipientID),
			logger.String("channel", string(n.Channel)))
		return
	}

	q.transition(ctx, n, func(n *model.QueuedNotification) {
		n.AttemptCount++
		n.LastAttemptAt = now
		if n.AttemptCount >= q.maxAttempts {
			n.Status = model.StatusExpired
			return
		}
		n.Status = model.StatusFailed
		n.NextRetryAt = now.Add(q.policy.delay(n.AttemptCount))
	})

	if n.Status == model.StatusExpired {
		metrics.RecordNotificationExpired()
		q.lg.Error(ctx, "notification expired after max attempts",
			logger.String("notification_id", n.ID),
			logger.String("recipient_id", n.RecipientID),
			logger.Int("attempts", n.AttemptCount))
		return
	}

	metrics.RecordNotificationFailed()
	metrics.RecordRetryScheduled()
	q.lg.Warn(ctx, "notification send failed, retry scheduled",
		logger.String("notification_id", n.ID),
		logger.Error(err),
		logger.Int("attempts", n.AttemptCount),
		logger.Duration("retry_in", n.NextRetryAt.Sub(now)))
}

// transition mutates the notification under the lock and writes it through
// to the durable store. An entry acknowledged while its send was in flight
// is already deleted everywhere; persisting it again would resurrect it on
// the next restore, so the write-through is skipped.
func (q *Queue) transition(ctx context.Context, n *model.QueuedNotification, mutate func(*model.QueuedNotification)) {
	q.mu.Lock()
	mutate(n)
	snapshot := *n
	_, tracked := q.items[snapshot.ID]
	q.mu.Unlock()

	if !tracked {
		q.lg.Debug(ctx, "notification acknowledged mid-flight, skipping persist",
			logger.String("notification_id", snapshot.ID))
		return
	}

	if err := q.store.Save(ctx, snapshot); err != nil {
		q.lg.Error(ctx, "persist notification transition", logger.Error(err),
			logger.String("notification_id", snapshot.ID),
			logger.String("status", string(snapshot.Status)))
	}
}

// cleanup drops sent entries past their grace window and failed entries past
// retention. Expired entries stay until acknowledged.
func (q *Queue) cleanup(ctx context.Context, now time.Time) {
	q.mu.Lock()
	var remove []*model.QueuedNotification
	for _, n := range q.items {
		switch n.Status {
		case model.StatusSent:
			if !now.Before(n.SentAt.Add(q.sentGrace)) {
				remove = append(remove, n)
			}
		case model.StatusFailed:
			if !now.Before(n.LastAttemptAt.Add(q.failedRetention)) {
				remove = append(remove, n)
			}
		}
	}
	for _, n := range remove {
		delete(q.items, n.ID)
	}
	q.updateDepthLocked()
	q.mu.Unlock()

	for _, n := range remove {
		if err := q.store.Delete(ctx, n.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			q.lg.Error(ctx, "remove finished notification", logger.Error(err),
				logger.String("notification_id", n.ID))
		}
		q.deduper.Unrecord(ctx, n.DedupeKey())
	}
}

// Ack removes a notification regardless of status. This is how an expired
// notification finally leaves the queue.
func (q *Queue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	n, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return ErrUnknownNotification
	}
	delete(q.items, id)
	q.updateDepthLocked()
	q.mu.Unlock()

	if err := q.store.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("acknowledge notification: %w", err)
	}
	q.deduper.Unrecord(ctx, n.DedupeKey())
	return nil
}

// ConnectivityChanged implements the network monitor listener. Coming back
// online triggers an immediate cycle.
func (q *Queue) ConnectivityChanged(online bool) {
	was := q.online.Swap(online)
	if online && !was {
		q.lg.Info(context.Background(), "network restored, flushing queue")
		q.kick()
	}
}

// kick requests an immediate cycle without blocking.
func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Notifications returns the queue contents in (priority desc, enqueued asc)
// order.
func (q *Queue) Notifications() []model.QueuedNotification {
	q.mu.Lock()
	out := make([]model.QueuedNotification, 0, len(q.items))
	for _, n := range q.items {
		out = append(out, *n)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// Stats summarizes the queue.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Online:   q.online.Load(),
		Total:    len(q.items),
		Restored: int(q.restored.Load()),
	}
	for _, n := range q.items {
		switch n.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusSending:
			s.Sending++
		case model.StatusSent:
			s.Sent++
		case model.StatusFailed:
			s.Failed++
		case model.StatusExpired:
			s.Expired++
		}
	}
	s.Depth = s.Pending + s.Sending + s.Failed
	return s
}

// updateDepthLocked publishes the live queue depth. Must be called with
// q.mu held.
func (q *Queue) updateDepthLocked() {
	depth := 0
	for _, n := range q.items {
		if !n.Status.Terminal() {
			depth++
		}
	}
	metrics.UpdateQueueDepth(depth)
}
