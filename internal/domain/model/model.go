// Package model contains domain models passed between layers.
package model

import "time"

// HeartRateSample is a single reading from the wearable transport.
// Immutable; produced by ingest and consumed by the detector.
type HeartRateSample struct {
	Value  int       `json:"value"`            // beats per minute
	TS     time.Time `json:"ts"`               // device timestamp
	Source string    `json:"source,omitempty"` // optional source context, e.g. "wrist"
}

// DetectionKind identifies the rule that fired for a sample.
type DetectionKind string

const (
	KindExtremeSpike  DetectionKind = "extreme_spike"
	KindRapidIncrease DetectionKind = "rapid_increase"
	KindHighThreshold DetectionKind = "high_threshold"
	KindLowThreshold  DetectionKind = "low_threshold"
)

// Priority orders kinds by clinical urgency; higher fires first and
// preempts a pending lower-priority alert.
func (k DetectionKind) Priority() int {
	switch k {
	case KindExtremeSpike:
		return 4
	case KindRapidIncrease:
		return 3
	case KindHighThreshold:
		return 2
	case KindLowThreshold:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the kind is one of the known detection kinds.
func (k DetectionKind) Valid() bool {
	return k.Priority() > 0
}

// DetectionEvent is emitted by the detector when a rule fires.
// Consumed exactly once by the confirmation gate; never persisted.
type DetectionEvent struct {
	Kind       DetectionKind `json:"kind"`
	HeartRate  int           `json:"heart_rate"`
	Baseline   int           `json:"baseline,omitempty"` // earliest in-window sample, pattern kinds only
	DetectedAt time.Time     `json:"detected_at"`
	Details    string        `json:"details"`
}

// NotificationChannel abstracts the delivery medium for a contact.
type NotificationChannel string

const (
	ChannelPush  NotificationChannel = "push"
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
)

// Valid reports whether the channel is a known delivery medium.
func (c NotificationChannel) Valid() bool {
	switch c {
	case ChannelPush, ChannelSMS, ChannelEmail:
		return true
	default:
		return false
	}
}

// NotificationPriority is the delivery urgency tier used to order queue
// processing.
type NotificationPriority string

const (
	PriorityCritical NotificationPriority = "critical"
	PriorityHigh     NotificationPriority = "high"
	PriorityNormal   NotificationPriority = "normal"
)

// Rank maps a priority to a sortable weight; higher processes first.
func (p NotificationPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is a known tier.
func (p NotificationPriority) Valid() bool {
	return p.Rank() > 0
}

// Contact is a registered emergency recipient.
type Contact struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Channel  NotificationChannel  `json:"channel"`
	Address  string               `json:"address"`
	Priority NotificationPriority `json:"priority"`
}

// EmergencyEvent is synthesized by the confirmation gate on confirm or
// countdown expiry. Immutable thereafter; owned by the delivery queue until
// all derived notifications reach a terminal state.
type EmergencyEvent struct {
	ID          string        `json:"id"`
	Kind        DetectionKind `json:"kind"`
	HeartRate   int           `json:"heart_rate"`
	DetectedAt  time.Time     `json:"detected_at"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
	Location    string        `json:"location,omitempty"`
	Recipients  []Contact     `json:"recipients"`
}

// NotificationStatus tracks a queued notification through its lifecycle.
// Pending -> Sending -> {Sent | Failed}; a Failed entry re-enters Sending
// when its retry comes due, or becomes Expired once attempts are exhausted.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSending NotificationStatus = "sending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
	StatusExpired NotificationStatus = "expired"
)

// Terminal reports whether no further automatic transition occurs.
func (s NotificationStatus) Terminal() bool {
	return s == StatusSent || s == StatusExpired
}

// QueuedNotification is one pending delivery to one recipient. Exactly one
// exists per (emergency event, recipient) pair. Persisted to the durable
// store on every status transition.
type QueuedNotification struct {
	ID            string               `json:"id"`
	EmergencyID   string               `json:"emergency_id"`
	RecipientID   string               `json:"recipient_id"`
	Channel       NotificationChannel  `json:"channel"`
	Address       string               `json:"address"`
	Message       string               `json:"message"`
	Priority      NotificationPriority `json:"priority"`
	Status        NotificationStatus   `json:"status"`
	AttemptCount  int                  `json:"attempt_count"`
	LastAttemptAt time.Time            `json:"last_attempt_at,omitempty"`
	NextRetryAt   time.Time            `json:"next_retry_at,omitempty"`
	EnqueuedAt    time.Time            `json:"enqueued_at"`
	SentAt        time.Time            `json:"sent_at,omitempty"`
}

// DedupeKey identifies the (event, recipient) pair a notification derives
// from; the queue guarantees at most one notification per key.
func (n QueuedNotification) DedupeKey() string {
	return n.EmergencyID + ":" + n.RecipientID
}
