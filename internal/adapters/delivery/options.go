package delivery

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulsegate/internal/domain/dedupe"
	"github.com/okian/pulsegate/pkg/logger"
)

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithClock injects the time source. Tests pass a mock clock to drive
// retries and cleanup deterministically.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clk = c
		}
	}
}

// WithCycleInterval sets the period between delivery cycles.
func WithCycleInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.cycleInterval = d
		}
	}
}

// WithBatchSize caps sends per cycle.
func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithMaxAttempts sets how many failures expire a notification.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithRetryPolicy sets the backoff parameters. Zero jitter makes retry
// scheduling fully deterministic, which tests rely on.
func WithRetryPolicy(base, max, jitter time.Duration) Option {
	return func(q *Queue) {
		if base > 0 && max >= base && jitter >= 0 {
			q.policy = newBackoffPolicy(base, max, jitter)
		}
	}
}

// WithSentGrace sets how long a sent notification lingers before cleanup.
func WithSentGrace(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.sentGrace = d
		}
	}
}

// WithFailedRetention sets how long a failed notification is kept.
func WithFailedRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.failedRetention = d
		}
	}
}

// WithSendTimeout bounds each transport attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.sendTimeout = d
		}
	}
}

// WithDeduper replaces the fan-out deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(q *Queue) {
		if d != nil {
			q.deduper = d
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.lg = l
		}
	}
}
