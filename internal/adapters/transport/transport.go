// Package transport sends notifications to the outside world. The queue
// treats any Sender failure as transient and retries with backoff.
package transport

import (
	"context"

	"github.com/okian/pulsegate/internal/domain/model"
)

// Sender delivers a single message over a notification channel.
// Implementations must honor ctx cancellation; the queue bounds each attempt
// with a timeout.
type Sender interface {
	Send(ctx context.Context, address string, channel model.NotificationChannel, message string) error
}
