// Package repository persists queued notifications so the delivery queue
// survives restarts.
package repository

import (
	"context"

	"github.com/okian/pulsegate/internal/domain/model"
)

// Store is the durable record of queued notifications. Every state
// transition is written through; on startup the queue is rebuilt from
// LoadAll.
type Store interface {
	// Save writes the notification, creating or overwriting by ID.
	Save(ctx context.Context, n model.QueuedNotification) error

	// LoadAll returns every persisted notification in unspecified order.
	LoadAll(ctx context.Context) ([]model.QueuedNotification, error)

	// Delete removes the notification by ID. Deleting an absent ID returns
	// ErrNotFound.
	Delete(ctx context.Context, id string) error
}
