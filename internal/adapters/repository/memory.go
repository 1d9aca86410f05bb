package repository

import (
	"context"
	"sync"

	"github.com/okian/pulsegate/internal/domain/model"
)

// MemoryStore keeps notifications in process memory. It is the default when
// no redis address is configured; durability is then limited to the process
// lifetime.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]model.QueuedNotification
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]model.QueuedNotification)}
}

// Save writes the notification, creating or overwriting by ID.
func (s *MemoryStore) Save(_ context.Context, n model.QueuedNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[n.ID] = n
	return nil
}

// LoadAll returns every persisted notification.
func (s *MemoryStore) LoadAll(_ context.Context) ([]model.QueuedNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.QueuedNotification, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, n)
	}
	return out, nil
}

// Delete removes the notification by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
