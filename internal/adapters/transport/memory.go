package transport

import (
	"context"
	"sync"

	"github.com/okian/pulsegate/internal/domain/model"
)

// Delivery is one successful send recorded by the MemorySender.
type Delivery struct {
	Address string
	Channel model.NotificationChannel
	Message string
}

// MemorySender records sends in process memory and fails on demand. Used by
// queue and service tests to script transport behavior deterministically.
type MemorySender struct {
	mu       sync.Mutex
	sent     []Delivery
	failures map[string]int // address -> remaining scripted failures
	err      error
}

// NewMemorySender creates a sender that accepts everything.
func NewMemorySender() *MemorySender {
	return &MemorySender{failures: make(map[string]int)}
}

// FailNext makes the next n sends to the given address fail.
func (s *MemorySender) FailNext(address string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[address] = n
}

// FailAlways makes every send fail with err until cleared by passing nil.
func (s *MemorySender) FailAlways(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Send records the delivery or fails per script.
func (s *MemorySender) Send(_ context.Context, address string, channel model.NotificationChannel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if remaining := s.failures[address]; remaining > 0 {
		s.failures[address] = remaining - 1
		return ErrSendFailed
	}
	s.sent = append(s.sent, Delivery{Address: address, Channel: channel, Message: message})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *MemorySender) Sent() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.sent))
	copy(out, s.sent)
	return out
}
