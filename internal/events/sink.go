package events

import (
	"context"
	"sync"
)

// Sink delivers resolution events to a downstream transport.
type Sink interface {
	Publish(ctx context.Context, event ResolutionEvent) error
	Close() error
}

// MemorySink collects events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []ResolutionEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, event ResolutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []ResolutionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ResolutionEvent, len(s.events))
	copy(out, s.events)
	return out
}
