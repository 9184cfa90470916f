package reconcile

import (
	"context"
	"sync"

	"kindred/pkg/platform/sentinel"
)

// InMemoryStore keeps decisions in a map for tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	decisions map[string]Decision
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{decisions: make(map[string]Decision)}
}

func (s *InMemoryStore) Get(_ context.Context, signalID string) (*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decision, ok := s.decisions[signalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &decision, nil
}

func (s *InMemoryStore) Insert(_ context.Context, decision Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[decision.SignalID]; ok {
		return sentinel.ErrConflict
	}
	s.decisions[decision.SignalID] = decision
	return nil
}

// Len reports how many decisions are recorded.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.decisions)
}
