package batch

import (
	"context"
	"sync"
	"time"

	"kindred/pkg/platform/sentinel"
)

// InMemoryStore keeps checkpoints in a map for tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	commits     int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checkpoints: make(map[string]Checkpoint)}
}

func (s *InMemoryStore) Get(_ context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[runID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &cp, nil
}

func (s *InMemoryStore) Commit(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.UpdatedAt = time.Now()
	s.checkpoints[cp.RunID] = cp
	s.commits++
	return nil
}

// Commits reports how many commits were made.
func (s *InMemoryStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}
