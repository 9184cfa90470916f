package rescache

import (
	"context"
	"sync"
	"time"

	"kindred/internal/domain"
	"kindred/pkg/platform/sentinel"
)

// InMemoryStore keeps cache entries in maps for tests. Invalidated entries
// move to a history slice so the audit-trail behavior is observable.
type InMemoryStore struct {
	mu      sync.RWMutex
	valid   map[string]domain.CacheEntry
	history []domain.CacheEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{valid: make(map[string]domain.CacheEntry)}
}

func (s *InMemoryStore) Get(_ context.Context, signalKey string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.valid[signalKey]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &entry, nil
}

func (s *InMemoryStore) GetByFingerprint(_ context.Context, fingerprintHash string) (*domain.CacheEntry, error) {
	if fingerprintHash == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.CacheEntry
	for key := range s.valid {
		entry := s.valid[key]
		if entry.FingerprintHash != fingerprintHash {
			continue
		}
		if best == nil || entry.LastSeen.After(best.LastSeen) {
			best = &entry
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	copied := *best
	return &copied, nil
}

func (s *InMemoryStore) Insert(_ context.Context, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *entry
	stored.Valid = true
	s.valid[entry.SignalKey] = stored
	return nil
}

func (s *InMemoryStore) Touch(_ context.Context, signalKey string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.valid[signalKey]
	if !ok {
		return sentinel.ErrNotFound
	}
	entry.LastSeen = seenAt
	entry.TimesMatched++
	s.valid[signalKey] = entry
	return nil
}

func (s *InMemoryStore) Invalidate(_ context.Context, signalKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.valid[signalKey]
	if !ok {
		return nil
	}
	entry.Valid = false
	s.history = append(s.history, entry)
	delete(s.valid, signalKey)
	return nil
}

// History returns the invalidated entries, oldest first.
func (s *InMemoryStore) History() []domain.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CacheEntry, len(s.history))
	copy(out, s.history)
	return out
}
