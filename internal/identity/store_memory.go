package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"kindred/pkg/platform/sentinel"
)

// InMemoryStore keeps identities in a map for tests and single-process
// batch tooling.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]CanonicalIdentity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[uuid.UUID]CanonicalIdentity)}
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*CanonicalIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &ident, nil
}

func (s *InMemoryStore) Insert(_ context.Context, ident *CanonicalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	s.identities[ident.ID] = *ident
	return nil
}

func (s *InMemoryStore) EnrichContact(_ context.Context, id uuid.UUID, email, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ident.Email == "" {
		ident.Email = email
	}
	if ident.Phone == "" {
		ident.Phone = phone
	}
	ident.UpdatedAt = time.Now()
	s.identities[id] = ident
	return nil
}

func (s *InMemoryStore) AddActivity(_ context.Context, id uuid.UUID, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	ident.LifetimeAmountCents += amountCents
	ident.GiftCount++
	ident.UpdatedAt = time.Now()
	s.identities[id] = ident
	return nil
}

func (s *InMemoryStore) ForEach(_ context.Context, fn func(CanonicalIdentity) error) error {
	s.mu.RLock()
	snapshot := make([]CanonicalIdentity, 0, len(s.identities))
	for _, ident := range s.identities {
		snapshot = append(snapshot, ident)
	}
	s.mu.RUnlock()

	for _, ident := range snapshot {
		if err := fn(ident); err != nil {
			return err
		}
	}
	return nil
}
