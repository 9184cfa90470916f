// Package engine wires the resolution pipeline end to end: cache
// read-through, the matcher chain, reconciliation, cache write-back, and
// event emission.
package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"kindred/internal/domain"
	"kindred/internal/events"
	"kindred/internal/identity"
	"kindred/internal/normalize"
	"kindred/internal/reconcile"
	"kindred/internal/rescache"
	"kindred/internal/resolve"
)

// Service processes one signal at a time. Safe for concurrent use.
type Service struct {
	resolver   *resolve.Resolver
	reconciler *reconcile.Reconciler
	cache      *rescache.Cache
	identities identity.Store
	publisher  *events.Publisher
	logger     *slog.Logger
}

func New(
	resolver *resolve.Resolver,
	reconciler *reconcile.Reconciler,
	cache *rescache.Cache,
	identities identity.Store,
	publisher *events.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		resolver:   resolver,
		reconciler: reconciler,
		cache:      cache,
		identities: identities,
		publisher:  publisher,
		logger:     logger,
	}
}

// Process resolves, reconciles, and records one signal. A fresh cache hit
// short-circuits the matcher chain entirely; a stale hit re-runs the
// chain and confirms or replaces the cached binding depending on whether
// the fresh evaluation agrees with it.
func (s *Service) Process(ctx context.Context, sig domain.Signal) (domain.MatchResult, reconcile.Decision, error) {
	key := normalize.SignalKey(sig)

	var stale *domain.CacheEntry
	if key != "" && s.cache != nil {
		entry, freshness, err := s.cache.Lookup(ctx, key)
		switch {
		case err != nil:
			// Cache trouble never blocks resolution.
			s.warn(ctx, "cache lookup failed", sig.SignalID, err)
		case freshness == rescache.Fresh:
			return s.finishCached(ctx, sig, entry)
		case freshness == rescache.Stale:
			stale = entry
		}
	}

	result, nf := s.resolver.Resolve(ctx, sig)

	confirmed := false
	if stale != nil && result.Resolved() && sameIdentity(stale.IdentityID, result.IdentityID) {
		if err := s.cache.Confirm(ctx, stale); err != nil {
			s.warn(ctx, "cache confirm failed", sig.SignalID, err)
		}
		confirmed = true
	}

	decision, err := s.reconciler.Reconcile(ctx, sig, nf, result)
	if err != nil {
		return result, reconcile.Decision{}, err
	}

	final := result
	if decision.IdentityID != nil {
		final.IdentityID = decision.IdentityID
	}

	if key != "" && s.cache != nil && final.Resolved() && !confirmed {
		if err := s.cache.Upsert(ctx, key, sig, final, s.snapshot(ctx, *final.IdentityID)); err != nil {
			s.warn(ctx, "cache upsert failed", sig.SignalID, err)
		}
	}

	if s.publisher != nil {
		s.publisher.Emit(sig, final)
	}
	return final, decision, nil
}

// finishCached reconciles a fresh cache hit without touching the chain.
func (s *Service) finishCached(ctx context.Context, sig domain.Signal, entry *domain.CacheEntry) (domain.MatchResult, reconcile.Decision, error) {
	result := domain.MatchResult{
		IdentityID: entry.IdentityID,
		Method:     entry.Method,
		Confidence: entry.Confidence,
	}
	decision, err := s.reconciler.Reconcile(ctx, sig, normalize.Signal(sig), result)
	if err != nil {
		return result, reconcile.Decision{}, err
	}
	if s.publisher != nil {
		s.publisher.Emit(sig, result)
	}
	return result, decision, nil
}

// snapshot denormalizes the identity's contact fields onto the cache
// entry. Failures degrade to an empty snapshot.
func (s *Service) snapshot(ctx context.Context, id uuid.UUID) domain.ContactSnapshot {
	ident, err := s.identities.Get(ctx, id)
	if err != nil {
		return domain.ContactSnapshot{}
	}
	name := strings.TrimSpace(ident.FirstName + " " + ident.LastName)
	address := strings.TrimSpace(strings.Join(nonEmpty(ident.City, ident.State, ident.Zip5), ", "))
	return domain.ContactSnapshot{
		Name:    name,
		Email:   ident.Email,
		Phone:   ident.Phone,
		Address: address,
	}
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) warn(ctx context.Context, msg, signalID string, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, "signal_id", signalID, "error", err)
	}
}

func sameIdentity(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}
