// Package rescache is the durable, TTL-aware store of resolved
// signal-key -> identity bindings. A hit short-circuits the matcher chain
// for returning visitors; rows double as the resolution audit trail, so
// they are invalidated rather than deleted.
package rescache

import (
	"context"
	"time"

	"kindred/internal/domain"
)

// Store persists cache entries. At most one valid entry exists per
// signal key; superseded entries keep their rows with valid=false.
type Store interface {
	// Get returns the valid entry for the key, or sentinel.ErrNotFound.
	Get(ctx context.Context, signalKey string) (*domain.CacheEntry, error)

	// Insert writes a new valid entry.
	Insert(ctx context.Context, entry *domain.CacheEntry) error

	// Touch refreshes last-seen and increments times-matched on the
	// valid entry.
	Touch(ctx context.Context, signalKey string, seenAt time.Time) error

	// Invalidate flips the valid flag on the current entry, preserving
	// the row for audit.
	Invalidate(ctx context.Context, signalKey string) error

	// GetByFingerprint returns the valid entry bound to a device
	// fingerprint, regardless of the full composite key it was written
	// under. Used by the fingerprint tier.
	GetByFingerprint(ctx context.Context, fingerprintHash string) (*domain.CacheEntry, error)
}
