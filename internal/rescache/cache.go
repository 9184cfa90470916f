package rescache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"kindred/internal/domain"
	"kindred/internal/platform/keylock"
	"kindred/pkg/platform/sentinel"
)

// DefaultStaleness is how long a binding is trusted before the chain
// re-runs to confirm or contradict it.
const DefaultStaleness = 30 * 24 * time.Hour

const hotKeyPrefix = "rc:"

// Freshness classifies a lookup result.
type Freshness int

const (
	Miss Freshness = iota
	Fresh
	Stale
)

// Cache layers a Redis hot copy over the durable postgres rows. Redis may
// be absent (nil client); everything then falls through to the store.
// Writes for the same signal key serialize; distinct keys do not contend.
type Cache struct {
	store     Store
	hot       *redis.Client
	staleness time.Duration
	keys      *keylock.KeyedMutex
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleness overrides the staleness window.
func WithStaleness(d time.Duration) Option {
	return func(c *Cache) { c.staleness = d }
}

// WithHotCopy attaches a Redis client for the hot read path.
func WithHotCopy(client *redis.Client) Option {
	return func(c *Cache) { c.hot = client }
}

// WithMetrics attaches cache metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a resolution cache over the given durable store.
func New(store Store, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		staleness: DefaultStaleness,
		keys:      keylock.New(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Lookup returns the entry bound to the signal key and its freshness. A
// Fresh result has already had last-seen refreshed and times-matched
// incremented; the caller returns it without running the chain. A Stale
// result obliges the caller to re-run the chain and then call Confirm or
// Replace. Redis misses fall through to the durable rows.
func (c *Cache) Lookup(ctx context.Context, signalKey string) (*domain.CacheEntry, Freshness, error) {
	if signalKey == "" {
		return nil, Miss, nil
	}

	entry := c.hotGet(ctx, signalKey)
	if entry == nil {
		stored, err := c.store.Get(ctx, signalKey)
		if errors.Is(err, sentinel.ErrNotFound) {
			c.metrics.ObserveLookup("miss")
			return nil, Miss, nil
		}
		if err != nil {
			return nil, Miss, fmt.Errorf("cache lookup: %w", err)
		}
		entry = stored
	}

	now := c.now()
	if now.Sub(entry.LastSeen) > c.staleness {
		c.metrics.ObserveLookup("stale")
		return entry, Stale, nil
	}

	// The fresh-hit touch is a write, so it takes the same per-key lock
	// as Confirm, Upsert and Invalidate. Re-read the durable row under
	// the lock: a writer may have invalidated or rebound the key after
	// the read above, and touching the old entry would resurrect it in
	// the hot copy.
	unlock := c.keys.Lock(signalKey)
	defer unlock()

	current, err := c.store.Get(ctx, signalKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		c.hotDel(ctx, signalKey)
		c.metrics.ObserveLookup("miss")
		return nil, Miss, nil
	}
	if err != nil {
		return nil, Miss, fmt.Errorf("cache lookup: %w", err)
	}
	if now.Sub(current.LastSeen) > c.staleness {
		c.metrics.ObserveLookup("stale")
		return current, Stale, nil
	}

	if err := c.touch(ctx, current, now); err != nil {
		return nil, Miss, err
	}
	c.metrics.ObserveLookup("hit")
	return current, Fresh, nil
}

// LookupFingerprint serves the fingerprint tier: valid binding by device
// fingerprint only, no freshness bookkeeping, no network.
func (c *Cache) LookupFingerprint(ctx context.Context, fingerprintHash string) (*domain.CacheEntry, error) {
	entry, err := c.store.GetByFingerprint(ctx, fingerprintHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache fingerprint lookup: %w", err)
	}
	return entry, nil
}

// Confirm refreshes a stale entry whose re-resolution agreed with the
// stored identity.
func (c *Cache) Confirm(ctx context.Context, entry *domain.CacheEntry) error {
	unlock := c.keys.Lock(entry.SignalKey)
	defer unlock()
	return c.touch(ctx, entry, c.now())
}

// Upsert records a resolution for the signal key. A first resolution
// inserts; a re-resolution that agrees refreshes; one that contradicts the
// stored identity invalidates the old row and inserts the new binding.
// Comparison is by identity id, never by confidence.
func (c *Cache) Upsert(ctx context.Context, signalKey string, sig domain.Signal, result domain.MatchResult, contact domain.ContactSnapshot) error {
	if signalKey == "" {
		return nil
	}

	unlock := c.keys.Lock(signalKey)
	defer unlock()

	now := c.now()
	existing, err := c.store.Get(ctx, signalKey)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// first resolution for this key
	case err != nil:
		return fmt.Errorf("cache upsert: %w", err)
	case sameIdentity(existing.IdentityID, result.IdentityID):
		return c.touch(ctx, existing, now)
	default:
		if c.logger != nil {
			c.logger.InfoContext(ctx, "cache binding contradicted",
				"signal_key", signalKey,
				"old_identity", existing.IdentityID,
				"new_identity", result.IdentityID,
			)
		}
		c.metrics.IncrementInvalidations()
		if err := c.store.Invalidate(ctx, signalKey); err != nil {
			return fmt.Errorf("cache upsert: %w", err)
		}
	}

	entry := &domain.CacheEntry{
		SignalKey:       signalKey,
		FingerprintHash: sig.FingerprintHash,
		IdentityID:      result.IdentityID,
		Method:          result.Method,
		Confidence:      result.Confidence,
		Contact:         contact,
		FirstSeen:       now,
		LastSeen:        now,
		TimesMatched:    1,
		Valid:           true,
	}
	if err := c.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	c.hotSet(ctx, entry)
	return nil
}

// Invalidate removes a binding explicitly (identity merge/unmerge
// upstream). The row survives with valid=false.
func (c *Cache) Invalidate(ctx context.Context, signalKey string) error {
	unlock := c.keys.Lock(signalKey)
	defer unlock()

	if err := c.store.Invalidate(ctx, signalKey); err != nil {
		return err
	}
	c.hotDel(ctx, signalKey)
	return nil
}

func (c *Cache) touch(ctx context.Context, entry *domain.CacheEntry, now time.Time) error {
	if err := c.store.Touch(ctx, entry.SignalKey, now); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("cache touch: %w", err)
	}
	entry.LastSeen = now
	entry.TimesMatched++
	c.hotSet(ctx, entry)
	return nil
}

// hotGet reads the Redis copy; any Redis failure degrades silently to the
// durable store.
func (c *Cache) hotGet(ctx context.Context, signalKey string) *domain.CacheEntry {
	if c.hot == nil {
		return nil
	}
	raw, err := c.hot.Get(ctx, hotKeyPrefix+signalKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "hot cache read failed", "error", err)
		}
		return nil
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil
	}
	return &entry
}

func (c *Cache) hotSet(ctx context.Context, entry *domain.CacheEntry) {
	if c.hot == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.hot.Set(ctx, hotKeyPrefix+entry.SignalKey, raw, c.staleness).Err(); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "hot cache write failed", "error", err)
		}
	}
}

func (c *Cache) hotDel(ctx context.Context, signalKey string) {
	if c.hot == nil {
		return
	}
	if err := c.hot.Del(ctx, hotKeyPrefix+signalKey).Err(); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "hot cache delete failed", "error", err)
		}
	}
}

func sameIdentity(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
