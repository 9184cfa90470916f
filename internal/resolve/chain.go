package resolve

import (
	"context"
	"log/slog"
	"time"

	"kindred/internal/domain"
	"kindred/internal/identity"
	"kindred/internal/normalize"
	"kindred/internal/rescache"
	"kindred/internal/resolve/metrics"
	"kindred/internal/resolve/provider"
	"kindred/pkg/platform/circuit"
)

// ChainConfig tunes the external lookup tier.
type ChainConfig struct {
	ProviderTimeout time.Duration
	ProviderRetries int
}

// DefaultChainConfig returns the production defaults.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		ProviderTimeout: 2 * time.Second,
		ProviderRetries: 2,
	}
}

// Chain builds the canonical tier order. The order is the contract: tiers
// are tried top to bottom and the first acceptance wins. client may be nil
// (no provider configured); the external tier then always declines.
func Chain(
	index *identity.Index,
	store identity.Store,
	cache *rescache.Cache,
	client provider.Client,
	breaker *circuit.Breaker,
	cfg ChainConfig,
	logger *slog.Logger,
) []Tier {
	return []Tier{
		&firstPartyTier{index: index},
		&externalTier{
			client:  client,
			breaker: breaker,
			index:   index,
			timeout: cfg.ProviderTimeout,
			retries: cfg.ProviderRetries,
			logger:  logger,
		},
		&nameZipTier{index: index},
		&nameCityTier{index: index},
		&fuzzyTier{index: index, store: store},
		&fingerprintTier{cache: cache},
		&geoTier{},
	}
}

// Resolver runs the waterfall over its tier list.
type Resolver struct {
	tiers   []Tier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver builds a resolver over an ordered tier list.
func NewResolver(tiers []Tier, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{tiers: tiers, logger: logger, metrics: m}
}

// Resolve normalizes the signal and walks the tiers in order, returning
// the first accepted result or Unresolved. It never returns an error for
// input or dependency failures: those decline the affected tier and the
// walk continues. The result is deterministic for a fixed signal and
// index state.
func (r *Resolver) Resolve(ctx context.Context, sig domain.Signal) (domain.MatchResult, domain.NormalizedFields) {
	start := time.Now()
	nf := normalize.Signal(sig)

	for i, tier := range r.tiers {
		result, accepted, err := tier.Attempt(ctx, sig, nf)
		if err != nil {
			category := string(domain.Category(err))
			r.metrics.ObserveTierFailure(string(tier.Method()), category)
			if r.logger != nil {
				r.logger.WarnContext(ctx, "tier failed, declining",
					"tier", i+1,
					"method", tier.Method(),
					"category", category,
					"error", err,
				)
			}
			continue
		}
		if !accepted {
			continue
		}
		result.Tier = i + 1
		r.metrics.ObserveResolution(string(result.Method), string(sig.Kind))
		r.metrics.ObserveResolveLatency(time.Since(start))
		return result, nf
	}

	r.metrics.ObserveResolution(string(domain.MethodUnresolved), string(sig.Kind))
	r.metrics.ObserveResolveLatency(time.Since(start))
	return domain.Unresolved(), nf
}
