// Package resolve implements the waterfall matcher chain: a fixed ordered
// list of tiers, each independently capable of producing a scored match or
// declining. The chain stops at the first acceptance so higher-priority
// deterministic evidence always beats lower-priority probabilistic
// evidence, even when scores are numerically adjacent.
package resolve

import (
	"context"

	"kindred/internal/domain"
)

// Tier is one strategy in the waterfall. Attempt returns (result, true)
// on acceptance and (_, false) on decline. An error is a tier-internal
// failure (dependency outage, store fault); the chain logs it, counts it,
// and treats it as a decline; ordinary failures never abort the chain.
type Tier interface {
	Method() domain.Method
	Attempt(ctx context.Context, sig domain.Signal, nf domain.NormalizedFields) (domain.MatchResult, bool, error)
}
