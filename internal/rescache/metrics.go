package rescache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the resolution cache.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	Invalidations prometheus.Counter
}

// NewMetrics registers the cache metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_cache_lookups_total",
			Help: "Resolution cache lookups by outcome",
		}, []string{"outcome"}), // outcome: "hit", "stale", "miss"

		Invalidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kindred_cache_invalidations_total",
			Help: "Cache entries invalidated by contradicting re-resolution",
		}),
	}
}

// ObserveLookup records one lookup outcome.
func (m *Metrics) ObserveLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}

// IncrementInvalidations records one contradiction invalidation.
func (m *Metrics) IncrementInvalidations() {
	if m != nil {
		m.Invalidations.Inc()
	}
}
