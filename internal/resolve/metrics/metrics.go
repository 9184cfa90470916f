package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the matcher chain.
type Metrics struct {
	// Resolutions by method tag and signal kind
	Resolutions *prometheus.CounterVec

	// Tier-internal failures by method tag and error category
	TierFailures *prometheus.CounterVec

	// Full chain latency
	ResolveLatency prometheus.Histogram

	// Threshold events emitted to the side channel
	EventsEmitted prometheus.Counter
}

// New creates and registers all matcher chain metrics.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_resolutions_total",
			Help: "Resolutions by method tag and signal kind",
		}, []string{"method", "kind"}),

		TierFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_tier_failures_total",
			Help: "Tier-internal failures treated as declines",
		}, []string{"method", "category"}),

		ResolveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kindred_resolve_duration_seconds",
			Help:    "Duration of full chain resolution including tier evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		EventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kindred_threshold_events_total",
			Help: "High-confidence resolution events emitted to the side channel",
		}),
	}
}

// ObserveResolution records one chain outcome.
func (m *Metrics) ObserveResolution(method, kind string) {
	if m != nil {
		m.Resolutions.WithLabelValues(method, kind).Inc()
	}
}

// ObserveTierFailure records a tier-internal failure that became a
// decline.
func (m *Metrics) ObserveTierFailure(method, category string) {
	if m != nil {
		m.TierFailures.WithLabelValues(method, category).Inc()
	}
}

// ObserveResolveLatency records the total chain duration.
func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}

// IncrementEventsEmitted records one threshold event.
func (m *Metrics) IncrementEventsEmitted() {
	if m != nil {
		m.EventsEmitted.Inc()
	}
}
