package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciler.
type Metrics struct {
	Decisions          *prometheus.CounterVec
	ConsistencyReplays prometheus.Counter
}

// NewMetrics registers the reconciler metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_reconcile_decisions_total",
			Help: "Reconciler decisions by kind",
		}, []string{"kind"}),

		ConsistencyReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kindred_reconcile_conflicting_replays_total",
			Help: "Replays whose content conflicted with the recorded decision",
		}),
	}
}

// ObserveDecision records one decision outcome.
func (m *Metrics) ObserveDecision(kind Kind) {
	if m != nil {
		m.Decisions.WithLabelValues(string(kind)).Inc()
	}
}

// IncrementConsistencyReplays records a conflicting replay.
func (m *Metrics) IncrementConsistencyReplays() {
	if m != nil {
		m.ConsistencyReplays.Inc()
	}
}
