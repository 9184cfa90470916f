package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Dropped   prometheus.Counter
	Errors    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resolver_events_published_total",
			Help: "Resolution events delivered to the sink.",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resolver_events_dropped_total",
			Help: "Resolution events dropped because the buffer was full.",
		}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resolver_events_errors_total",
			Help: "Sink publish failures.",
		}),
	}
}

func (m *Metrics) published() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) errored() {
	if m != nil {
		m.Errors.Inc()
	}
}
