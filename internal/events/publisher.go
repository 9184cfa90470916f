package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kindred/internal/domain"
	"kindred/internal/normalize"
)

// DefaultThreshold is the minimum confidence a resolution needs before an
// event goes out. Below it, consumers would act on guesses.
const DefaultThreshold = 0.60

// Publisher gates resolutions by confidence and hands qualifying events to
// the sink from a background worker. Emitting never blocks resolution: a
// full buffer drops the event and counts the drop.
type Publisher struct {
	sink      Sink
	threshold float64
	logger    *slog.Logger
	metrics   *Metrics

	inbox chan ResolutionEvent
	once  sync.Once
	done  chan struct{}
}

type Option func(*Publisher)

func WithThreshold(t float64) Option {
	return func(p *Publisher) { p.threshold = t }
}

func WithBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan ResolutionEvent, n)
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func NewPublisher(sink Sink, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		sink:      sink,
		threshold: DefaultThreshold,
		logger:    logger,
		inbox:     make(chan ResolutionEvent, 256),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Emit queues an event when the resolution clears the confidence
// threshold. Unresolved and low-confidence results are ignored.
func (p *Publisher) Emit(sig domain.Signal, result domain.MatchResult) {
	if result.IdentityID == nil || result.Confidence < p.threshold {
		return
	}
	event := ResolutionEvent{
		SignalKey:  normalize.SignalKey(sig),
		SignalID:   sig.SignalID,
		SignalKind: sig.Kind,
		IdentityID: *result.IdentityID,
		Method:     result.Method,
		Confidence: result.Confidence,
		SourceTag:  sig.SourceTag,
		ResolvedAt: time.Now().UTC(),
	}
	select {
	case p.inbox <- event:
	default:
		p.metrics.dropped()
		if p.logger != nil {
			p.logger.Warn("event buffer full, dropping resolution event",
				"signal_id", event.SignalID,
				"method", event.Method,
			)
		}
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.sink.Publish(ctx, event)
		cancel()
		if err != nil {
			p.metrics.errored()
			if p.logger != nil {
				p.logger.Error("publish resolution event",
					"signal_id", event.SignalID,
					"error", err,
				)
			}
			continue
		}
		p.metrics.published()
	}
}

// Close drains the buffer, waits for the worker, and closes the sink.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		close(p.inbox)
	})
	<-p.done
	return p.sink.Close()
}
