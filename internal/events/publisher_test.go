package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/internal/domain"
)

func resolvedResult(confidence float64) domain.MatchResult {
	id := uuid.New()
	return domain.MatchResult{
		IdentityID: &id,
		Method:     domain.MethodNameZip,
		Confidence: confidence,
	}
}

func TestPublisher_EmitsAboveThreshold(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, nil, WithThreshold(0.60))

	sig := domain.Signal{
		Kind:      domain.SignalImportRecord,
		SignalID:  "tx-1",
		EmailHash: "e1",
		SourceTag: "fec-2026",
	}
	result := resolvedResult(0.90)
	pub.Emit(sig, result)
	require.NoError(t, pub.Close())

	published := sink.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "tx-1", published[0].SignalID)
	assert.Equal(t, "em:e1", published[0].SignalKey)
	assert.Equal(t, *result.IdentityID, published[0].IdentityID)
	assert.Equal(t, domain.MethodNameZip, published[0].Method)
	assert.Equal(t, "fec-2026", published[0].SourceTag)
	assert.False(t, published[0].ResolvedAt.IsZero())
}

func TestPublisher_GatesBelowThreshold(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, nil, WithThreshold(0.60))

	pub.Emit(domain.Signal{SignalID: "tx-low"}, resolvedResult(0.45))
	pub.Emit(domain.Signal{SignalID: "tx-none"}, domain.Unresolved())
	require.NoError(t, pub.Close())

	assert.Empty(t, sink.Events())
}

func TestPublisher_CloseDrainsBuffer(t *testing.T) {
	sink := NewMemorySink()
	pub := NewPublisher(sink, nil, WithBuffer(100))

	for i := 0; i < 20; i++ {
		pub.Emit(domain.Signal{SignalID: "tx"}, resolvedResult(0.90))
	}
	require.NoError(t, pub.Close())

	assert.Len(t, sink.Events(), 20)
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	pub := NewPublisher(sink, nil, WithBuffer(1))

	// First event occupies the worker, second fills the buffer, the rest
	// must drop without blocking Emit.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			pub.Emit(domain.Signal{SignalID: "tx"}, resolvedResult(0.90))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	close(sink.release)
	require.NoError(t, pub.Close())
	assert.Less(t, sink.count(), 10)
}

type blockingSink struct {
	MemorySink
	release chan struct{}
}

func (s *blockingSink) Publish(ctx context.Context, event ResolutionEvent) error {
	<-s.release
	return s.MemorySink.Publish(ctx, event)
}

func (s *blockingSink) count() int {
	return len(s.MemorySink.Events())
}
