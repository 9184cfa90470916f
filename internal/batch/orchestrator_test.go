package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/internal/domain"
	"kindred/internal/reconcile"
)

// stubProcessor records processed signal ids and returns canned decisions.
type stubProcessor struct {
	mu        sync.Mutex
	processed []string
	// failFor makes Process fail for signal ids with this prefix.
	failFor string
	kind    reconcile.Kind
}

func (p *stubProcessor) Process(_ context.Context, sig domain.Signal) (domain.MatchResult, reconcile.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor != "" && strings.HasPrefix(sig.SignalID, p.failFor) {
		return domain.MatchResult{}, reconcile.Decision{}, errors.New("store down")
	}
	p.processed = append(p.processed, sig.SignalID)
	kind := p.kind
	if kind == "" {
		kind = reconcile.KindAttach
	}
	return domain.MatchResult{}, reconcile.Decision{SignalID: sig.SignalID, Kind: kind}, nil
}

func (p *stubProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.processed))
	copy(out, p.processed)
	return out
}

func feed(signals ...domain.Signal) <-chan domain.Signal {
	ch := make(chan domain.Signal, len(signals))
	for _, sig := range signals {
		ch <- sig
	}
	close(ch)
	return ch
}

func importSignals(n int) []domain.Signal {
	out := make([]domain.Signal, n)
	for i := range out {
		out[i] = domain.Signal{
			Kind:     domain.SignalImportRecord,
			SignalID: fmt.Sprintf("tx-%03d", i+1),
		}
	}
	return out
}

func TestRun_ProcessesAllChunksAndCommits(t *testing.T) {
	processor := &stubProcessor{}
	checkpoints := NewInMemoryStore()
	o := New(processor, checkpoints, Config{ChunkSize: 10, Parallelism: 2, ChunkRetries: 1}, nil)

	report, err := o.Run(context.Background(), "run-1", "fec-2026", feed(importSignals(25)...))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 25, report.Attached)
	assert.Len(t, processor.seen(), 25)

	cp, err := checkpoints.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cp.LastCommittedChunk)
	assert.Equal(t, 25, cp.Attached)
}

func TestRun_ResumeSkipsCommittedChunks(t *testing.T) {
	ctx := context.Background()
	processor := &stubProcessor{}
	checkpoints := NewInMemoryStore()
	require.NoError(t, checkpoints.Commit(ctx, Checkpoint{
		RunID:              "run-2",
		SourceTag:          "fec-2026",
		LastCommittedChunk: 2,
		Attached:           20,
	}))

	o := New(processor, checkpoints, Config{ChunkSize: 10, Parallelism: 1}, nil)
	report, err := o.Run(ctx, "run-2", "fec-2026", feed(importSignals(30)...))
	require.NoError(t, err)

	// Chunks 1 and 2 were committed before the restart; only chunk 3's
	// ten signals run again.
	seen := processor.seen()
	assert.Len(t, seen, 10)
	assert.Equal(t, "tx-021", seen[0])
	assert.Equal(t, 30, report.Attached)
}

func TestRun_ChunkFailureHaltsWithCapacityError(t *testing.T) {
	processor := &stubProcessor{failFor: "tx-01"}
	checkpoints := NewInMemoryStore()
	o := New(processor, checkpoints, Config{ChunkSize: 5, Parallelism: 1, ChunkRetries: 2}, nil)

	_, err := o.Run(context.Background(), "run-3", "fec-2026", feed(importSignals(20)...))
	require.Error(t, err)
	assert.True(t, domain.IsCapacity(err), "exhausted retries must surface as capacity: %v", err)

	// Chunk 1 succeeded and committed; the failing chunk never did.
	cp, getErr := checkpoints.Get(context.Background(), "run-3")
	require.NoError(t, getErr)
	assert.Equal(t, 1, cp.LastCommittedChunk)
}

func TestRun_CheckpointAdvancesContiguously(t *testing.T) {
	processor := &stubProcessor{}
	checkpoints := NewInMemoryStore()
	o := New(processor, checkpoints, Config{ChunkSize: 3, Parallelism: 4}, nil)

	report, err := o.Run(context.Background(), "run-4", "fec-2026", feed(importSignals(12)...))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Chunks)

	cp, err := checkpoints.Get(context.Background(), "run-4")
	require.NoError(t, err)
	assert.Equal(t, 4, cp.LastCommittedChunk)
	assert.Equal(t, 12, cp.Attached)
	assert.GreaterOrEqual(t, checkpoints.Commits(), 4)
}

func TestRun_CountsDecisionKinds(t *testing.T) {
	processor := &stubProcessor{kind: reconcile.KindDefer}
	checkpoints := NewInMemoryStore()
	o := New(processor, checkpoints, Config{ChunkSize: 4, Parallelism: 1}, nil)

	report, err := o.Run(context.Background(), "run-5", "fec-2026", feed(importSignals(4)...))
	require.NoError(t, err)
	assert.Zero(t, report.Attached)
	assert.Equal(t, 4, report.Deferred)
}

func TestRun_CancellationStopsBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := &stubProcessor{}
	o := New(processor, NewInMemoryStore(), Config{ChunkSize: 5, Parallelism: 1}, nil)

	_, err := o.Run(ctx, "run-6", "fec-2026", feed(importSignals(10)...))
	require.Error(t, err)
	assert.Empty(t, processor.seen())
}
