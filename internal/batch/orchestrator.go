package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"kindred/internal/domain"
	"kindred/internal/reconcile"
	"kindred/pkg/platform/sentinel"
)

// Processor resolves and reconciles one signal. Satisfied by the engine
// service.
type Processor interface {
	Process(ctx context.Context, sig domain.Signal) (domain.MatchResult, reconcile.Decision, error)
}

// Config tunes the orchestrator.
type Config struct {
	ChunkSize    int
	Parallelism  int
	ChunkRetries int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    500,
		Parallelism:  4,
		ChunkRetries: 3,
	}
}

// Report summarizes one run.
type Report struct {
	RunID    string
	Chunks   int
	Attached int
	Created  int
	Deferred int
}

type chunkCounts struct {
	attached int
	created  int
	deferred int
}

// Orchestrator partitions an import stream into chunks and resolves them
// with bounded parallelism. Chunks commit in stream order so the
// checkpoint always names a contiguous boundary; re-processing past it is
// safe because reconciliation is idempotent by signal id.
type Orchestrator struct {
	processor   Processor
	checkpoints CheckpointStore
	cfg         Config
	logger      *slog.Logger
}

// New builds an orchestrator.
func New(processor Processor, checkpoints CheckpointStore, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultConfig().Parallelism
	}
	return &Orchestrator{
		processor:   processor,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run drives the stream to completion or the first capacity failure.
// A re-run with the same runID resumes after the last committed chunk.
// Cancellation is cooperative: between chunks and between signals, never
// mid-write.
func (o *Orchestrator) Run(ctx context.Context, runID, sourceTag string, signals <-chan domain.Signal) (Report, error) {
	cp, err := o.loadCheckpoint(ctx, runID, sourceTag)
	if err != nil {
		return Report{}, err
	}
	resumeFrom := cp.LastCommittedChunk
	if resumeFrom > 0 && o.logger != nil {
		o.logger.InfoContext(ctx, "resuming batch run",
			"run_id", runID,
			"last_committed_chunk", resumeFrom,
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	var (
		mu       sync.Mutex
		pending  = make(map[int]chunkCounts)
		frontier = resumeFrom
	)

	chunkNum := 0
	for {
		chunk, drained := o.nextChunk(gctx, signals)
		if len(chunk) > 0 {
			chunkNum++
			if chunkNum > resumeFrom {
				num, records := chunkNum, chunk
				g.Go(func() error {
					counts, err := o.processChunkWithRetry(gctx, num, records)
					if err != nil {
						return err
					}

					mu.Lock()
					defer mu.Unlock()
					pending[num] = counts
					for {
						next, ok := pending[frontier+1]
						if !ok {
							break
						}
						frontier++
						delete(pending, frontier)
						cp.LastCommittedChunk = frontier
						cp.Attached += next.attached
						cp.Created += next.created
						cp.Deferred += next.deferred
						if err := o.checkpoints.Commit(gctx, cp); err != nil {
							return domain.NewCapacityError("commit checkpoint", err)
						}
					}
					return nil
				})
			}
		}
		if drained {
			break
		}
		if err := gctx.Err(); err != nil {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return o.report(cp, chunkNum), fmt.Errorf("batch run %s halted at chunk %d: %w", runID, cp.LastCommittedChunk, err)
	}
	if err := ctx.Err(); err != nil {
		return o.report(cp, chunkNum), err
	}
	return o.report(cp, chunkNum), nil
}

func (o *Orchestrator) loadCheckpoint(ctx context.Context, runID, sourceTag string) (Checkpoint, error) {
	cp, err := o.checkpoints.Get(ctx, runID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Checkpoint{RunID: runID, SourceTag: sourceTag}, nil
	}
	if err != nil {
		return Checkpoint{}, domain.NewCapacityError("load checkpoint", err)
	}
	return *cp, nil
}

// nextChunk assembles up to ChunkSize signals. drained reports the stream
// is finished (closed or canceled).
func (o *Orchestrator) nextChunk(ctx context.Context, signals <-chan domain.Signal) ([]domain.Signal, bool) {
	chunk := make([]domain.Signal, 0, o.cfg.ChunkSize)
	for len(chunk) < o.cfg.ChunkSize {
		select {
		case <-ctx.Done():
			return chunk, true
		case sig, ok := <-signals:
			if !ok {
				return chunk, true
			}
			chunk = append(chunk, sig)
		}
	}
	return chunk, false
}

// processChunkWithRetry retries the whole chunk a bounded number of
// times; reconciliation idempotency makes partial replays harmless. On
// exhaustion the failure is escalated to a capacity error, halting the
// run: contribution data is never silently skipped.
func (o *Orchestrator) processChunkWithRetry(ctx context.Context, num int, chunk []domain.Signal) (chunkCounts, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.ChunkRetries; attempt++ {
		counts, err := o.processChunk(ctx, chunk)
		if err == nil {
			return counts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return chunkCounts{}, ctx.Err()
		}
		if o.logger != nil {
			o.logger.WarnContext(ctx, "chunk failed, retrying",
				"chunk", num,
				"attempt", attempt+1,
				"error", err,
			)
		}
	}
	return chunkCounts{}, domain.NewCapacityError(fmt.Sprintf("chunk %d", num), lastErr)
}

func (o *Orchestrator) processChunk(ctx context.Context, chunk []domain.Signal) (chunkCounts, error) {
	var counts chunkCounts
	for _, sig := range chunk {
		if err := ctx.Err(); err != nil {
			return chunkCounts{}, err
		}
		_, decision, err := o.processor.Process(ctx, sig)
		if err != nil {
			return chunkCounts{}, err
		}
		switch decision.Kind {
		case reconcile.KindAttach:
			counts.attached++
		case reconcile.KindCreateNew:
			counts.created++
		default:
			counts.deferred++
		}
	}
	return counts, nil
}

func (o *Orchestrator) report(cp Checkpoint, chunks int) Report {
	return Report{
		RunID:    cp.RunID,
		Chunks:   chunks,
		Attached: cp.Attached,
		Created:  cp.Created,
		Deferred: cp.Deferred,
	}
}
