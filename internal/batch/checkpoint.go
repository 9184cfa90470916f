// Package batch drives the matcher chain and reconciler over bulk import
// streams with bounded parallelism, chunk-level checkpointing, and
// restart safety.
package batch

import (
	"context"
	"time"
)

// Checkpoint records per-run progress. A crash loses at most the
// in-flight chunks past LastCommittedChunk; restart resumes from the
// committed boundary.
type Checkpoint struct {
	RunID              string
	SourceTag          string
	LastCommittedChunk int
	Attached           int
	Created            int
	Deferred           int
	UpdatedAt          time.Time
}

// CheckpointStore persists one checkpoint row per run.
type CheckpointStore interface {
	// Get returns the checkpoint for a run, or sentinel.ErrNotFound for
	// a fresh run.
	Get(ctx context.Context, runID string) (*Checkpoint, error)

	// Commit upserts the checkpoint.
	Commit(ctx context.Context, cp Checkpoint) error
}
