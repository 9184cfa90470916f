package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kindred/pkg/platform/sentinel"
)

// PostgresStore implements CheckpointStore over the batch_checkpoints
// table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed checkpoint store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the batch_checkpoints table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS batch_checkpoints (
			run_id TEXT PRIMARY KEY,
			source_tag TEXT NOT NULL,
			last_committed_chunk INT NOT NULL,
			attached INT NOT NULL,
			created INT NOT NULL,
			deferred INT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate checkpoints: %w", err)
	}
	return nil
}

// Get returns the checkpoint for a run.
func (s *PostgresStore) Get(ctx context.Context, runID string) (*Checkpoint, error) {
	query := `
		SELECT run_id, source_tag, last_committed_chunk,
		       attached, created, deferred, updated_at
		FROM batch_checkpoints
		WHERE run_id = $1
	`
	var cp Checkpoint
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&cp.RunID,
		&cp.SourceTag,
		&cp.LastCommittedChunk,
		&cp.Attached,
		&cp.Created,
		&cp.Deferred,
		&cp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	return &cp, nil
}

// Commit upserts the checkpoint row.
func (s *PostgresStore) Commit(ctx context.Context, cp Checkpoint) error {
	query := `
		INSERT INTO batch_checkpoints (
			run_id, source_tag, last_committed_chunk,
			attached, created, deferred, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			last_committed_chunk = EXCLUDED.last_committed_chunk,
			attached = EXCLUDED.attached,
			created = EXCLUDED.created,
			deferred = EXCLUDED.deferred,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		cp.RunID,
		cp.SourceTag,
		cp.LastCommittedChunk,
		cp.Attached,
		cp.Created,
		cp.Deferred,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}
