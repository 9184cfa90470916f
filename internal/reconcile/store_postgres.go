package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kindred/internal/domain"
	"kindred/pkg/platform/sentinel"
)

// PostgresStore implements DecisionStore over the resolution_decisions
// table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the resolution_decisions table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS resolution_decisions (
			signal_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			identity_id UUID,
			method TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate decisions: %w", err)
	}
	return nil
}

// Get returns the recorded decision for a signal id.
func (s *PostgresStore) Get(ctx context.Context, signalID string) (*Decision, error) {
	query := `
		SELECT signal_id, kind, identity_id, method, confidence, decided_at
		FROM resolution_decisions
		WHERE signal_id = $1
	`
	var (
		decision   Decision
		kind       string
		method     string
		identityID *uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, signalID).Scan(
		&decision.SignalID,
		&kind,
		&identityID,
		&method,
		&decision.Confidence,
		&decision.DecidedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query decision: %w", err)
	}
	decision.Kind = Kind(kind)
	decision.Method = domain.Method(method)
	decision.IdentityID = identityID
	return &decision, nil
}

// Insert stores a decision. ON CONFLICT DO NOTHING keeps replays from
// overwriting the prior decision; a lost race surfaces as ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, decision Decision) error {
	query := `
		INSERT INTO resolution_decisions (
			signal_id, kind, identity_id, method, confidence, decided_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signal_id) DO NOTHING
	`
	var identityID any
	if decision.IdentityID != nil {
		identityID = *decision.IdentityID
	}
	result, err := s.db.ExecContext(ctx, query,
		decision.SignalID,
		string(decision.Kind),
		identityID,
		string(decision.Method),
		decision.Confidence,
		decision.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}
