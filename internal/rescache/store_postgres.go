package rescache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kindred/internal/domain"
	"kindred/pkg/platform/sentinel"
)

// PostgresStore implements Store over the resolution_cache table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed cache store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the resolution_cache table when it does not exist. The
// partial unique index enforces the one-valid-entry-per-key invariant at
// the storage layer.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS resolution_cache (
			id UUID PRIMARY KEY,
			signal_key TEXT NOT NULL,
			fingerprint_hash TEXT NOT NULL DEFAULT '',
			identity_id UUID,
			method TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			contact_name TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			contact_address TEXT NOT NULL DEFAULT '',
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL,
			times_matched INT NOT NULL DEFAULT 1,
			valid BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE UNIQUE INDEX IF NOT EXISTS resolution_cache_valid_key_idx
			ON resolution_cache (signal_key) WHERE valid;
		CREATE INDEX IF NOT EXISTS resolution_cache_fingerprint_idx
			ON resolution_cache (fingerprint_hash) WHERE valid;
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate resolution cache: %w", err)
	}
	return nil
}

const entryColumns = `
	signal_key, fingerprint_hash, identity_id, method, confidence,
	contact_name, contact_email, contact_phone, contact_address,
	first_seen, last_seen, times_matched, valid
`

// Get returns the valid entry for the key.
func (s *PostgresStore) Get(ctx context.Context, signalKey string) (*domain.CacheEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM resolution_cache
		WHERE signal_key = $1 AND valid
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, signalKey))
}

// GetByFingerprint returns the valid entry bound to a fingerprint. When
// several composite keys share a fingerprint the most recently seen wins.
func (s *PostgresStore) GetByFingerprint(ctx context.Context, fingerprintHash string) (*domain.CacheEntry, error) {
	if fingerprintHash == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + entryColumns + `
		FROM resolution_cache
		WHERE fingerprint_hash = $1 AND valid
		ORDER BY last_seen DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, fingerprintHash))
}

// Insert writes a new valid entry.
func (s *PostgresStore) Insert(ctx context.Context, entry *domain.CacheEntry) error {
	query := `
		INSERT INTO resolution_cache (
			id, signal_key, fingerprint_hash, identity_id, method, confidence,
			contact_name, contact_email, contact_phone, contact_address,
			first_seen, last_seen, times_matched, valid
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE)
	`
	var identityID any
	if entry.IdentityID != nil {
		identityID = *entry.IdentityID
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		entry.SignalKey,
		entry.FingerprintHash,
		identityID,
		string(entry.Method),
		entry.Confidence,
		entry.Contact.Name,
		entry.Contact.Email,
		entry.Contact.Phone,
		entry.Contact.Address,
		entry.FirstSeen,
		entry.LastSeen,
		entry.TimesMatched,
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Touch refreshes last-seen and bumps times-matched on the valid entry.
func (s *PostgresStore) Touch(ctx context.Context, signalKey string, seenAt time.Time) error {
	query := `
		UPDATE resolution_cache
		SET last_seen = $2, times_matched = times_matched + 1
		WHERE signal_key = $1 AND valid
	`
	result, err := s.db.ExecContext(ctx, query, signalKey, seenAt)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Invalidate flips the valid flag, keeping the row for audit.
func (s *PostgresStore) Invalidate(ctx context.Context, signalKey string) error {
	query := `
		UPDATE resolution_cache
		SET valid = FALSE
		WHERE signal_key = $1 AND valid
	`
	if _, err := s.db.ExecContext(ctx, query, signalKey); err != nil {
		return fmt.Errorf("invalidate cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*domain.CacheEntry, error) {
	var (
		entry      domain.CacheEntry
		identityID *uuid.UUID
		method     string
	)
	err := row.Scan(
		&entry.SignalKey,
		&entry.FingerprintHash,
		&identityID,
		&method,
		&entry.Confidence,
		&entry.Contact.Name,
		&entry.Contact.Email,
		&entry.Contact.Phone,
		&entry.Contact.Address,
		&entry.FirstSeen,
		&entry.LastSeen,
		&entry.TimesMatched,
		&entry.Valid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	entry.Method = domain.Method(method)
	entry.IdentityID = identityID
	return &entry, nil
}
