package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kindred/pkg/platform/sentinel"
)

// PostgresStore implements Store over the identities table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the identities table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			last_name TEXT NOT NULL,
			first_name TEXT NOT NULL,
			middle_name TEXT NOT NULL DEFAULT '',
			suffix TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			zip5 TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			lifetime_amount_cents BIGINT NOT NULL DEFAULT 0,
			gift_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS identities_name_zip_idx
			ON identities (last_name, first_name, zip5);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate identities: %w", err)
	}
	return nil
}

// Get fetches one identity by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*CanonicalIdentity, error) {
	query := `
		SELECT id, last_name, first_name, middle_name, suffix,
		       city, state, zip5, email, phone,
		       lifetime_amount_cents, gift_count, created_at, updated_at
		FROM identities
		WHERE id = $1
	`
	var ident CanonicalIdentity
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ident.ID,
		&ident.LastName,
		&ident.FirstName,
		&ident.MiddleName,
		&ident.Suffix,
		&ident.City,
		&ident.State,
		&ident.Zip5,
		&ident.Email,
		&ident.Phone,
		&ident.LifetimeAmountCents,
		&ident.GiftCount,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return &ident, nil
}

// Insert stores a new identity. Timestamps are set here so callers stay
// clock-free.
func (s *PostgresStore) Insert(ctx context.Context, ident *CanonicalIdentity) error {
	now := time.Now()
	ident.CreatedAt = now
	ident.UpdatedAt = now

	query := `
		INSERT INTO identities (
			id, last_name, first_name, middle_name, suffix,
			city, state, zip5, email, phone,
			lifetime_amount_cents, gift_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		ident.ID,
		ident.LastName,
		ident.FirstName,
		ident.MiddleName,
		ident.Suffix,
		ident.City,
		ident.State,
		ident.Zip5,
		ident.Email,
		ident.Phone,
		ident.LifetimeAmountCents,
		ident.GiftCount,
		ident.CreatedAt,
		ident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// EnrichContact fills empty contact fields only; COALESCE/NULLIF keeps the
// fill-empty rule inside one statement.
func (s *PostgresStore) EnrichContact(ctx context.Context, id uuid.UUID, email, phone string) error {
	query := `
		UPDATE identities
		SET email = COALESCE(NULLIF(email, ''), $2),
		    phone = COALESCE(NULLIF(phone, ''), $3),
		    updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, email, phone, time.Now())
	if err != nil {
		return fmt.Errorf("enrich identity contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("enrich identity contact: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// AddActivity folds one observed transaction into the aggregate priors.
func (s *PostgresStore) AddActivity(ctx context.Context, id uuid.UUID, amountCents int64) error {
	query := `
		UPDATE identities
		SET lifetime_amount_cents = lifetime_amount_cents + $2,
		    gift_count = gift_count + 1,
		    updated_at = $3
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, amountCents, time.Now())
	if err != nil {
		return fmt.Errorf("add identity activity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add identity activity: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ForEach streams all identities for cold index rebuilds.
func (s *PostgresStore) ForEach(ctx context.Context, fn func(CanonicalIdentity) error) error {
	query := `
		SELECT id, last_name, first_name, middle_name, suffix,
		       city, state, zip5, email, phone,
		       lifetime_amount_cents, gift_count, created_at, updated_at
		FROM identities
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ident CanonicalIdentity
		err := rows.Scan(
			&ident.ID,
			&ident.LastName,
			&ident.FirstName,
			&ident.MiddleName,
			&ident.Suffix,
			&ident.City,
			&ident.State,
			&ident.Zip5,
			&ident.Email,
			&ident.Phone,
			&ident.LifetimeAmountCents,
			&ident.GiftCount,
			&ident.CreatedAt,
			&ident.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan identity: %w", err)
		}
		if err := fn(ident); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate identities: %w", err)
	}
	return nil
}
