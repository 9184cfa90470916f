// Package identity owns the canonical donor/contact records and the
// derived candidate index the matcher tiers query.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CanonicalIdentity is a donor/contact record. The resolution engine reads
// these and requests upserts through the reconciler; it never deletes or
// merges them.
type CanonicalIdentity struct {
	ID uuid.UUID

	LastName   string
	FirstName  string
	MiddleName string
	Suffix     string

	City  string
	State string
	Zip5  string

	Email string
	Phone string

	// Aggregate activity, used only as match priors (fuzzy tie-break)
	// and updated only through AddActivity.
	LifetimeAmountCents int64
	GiftCount           int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists canonical identities.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*CanonicalIdentity, error)
	Insert(ctx context.Context, ident *CanonicalIdentity) error

	// EnrichContact fills empty email/phone on an existing identity.
	// Non-empty fields are never overwritten; enrichment is the only
	// contact mutation resolution is allowed to make.
	EnrichContact(ctx context.Context, id uuid.UUID, email, phone string) error

	// AddActivity folds an observed transaction into the identity's
	// aggregate priors.
	AddActivity(ctx context.Context, id uuid.UUID, amountCents int64) error

	// ForEach streams every identity, used for cold index rebuilds.
	ForEach(ctx context.Context, fn func(CanonicalIdentity) error) error
}
