// Package reconcile turns match decisions into persisted identity-store
// mutations: attach to an existing identity, create a new one, or defer.
// Reconciliation is idempotent by signal id so batch restarts are safe.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kindred/internal/domain"
)

// Kind is the reconciler's verdict for one signal.
type Kind string

const (
	KindAttach    Kind = "attach"
	KindCreateNew Kind = "create_new"
	KindDefer     Kind = "defer"
)

// Decision is the persisted record of a reconciliation. One decision
// exists per signal id; replays return the stored one.
type Decision struct {
	SignalID   string
	Kind       Kind
	IdentityID *uuid.UUID
	Method     domain.Method
	Confidence float64
	DecidedAt  time.Time
}

// DecisionStore persists decisions keyed by signal id.
type DecisionStore interface {
	// Get returns the decision for a signal id, or sentinel.ErrNotFound.
	Get(ctx context.Context, signalID string) (*Decision, error)

	// Insert stores a decision. A concurrent insert for the same signal
	// id returns sentinel.ErrConflict and leaves the prior row intact.
	Insert(ctx context.Context, decision Decision) error
}
