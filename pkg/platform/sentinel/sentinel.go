package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these
// (optionally wrapped) so services can translate them into domain errors
// without inspecting driver-specific failures.
//
// These represent factual states about resources, not validation
// failures:
// - ErrNotFound: row/entry does not exist in the store
// - ErrConflict: a conflicting row already exists (idempotency replays)
// - ErrStale: cache entry exists but is older than the staleness window
// - ErrUnavailable: backing service temporarily unreachable
//
// Field-level validation failures use the internal/domain taxonomy.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStale       = errors.New("stale")
	ErrUnavailable = errors.New("unavailable")
)
