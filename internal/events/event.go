package events

import (
	"time"

	"github.com/google/uuid"

	"kindred/internal/domain"
)

// ResolutionEvent is published whenever a signal resolves to an identity
// with enough confidence for downstream consumers to act on.
type ResolutionEvent struct {
	// SignalKey is the hashed-identifier composite the resolution cache
	// keys on; empty when the signal carried no keyable identifiers.
	SignalKey  string            `json:"signal_key,omitempty"`
	SignalID   string            `json:"signal_id"`
	SignalKind domain.SignalKind `json:"signal_kind"`
	IdentityID uuid.UUID         `json:"identity_id"`
	Method     domain.Method     `json:"method"`
	Confidence float64           `json:"confidence"`
	SourceTag  string            `json:"source_tag,omitempty"`
	ResolvedAt time.Time         `json:"resolved_at"`
}
