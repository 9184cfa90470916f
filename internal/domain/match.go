package domain

import (
	"time"

	"github.com/google/uuid"
)

// Method tags the tier that produced a match. The set is fixed; downstream
// consumers key alerting thresholds off these values, so renaming one is a
// breaking contract change.
type Method string

const (
	MethodFirstParty     Method = "first_party_exact"
	MethodExternalLookup Method = "external_lookup"
	MethodNameZip        Method = "name_zip_exact"
	MethodNameCity       Method = "name_city_exact"
	MethodFuzzy          Method = "fuzzy_last_zip_initial"
	MethodFingerprint    Method = "fingerprint_cache"
	MethodGeoRegion      Method = "geo_region"
	MethodUnresolved     Method = "unresolved"
)

// MatchResult is the output of the matcher chain. It is never persisted on
// its own; it is wrapped into a cache entry or a reconciler decision.
type MatchResult struct {
	// IdentityID is nil for unresolved and geo-only results.
	IdentityID *uuid.UUID
	Method     Method
	Confidence float64
	// Tier is the 1-based position in the chain where resolution stopped.
	Tier int
	// Region carries the coarse geo annotation from tier 7. It never
	// authorizes an identity merge.
	Region string
}

// Unresolved returns the terminal no-match result.
func Unresolved() MatchResult {
	return MatchResult{Method: MethodUnresolved, Confidence: 0, Tier: 8}
}

// Resolved reports whether the result references an identity.
func (r MatchResult) Resolved() bool {
	return r.IdentityID != nil
}

// ContactSnapshot is the denormalized contact copy stored on a cache entry
// for fast reads.
type ContactSnapshot struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// CacheEntry is a durable signal-key -> identity binding with resolution
// provenance. Entries are invalidated, never deleted, so the resolution
// history per signal key remains auditable.
type CacheEntry struct {
	SignalKey       string
	FingerprintHash string
	IdentityID      *uuid.UUID
	Method          Method
	Confidence      float64
	Contact         ContactSnapshot
	FirstSeen       time.Time
	LastSeen        time.Time
	TimesMatched    int
	Valid           bool
}
