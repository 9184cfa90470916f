package normalize

import (
	"strings"

	"kindred/internal/domain"
)

const keySep = "|"

// DedupeKey derives the deterministic grouping key for a normalized
// record: LAST|FIRST|ZIP5, falling back to LAST|FIRST|CITY when no zip
// was parsed. The first-name component uses the canonical (nickname
// expanded) form so "JIM" and "JAMES" group together. Returns empty when
// the fields cannot form a usable key; empty keys must never be used for
// grouping.
func DedupeKey(nf domain.NormalizedFields) string {
	if nf.LastName == "" || nf.FirstName == "" {
		return ""
	}
	first := Canonical(nf.FirstName)
	switch {
	case nf.Zip5 != "":
		return strings.Join([]string{nf.LastName, first, nf.Zip5}, keySep)
	case nf.City != "":
		return strings.Join([]string{nf.LastName, first, nf.City}, keySep)
	default:
		return ""
	}
}

// SignalKey builds the resolution-cache key for a signal from its hashed
// identifier composite. Components are labeled and ordered so the key is
// stable regardless of which identifiers are present. Returns empty when
// the signal carries no usable identifier.
func SignalKey(sig domain.Signal) string {
	var parts []string
	if sig.FingerprintHash != "" {
		parts = append(parts, "fp:"+sig.FingerprintHash)
	}
	if sig.EmailHash != "" {
		parts = append(parts, "em:"+sig.EmailHash)
	}
	if sig.IPHash != "" {
		parts = append(parts, "ip:"+sig.IPHash)
	}
	if len(parts) == 0 && sig.AccountID != "" {
		parts = append(parts, "acct:"+sig.AccountID)
	}
	return strings.Join(parts, keySep)
}

// NameZipKey is the candidate-index key for the deterministic name+zip
// tier. Every first-name variant gets its own key.
func NameZipKey(last, first, zip5 string) string {
	return strings.Join([]string{last, first, zip5}, keySep)
}

// NameCityKey is the candidate-index key for the name+city tier.
func NameCityKey(last, first, city string) string {
	return strings.Join([]string{last, first, city}, keySep)
}

// LastZipInitialKey is the candidate-index key for the fuzzy tier: exact
// last name, exact zip5, exact first initial.
func LastZipInitialKey(last, zip5, initial string) string {
	return strings.Join([]string{last, zip5, initial}, keySep)
}
