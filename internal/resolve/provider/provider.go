// Package provider wraps the third-party person-lookup service used by the
// external authoritative tier. Implementations resolve a hashed IP/device
// identifier to candidate person fields; the matcher maps those fields back
// onto canonical identities through the candidate index.
package provider

import (
	"context"
)

// Person is the provider's view of the individual behind an identifier.
// Confidence is the provider's own score in [0,1]; the matcher clamps it
// into the external tier's contractual band.
type Person struct {
	LastName   string
	FirstName  string
	City       string
	State      string
	Zip5       string
	Email      string
	Confidence float64
}

// Client queries the person-lookup provider. Implementations must honor
// ctx deadlines; the matcher never calls without one.
type Client interface {
	LookupByIP(ctx context.Context, ipHash string) (Person, error)
}
