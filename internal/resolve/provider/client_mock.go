package provider

import (
	"context"
	"time"
)

// MockClient serves deterministic lookups from a fixed table, with a
// configurable latency to mimic a real provider. Used in tests and in
// development wiring when no provider is configured.
type MockClient struct {
	Latency time.Duration
	// People maps ip hashes to canned responses.
	People map[string]Person
	// Fail forces every lookup to report an outage.
	Fail bool
}

func (c *MockClient) LookupByIP(ctx context.Context, ipHash string) (Person, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return Person{}, NewProviderError(ErrorTimeout, "lookup by ip", ctx.Err())
		}
	}
	if c.Fail {
		return Person{}, NewProviderError(ErrorOutage, "mock outage", nil)
	}
	person, ok := c.People[ipHash]
	if !ok {
		return Person{}, NewProviderError(ErrorNotFound, "no person for identifier", nil)
	}
	return person, nil
}
