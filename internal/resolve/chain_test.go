package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/internal/domain"
	"kindred/internal/identity"
	"kindred/internal/rescache"
	"kindred/internal/resolve/provider"
	"kindred/pkg/platform/circuit"
)

type chainFixture struct {
	index      *identity.Index
	identities *identity.InMemoryStore
	cacheStore *rescache.InMemoryStore
	cache      *rescache.Cache
	client     *provider.MockClient
	breaker    *circuit.Breaker
	resolver   *Resolver
}

func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	f := &chainFixture{
		index:      identity.NewIndex(),
		identities: identity.NewInMemoryStore(),
		cacheStore: rescache.NewInMemoryStore(),
		client:     &provider.MockClient{People: map[string]provider.Person{}},
		breaker:    circuit.New("person-lookup-test"),
	}
	f.cache = rescache.New(f.cacheStore, nil)
	tiers := Chain(f.index, f.identities, f.cache, f.client, f.breaker, ChainConfig{
		ProviderTimeout: 100 * time.Millisecond,
		ProviderRetries: 0,
	}, nil)
	f.resolver = NewResolver(tiers, nil, nil)
	return f
}

func (f *chainFixture) addIdentity(t *testing.T, ident identity.CanonicalIdentity) identity.CanonicalIdentity {
	t.Helper()
	if ident.ID == uuid.Nil {
		ident.ID = uuid.New()
	}
	require.NoError(t, f.identities.Insert(context.Background(), &ident))
	f.index.Insert(ident)
	return ident
}

func TestResolve_FirstPartyEmail(t *testing.T) {
	f := newChainFixture(t)
	donor := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "WILSON", FirstName: "JAMES", Zip5: "27104",
		Email: "jwilson@example.com",
	})

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-1",
		RawName:  "Wilson, James",
		Email:    "JWilson@Example.com",
	})

	require.True(t, result.Resolved())
	assert.Equal(t, donor.ID, *result.IdentityID)
	assert.Equal(t, domain.MethodFirstParty, result.Method)
	assert.Equal(t, 1, result.Tier)
	assert.GreaterOrEqual(t, result.Confidence, FirstPartyFloor)
	assert.LessOrEqual(t, result.Confidence, FirstPartyCeil)
}

func TestResolve_FirstPartyBeatsNameZip(t *testing.T) {
	f := newChainFixture(t)
	donor := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "WILSON", FirstName: "JAMES", Zip5: "27104",
		Email: "jwilson@example.com",
	})

	// Email, name, and zip all match, so tiers 1 and 3 would each
	// accept. The chain must stop at tier 1 and carry its tag.
	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-8",
		RawName:  "Wilson, James",
		RawZip:   "27104",
		Email:    "jwilson@example.com",
	})

	require.True(t, result.Resolved())
	assert.Equal(t, donor.ID, *result.IdentityID)
	assert.Equal(t, domain.MethodFirstParty, result.Method)
	assert.Equal(t, 1, result.Tier)
}

func TestResolve_NameZipWithNickname(t *testing.T) {
	f := newChainFixture(t)
	donor := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "WILSON", FirstName: "JAMES", City: "WINSTONSALEM", Zip5: "27104",
	})

	// Import row spelled "WILSON, JIM" must land on the JAMES record via
	// the nickname table, at deterministic name+zip confidence.
	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-2",
		RawName:  "Wilson, Jim",
		RawZip:   "27104",
	})

	require.True(t, result.Resolved())
	assert.Equal(t, donor.ID, *result.IdentityID)
	assert.Equal(t, domain.MethodNameZip, result.Method)
	assert.GreaterOrEqual(t, result.Confidence, NameZipFloor)
	assert.LessOrEqual(t, result.Confidence, NameZipCeil)
}

func TestResolve_NameCityFallback(t *testing.T) {
	f := newChainFixture(t)
	donor := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "SMITH", FirstName: "ROBERT", City: "WINSTONSALEM",
	})

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-3",
		RawName:  "Smith, Robert",
		RawCity:  "Winston-Salem",
	})

	require.True(t, result.Resolved())
	assert.Equal(t, donor.ID, *result.IdentityID)
	assert.Equal(t, domain.MethodNameCity, result.Method)
	assert.GreaterOrEqual(t, result.Confidence, NameCityFloor)
	assert.LessOrEqual(t, result.Confidence, NameCityCeil)
}

func TestResolve_ExternalLookup(t *testing.T) {
	f := newChainFixture(t)
	donor := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "WILSON", FirstName: "JAMES", Zip5: "27104",
		Email: "jwilson@example.com",
	})
	f.client.People["ip-hash-1"] = provider.Person{
		LastName: "Wilson", FirstName: "James", Zip5: "27104",
		Email:      "jwilson@example.com",
		Confidence: 0.8,
	}

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalLiveVisitor,
		SignalID: "visit-1",
		IPHash:   "ip-hash-1",
	})

	require.True(t, result.Resolved())
	assert.Equal(t, donor.ID, *result.IdentityID)
	assert.Equal(t, domain.MethodExternalLookup, result.Method)
	assert.Equal(t, 2, result.Tier)
	assert.GreaterOrEqual(t, result.Confidence, ExternalFloor)
	assert.LessOrEqual(t, result.Confidence, ExternalCeil)
}

func TestResolve_ProviderOutageFallsThrough(t *testing.T) {
	f := newChainFixture(t)
	f.client.Fail = true

	donor := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "WILSON", FirstName: "JAMES", Zip5: "27104",
	})
	require.NoError(t, f.cacheStore.Insert(context.Background(), &domain.CacheEntry{
		SignalKey:       "fp:device-1|ip:ip-hash-1",
		FingerprintHash: "device-1",
		IdentityID:      &donor.ID,
		Method:          domain.MethodExternalLookup,
		Confidence:      0.85,
		FirstSeen:       time.Now(),
		LastSeen:        time.Now(),
		TimesMatched:    3,
		Valid:           true,
	}))

	sig := domain.Signal{
		Kind:            domain.SignalLiveVisitor,
		SignalID:        "visit-2",
		IPHash:          "ip-hash-1",
		FingerprintHash: "device-1",
	}

	// First pass: provider fails, chain falls through to the cached
	// fingerprint binding. No error surfaces and confidence stays in the
	// fingerprint band.
	result, _ := f.resolver.Resolve(context.Background(), sig)
	require.True(t, result.Resolved())
	assert.Equal(t, donor.ID, *result.IdentityID)
	assert.Equal(t, domain.MethodFingerprint, result.Method)
	assert.LessOrEqual(t, result.Confidence, FingerprintCeil)

	// Hammer the breaker open, then verify the open circuit degrades the
	// same way instead of erroring.
	for range 10 {
		result, _ = f.resolver.Resolve(context.Background(), sig)
	}
	assert.True(t, f.breaker.IsOpen())
	assert.Equal(t, domain.MethodFingerprint, result.Method)
	assert.LessOrEqual(t, result.Confidence, 0.50)
}

func TestResolve_AmbiguousNameZipDeclines(t *testing.T) {
	f := newChainFixture(t)
	// Two distinct Robert Smiths behind one name+zip.
	rich := f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "SMITH", FirstName: "ROBERT", Zip5: "27104", LifetimeAmountCents: 100_000,
	})
	f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "SMITH", FirstName: "ROBERT", Zip5: "27104", LifetimeAmountCents: 5_000,
	})

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-4",
		RawName:  "Smith, Robert",
		RawZip:   "27104",
	})

	// name_zip declines on ambiguity; the fuzzy tier tie-breaks on the
	// strictly larger activity prior.
	require.True(t, result.Resolved())
	assert.Equal(t, domain.MethodFuzzy, result.Method)
	assert.Equal(t, rich.ID, *result.IdentityID)
	assert.GreaterOrEqual(t, result.Confidence, FuzzyFloor)
	assert.LessOrEqual(t, result.Confidence, FuzzyCeil)
}

func TestResolve_FuzzyResidualTieDeclines(t *testing.T) {
	f := newChainFixture(t)
	f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "SMITH", FirstName: "ROBERT", Zip5: "27104", LifetimeAmountCents: 5_000,
	})
	f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "SMITH", FirstName: "ROBERT", Zip5: "27104", LifetimeAmountCents: 5_000,
	})

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-5",
		RawName:  "Smith, Robert",
		RawZip:   "27104",
	})

	assert.False(t, result.Resolved())
	assert.Equal(t, domain.MethodUnresolved, result.Method)
	assert.Zero(t, result.Confidence)
}

func TestResolve_GeoRegionAnnotatesOnly(t *testing.T) {
	f := newChainFixture(t)

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalLiveVisitor,
		SignalID: "visit-3",
		IPRegion: "us-southeast",
	})

	assert.Nil(t, result.IdentityID)
	assert.Equal(t, domain.MethodGeoRegion, result.Method)
	assert.Equal(t, "us-southeast", result.Region)
	assert.GreaterOrEqual(t, result.Confidence, GeoFloor)
	assert.LessOrEqual(t, result.Confidence, GeoCeil)
}

func TestResolve_GeoRegionDerivedFromIPHashPrefix(t *testing.T) {
	f := newChainFixture(t)

	// No receiver-supplied region: the bucket comes from the hash prefix
	// table.
	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalLiveVisitor,
		SignalID: "visit-4",
		IPHash:   "4f31c2",
	})

	assert.Nil(t, result.IdentityID)
	assert.Equal(t, domain.MethodGeoRegion, result.Method)
	assert.Equal(t, "us-southeast", result.Region)
}

func TestRegionForIPHash(t *testing.T) {
	tests := []struct {
		name   string
		ipHash string
		want   string
	}{
		{"low prefix", "0abc", "us-northeast"},
		{"high prefix", "f00d", "us-noncontiguous"},
		{"uppercase prefix", "C4FE", "us-pacific"},
		{"non-hex prefix", "zzz", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, regionForIPHash(tt.ipHash))
		})
	}
}

func TestResolve_Unresolved(t *testing.T) {
	f := newChainFixture(t)

	result, _ := f.resolver.Resolve(context.Background(), domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-6",
		RawName:  "Nobody, Known",
		RawZip:   "99999",
	})

	assert.False(t, result.Resolved())
	assert.Equal(t, domain.MethodUnresolved, result.Method)
	assert.Zero(t, result.Confidence)
}

func TestResolve_Deterministic(t *testing.T) {
	f := newChainFixture(t)
	f.addIdentity(t, identity.CanonicalIdentity{
		LastName: "WILSON", FirstName: "JAMES", Zip5: "27104",
	})

	sig := domain.Signal{
		Kind:     domain.SignalImportRecord,
		SignalID: "tx-7",
		RawName:  "Wilson, Jim",
		RawZip:   "27104",
	}
	first, _ := f.resolver.Resolve(context.Background(), sig)
	second, _ := f.resolver.Resolve(context.Background(), sig)

	assert.Equal(t, first, second)
}

func TestFloor(t *testing.T) {
	assert.Equal(t, FirstPartyFloor, Floor(domain.MethodFirstParty))
	assert.Equal(t, FuzzyFloor, Floor(domain.MethodFuzzy))
	assert.Zero(t, Floor(domain.MethodUnresolved))
}
