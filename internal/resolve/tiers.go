package resolve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kindred/internal/domain"
	"kindred/internal/identity"
	"kindred/internal/normalize"
	"kindred/internal/rescache"
	"kindred/internal/resolve/provider"
	"kindred/pkg/platform/circuit"
	"kindred/pkg/platform/sentinel"
)

var declined = domain.MatchResult{}

// firstPartyTier matches on direct email equality against the candidate
// index. The only tier allowed to short-circuit all others instantly.
// Canonical identities carry no account id, so logged-in repeat visits
// resolve through the fresh cache hit on the account-bearing signal key
// rather than an index lookup here.
type firstPartyTier struct {
	index *identity.Index
}

func (t *firstPartyTier) Method() domain.Method { return domain.MethodFirstParty }

func (t *firstPartyTier) Attempt(_ context.Context, _ domain.Signal, nf domain.NormalizedFields) (domain.MatchResult, bool, error) {
	if nf.Email == "" {
		return declined, false, nil
	}
	candidates := t.index.Email(nf.Email)
	if len(candidates) != 1 {
		return declined, false, nil
	}
	id := candidates[0]
	return domain.MatchResult{
		IdentityID: &id,
		Method:     domain.MethodFirstParty,
		Confidence: 0.97,
	}, true, nil
}

// externalTier asks the third-party person-lookup provider to identify an
// IP/device hash, then maps the returned person back onto a canonical
// identity through the index. Network calls run under a timeout, a bounded
// retry, and a circuit breaker; while the circuit is open the tier
// declines immediately so the chain falls through to tier 3.
type externalTier struct {
	client  provider.Client
	breaker *circuit.Breaker
	index   *identity.Index
	timeout time.Duration
	retries int
	logger  *slog.Logger
}

func (t *externalTier) Method() domain.Method { return domain.MethodExternalLookup }

func (t *externalTier) Attempt(ctx context.Context, sig domain.Signal, _ domain.NormalizedFields) (domain.MatchResult, bool, error) {
	if sig.IPHash == "" || t.client == nil {
		return declined, false, nil
	}
	if !t.breaker.Allow() {
		return declined, false, nil
	}

	person, err := t.lookup(ctx, sig.IPHash)
	if err != nil {
		if provider.IsNotFound(err) {
			t.breaker.RecordSuccess()
			return declined, false, nil
		}
		if _, change := t.breaker.RecordFailure(); change.Opened && t.logger != nil {
			t.logger.WarnContext(ctx, "person lookup circuit opened", "breaker", t.breaker.Name())
		}
		return declined, false, domain.NewDependencyError("external lookup", err)
	}
	if _, change := t.breaker.RecordSuccess(); change.Closed && t.logger != nil {
		t.logger.InfoContext(ctx, "person lookup circuit closed", "breaker", t.breaker.Name())
	}

	candidates := t.match(person)
	if len(candidates) != 1 {
		return declined, false, nil
	}
	id := candidates[0]
	return domain.MatchResult{
		IdentityID: &id,
		Method:     domain.MethodExternalLookup,
		Confidence: clamp(ExternalFloor+person.Confidence*(ExternalCeil-ExternalFloor), ExternalFloor, ExternalCeil),
	}, true, nil
}

// lookup runs the provider call with a per-attempt timeout and retries
// retryable failures a bounded number of times.
func (t *externalTier) lookup(ctx context.Context, ipHash string) (provider.Person, error) {
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		person, err := t.client.LookupByIP(callCtx, ipHash)
		cancel()
		if err == nil {
			return person, nil
		}
		lastErr = err
		if !provider.IsRetryable(err) {
			break
		}
	}
	return provider.Person{}, lastErr
}

// match maps provider person fields to index candidates: email equality
// first, then exact name+zip over the person's first-name variants.
func (t *externalTier) match(person provider.Person) []uuid.UUID {
	if person.Email != "" {
		if candidates := t.index.Email(person.Email); len(candidates) > 0 {
			return candidates
		}
	}
	nf := normalize.Name(person.LastName + ", " + person.FirstName)
	zip5, _ := normalize.Zip(person.Zip5)
	if nf.LastName == "" || zip5 == "" {
		return nil
	}
	return unionOverVariants(nf, func(first string) []uuid.UUID {
		return t.index.NameZip(nf.LastName, first, zip5)
	})
}

// nameZipTier is the primary donor-import matcher: exact normalized
// last + first (any variant) + zip5.
type nameZipTier struct {
	index *identity.Index
}

func (t *nameZipTier) Method() domain.Method { return domain.MethodNameZip }

func (t *nameZipTier) Attempt(_ context.Context, _ domain.Signal, nf domain.NormalizedFields) (domain.MatchResult, bool, error) {
	if nf.LastName == "" || nf.FirstName == "" || nf.Zip5 == "" {
		return declined, false, nil
	}
	candidates := unionOverVariants(nf, func(first string) []uuid.UUID {
		return t.index.NameZip(nf.LastName, first, nf.Zip5)
	})
	if len(candidates) != 1 {
		// multiple distinct people behind one name+zip: decline rather
		// than guess
		return declined, false, nil
	}
	id := candidates[0]
	return domain.MatchResult{
		IdentityID: &id,
		Method:     domain.MethodNameZip,
		Confidence: 0.90,
	}, true, nil
}

// nameCityTier matches exact last+first+city when zip was absent or
// produced no candidate.
type nameCityTier struct {
	index *identity.Index
}

func (t *nameCityTier) Method() domain.Method { return domain.MethodNameCity }

func (t *nameCityTier) Attempt(_ context.Context, _ domain.Signal, nf domain.NormalizedFields) (domain.MatchResult, bool, error) {
	if nf.LastName == "" || nf.FirstName == "" || nf.City == "" {
		return declined, false, nil
	}
	candidates := unionOverVariants(nf, func(first string) []uuid.UUID {
		return t.index.NameCity(nf.LastName, first, nf.City)
	})
	if len(candidates) != 1 {
		return declined, false, nil
	}
	id := candidates[0]
	return domain.MatchResult{
		IdentityID: &id,
		Method:     domain.MethodNameCity,
		Confidence: 0.70,
	}, true, nil
}

// fuzzyTier matches on exact last name, zip5, and first initial. With
// multiple candidates the one with the strictly largest historical
// activity prior wins; residual ties decline rather than guess, so batch
// replays are order-independent.
type fuzzyTier struct {
	index *identity.Index
	store identity.Store
}

func (t *fuzzyTier) Method() domain.Method { return domain.MethodFuzzy }

func (t *fuzzyTier) Attempt(ctx context.Context, _ domain.Signal, nf domain.NormalizedFields) (domain.MatchResult, bool, error) {
	if nf.LastName == "" || nf.Zip5 == "" || nf.FirstInitial() == "" {
		return declined, false, nil
	}
	candidates := t.index.LastZipInitial(nf.LastName, nf.Zip5, nf.FirstInitial())
	switch len(candidates) {
	case 0:
		return declined, false, nil
	case 1:
		id := candidates[0]
		return domain.MatchResult{
			IdentityID: &id,
			Method:     domain.MethodFuzzy,
			Confidence: 0.50,
		}, true, nil
	}

	winner, err := t.tieBreak(ctx, candidates)
	if err != nil {
		return declined, false, err
	}
	if winner == nil {
		return declined, false, nil
	}
	return domain.MatchResult{
		IdentityID: winner,
		Method:     domain.MethodFuzzy,
		Confidence: 0.45,
	}, true, nil
}

func (t *fuzzyTier) tieBreak(ctx context.Context, candidates []uuid.UUID) (*uuid.UUID, error) {
	var (
		winner  *uuid.UUID
		best    int64
		contest bool
	)
	for _, id := range candidates {
		ident, err := t.store.Get(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, domain.NewDependencyError("fuzzy tie-break", err)
		}
		switch {
		case winner == nil || ident.LifetimeAmountCents > best:
			candidate := id
			winner = &candidate
			best = ident.LifetimeAmountCents
			contest = false
		case ident.LifetimeAmountCents == best:
			contest = true
		}
	}
	if contest {
		return nil, nil
	}
	return winner, nil
}

// fingerprintTier resolves returning devices from the cache binding alone.
// No network, live-visitor signals only.
type fingerprintTier struct {
	cache *rescache.Cache
}

func (t *fingerprintTier) Method() domain.Method { return domain.MethodFingerprint }

func (t *fingerprintTier) Attempt(ctx context.Context, sig domain.Signal, _ domain.NormalizedFields) (domain.MatchResult, bool, error) {
	if sig.Kind != domain.SignalLiveVisitor || sig.FingerprintHash == "" {
		return declined, false, nil
	}
	entry, err := t.cache.LookupFingerprint(ctx, sig.FingerprintHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return declined, false, nil
	}
	if err != nil {
		return declined, false, domain.NewDependencyError("fingerprint lookup", err)
	}
	if entry.IdentityID == nil {
		return declined, false, nil
	}
	return domain.MatchResult{
		IdentityID: entry.IdentityID,
		Method:     domain.MethodFingerprint,
		Confidence: 0.40,
	}, true, nil
}

// geoTier annotates the signal with a coarse region: the bucket the
// traffic receiver supplied, or one derived from the IP hash prefix via
// the fixed region table. It never references an identity and never
// authorizes a merge.
type geoTier struct{}

func (t *geoTier) Method() domain.Method { return domain.MethodGeoRegion }

func (t *geoTier) Attempt(_ context.Context, sig domain.Signal, _ domain.NormalizedFields) (domain.MatchResult, bool, error) {
	region := sig.IPRegion
	if region == "" {
		region = regionForIPHash(sig.IPHash)
	}
	if region == "" {
		return declined, false, nil
	}
	return domain.MatchResult{
		Method:     domain.MethodGeoRegion,
		Confidence: 0.10,
		Region:     region,
	}, true, nil
}

func unionOverVariants(nf domain.NormalizedFields, lookup func(first string) []uuid.UUID) []uuid.UUID {
	var union []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, first := range nf.FirstNameVariants {
		for _, id := range lookup(first) {
			if !seen[id] {
				seen[id] = true
				union = append(union, id)
			}
		}
	}
	return union
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
