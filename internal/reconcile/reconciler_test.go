package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/internal/domain"
	"kindred/internal/identity"
	"kindred/internal/normalize"
)

type reconcilerFixture struct {
	identities *identity.InMemoryStore
	index      *identity.Index
	decisions  *InMemoryStore
	reconciler *Reconciler
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		identities: identity.NewInMemoryStore(),
		index:      identity.NewIndex(),
		decisions:  NewInMemoryStore(),
	}
	f.reconciler = New(f.identities, f.index, f.decisions, nil, nil)
	return f
}

func importSignal(id, rawName, zip string) domain.Signal {
	return domain.Signal{
		Kind:        domain.SignalImportRecord,
		SignalID:    id,
		RawName:     rawName,
		RawZip:      zip,
		AmountCents: 2500,
	}
}

func matchFor(identityID uuid.UUID, method domain.Method, confidence float64) domain.MatchResult {
	return domain.MatchResult{
		IdentityID: &identityID,
		Method:     method,
		Confidence: confidence,
	}
}

func TestReconcile_AttachRecordsActivity(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()
	donor := identity.CanonicalIdentity{ID: uuid.New(), LastName: "WILSON", FirstName: "JAMES", Zip5: "27104"}
	require.NoError(t, f.identities.Insert(ctx, &donor))

	sig := importSignal("tx-1", "Wilson, Jim", "27104")
	nf := normalize.Signal(sig)

	decision, err := f.reconciler.Reconcile(ctx, sig, nf, matchFor(donor.ID, domain.MethodNameZip, 0.90))
	require.NoError(t, err)

	assert.Equal(t, KindAttach, decision.Kind)
	assert.Equal(t, donor.ID, *decision.IdentityID)

	got, err := f.identities.Get(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.LifetimeAmountCents)
	assert.Equal(t, 1, got.GiftCount)
}

func TestReconcile_BelowFloorImportCreates(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()
	donor := identity.CanonicalIdentity{ID: uuid.New(), LastName: "WILSON", FirstName: "JAMES", Zip5: "27104"}
	require.NoError(t, f.identities.Insert(ctx, &donor))

	// A match under its tier floor is not attachable; the import path
	// falls through to create-or-attach by dedupe key.
	sig := importSignal("tx-2", "Wilson, Jim", "27104")
	nf := normalize.Signal(sig)

	decision, err := f.reconciler.Reconcile(ctx, sig, nf, matchFor(donor.ID, domain.MethodNameZip, 0.50))
	require.NoError(t, err)

	assert.Equal(t, KindCreateNew, decision.Kind)
	assert.NotEqual(t, donor.ID, *decision.IdentityID)
}

func TestReconcile_CreateNewIndexesIdentity(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()

	sig := importSignal("tx-3", "Smith, Robert", "27104")
	nf := normalize.Signal(sig)

	decision, err := f.reconciler.Reconcile(ctx, sig, nf, domain.Unresolved())
	require.NoError(t, err)
	require.Equal(t, KindCreateNew, decision.Kind)

	// A later record for the same person in the same run attaches to the
	// identity just created.
	sig2 := importSignal("tx-4", "SMITH ROBERT", "27104")
	nf2 := normalize.Signal(sig2)

	decision2, err := f.reconciler.Reconcile(ctx, sig2, nf2, domain.Unresolved())
	require.NoError(t, err)
	assert.Equal(t, KindAttach, decision2.Kind)
	assert.Equal(t, *decision.IdentityID, *decision2.IdentityID)

	got, err := f.identities.Get(ctx, *decision.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.LifetimeAmountCents)
	assert.Equal(t, 2, got.GiftCount)
}

func TestReconcile_JunkRowNeverCreates(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()

	// No parseable name: no dedupe key, so no fragmentary identity.
	sig := domain.Signal{
		Kind:        domain.SignalImportRecord,
		SignalID:    "tx-5",
		RawName:     "###",
		RawZip:      "27104",
		AmountCents: 2500,
	}
	nf := normalize.Signal(sig)

	decision, err := f.reconciler.Reconcile(ctx, sig, nf, domain.Unresolved())
	require.NoError(t, err)
	assert.Equal(t, KindDefer, decision.Kind)
	assert.Nil(t, decision.IdentityID)
}

func TestReconcile_VisitorsDeferInsteadOfCreate(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()

	sig := domain.Signal{
		Kind:     domain.SignalLiveVisitor,
		SignalID: "visit-1",
		RawName:  "Smith, Robert",
		RawZip:   "27104",
	}
	nf := normalize.Signal(sig)

	decision, err := f.reconciler.Reconcile(ctx, sig, nf, domain.Unresolved())
	require.NoError(t, err)
	assert.Equal(t, KindDefer, decision.Kind)
}

func TestReconcile_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()
	donor := identity.CanonicalIdentity{ID: uuid.New(), LastName: "WILSON", FirstName: "JAMES", Zip5: "27104"}
	require.NoError(t, f.identities.Insert(ctx, &donor))

	sig := importSignal("tx-6", "Wilson, James", "27104")
	nf := normalize.Signal(sig)
	result := matchFor(donor.ID, domain.MethodNameZip, 0.90)

	first, err := f.reconciler.Reconcile(ctx, sig, nf, result)
	require.NoError(t, err)
	second, err := f.reconciler.Reconcile(ctx, sig, nf, result)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.decisions.Len())

	// No double-counted activity on replay.
	got, err := f.identities.Get(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.LifetimeAmountCents)
	assert.Equal(t, 1, got.GiftCount)
}

func TestReconcile_ConflictingReplayKeepsPrior(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()
	donor := identity.CanonicalIdentity{ID: uuid.New(), LastName: "WILSON", FirstName: "JAMES", Zip5: "27104"}
	other := identity.CanonicalIdentity{ID: uuid.New(), LastName: "WILSON", FirstName: "JANE", Zip5: "27104"}
	require.NoError(t, f.identities.Insert(ctx, &donor))
	require.NoError(t, f.identities.Insert(ctx, &other))

	sig := importSignal("tx-7", "Wilson, James", "27104")
	nf := normalize.Signal(sig)

	first, err := f.reconciler.Reconcile(ctx, sig, nf, matchFor(donor.ID, domain.MethodNameZip, 0.90))
	require.NoError(t, err)

	// Replay with different content: recorded decision governs.
	replay, err := f.reconciler.Reconcile(ctx, sig, nf, matchFor(other.ID, domain.MethodNameZip, 0.90))
	require.NoError(t, err)
	assert.Equal(t, first, replay)
	assert.Equal(t, donor.ID, *replay.IdentityID)
}

func TestReconcile_MissingSignalID(t *testing.T) {
	f := newReconcilerFixture()
	_, err := f.reconciler.Reconcile(context.Background(), domain.Signal{}, domain.NormalizedFields{}, domain.Unresolved())
	require.Error(t, err)
	assert.Equal(t, domain.ErrorInput, domain.Category(err))
}

func TestReconcile_ConcurrentCreateForSameKey(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()

	var wg sync.WaitGroup
	decisions := make([]Decision, 8)
	for i := range decisions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig := importSignal("tx-race-"+uuid.NewString(), "Smith, Robert", "27104")
			nf := normalize.Signal(sig)
			decision, err := f.reconciler.Reconcile(ctx, sig, nf, domain.Unresolved())
			if assert.NoError(t, err) {
				decisions[i] = decision
			}
		}()
	}
	wg.Wait()

	created := 0
	var winner *uuid.UUID
	for _, d := range decisions {
		require.NotNil(t, d.IdentityID)
		if winner == nil {
			winner = d.IdentityID
		}
		assert.Equal(t, *winner, *d.IdentityID, "all signals must land on one identity")
		if d.Kind == KindCreateNew {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one goroutine creates")
}
