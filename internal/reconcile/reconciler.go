package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kindred/internal/domain"
	"kindred/internal/identity"
	"kindred/internal/normalize"
	"kindred/internal/platform/keylock"
	"kindred/internal/resolve"
	"kindred/pkg/platform/sentinel"
)

// Reconciler merges match decisions into the canonical-identity store. It
// never deletes or merges identities, and never mutates fields on an
// existing identity beyond the explicitly enrichable contact set.
type Reconciler struct {
	identities identity.Store
	index      *identity.Index
	decisions  DecisionStore
	keys       *keylock.KeyedMutex
	logger     *slog.Logger
	metrics    *Metrics
}

// New builds a reconciler. The keyed mutex serializes CreateNew per
// dedupe key so two concurrent chunks cannot both create an identity for
// the same person.
func New(identities identity.Store, index *identity.Index, decisions DecisionStore, logger *slog.Logger, metrics *Metrics) *Reconciler {
	return &Reconciler{
		identities: identities,
		index:      index,
		decisions:  decisions,
		keys:       keylock.New(),
		logger:     logger,
		metrics:    metrics,
	}
}

// Reconcile converts a match result into a persisted decision.
// Re-processing a signal id is a no-op returning the recorded decision;
// if the replay's content disagrees, the prior decision wins and the
// conflict is logged, never silently overwritten.
func (r *Reconciler) Reconcile(ctx context.Context, sig domain.Signal, nf domain.NormalizedFields, result domain.MatchResult) (Decision, error) {
	if sig.SignalID == "" {
		return Decision{}, domain.NewInputError("reconcile", errors.New("signal without id"))
	}

	if prior, err := r.decisions.Get(ctx, sig.SignalID); err == nil {
		r.reportReplay(ctx, *prior, result)
		return *prior, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Decision{}, domain.NewDependencyError("reconcile", err)
	}

	switch {
	case r.attachable(result):
		return r.attach(ctx, sig, nf, result)
	case sig.IsImport():
		return r.createOrAttach(ctx, sig, nf)
	default:
		// Live visitors are never auto-created as donors.
		return r.record(ctx, Decision{
			SignalID:   sig.SignalID,
			Kind:       KindDefer,
			Method:     result.Method,
			Confidence: result.Confidence,
			DecidedAt:  time.Now(),
		})
	}
}

// attachable requires an identity reference and a confidence at or above
// the producing tier's floor. Geo-only results carry no identity and so
// never attach.
func (r *Reconciler) attachable(result domain.MatchResult) bool {
	return result.IdentityID != nil && result.Confidence >= resolve.Floor(result.Method)
}

func (r *Reconciler) attach(ctx context.Context, sig domain.Signal, nf domain.NormalizedFields, result domain.MatchResult) (Decision, error) {
	decision, err := r.record(ctx, Decision{
		SignalID:   sig.SignalID,
		Kind:       KindAttach,
		IdentityID: result.IdentityID,
		Method:     result.Method,
		Confidence: result.Confidence,
		DecidedAt:  time.Now(),
	})
	if err != nil {
		return Decision{}, err
	}
	if decision.Kind != KindAttach || decision.IdentityID == nil {
		// lost an insert race; the stored decision governs
		return decision, nil
	}

	if err := r.enrich(ctx, *decision.IdentityID, nf); err != nil {
		return Decision{}, err
	}
	if sig.IsImport() && sig.AmountCents != 0 {
		if err := r.identities.AddActivity(ctx, *decision.IdentityID, sig.AmountCents); err != nil {
			return Decision{}, domain.NewDependencyError("record activity", err)
		}
	}
	return decision, nil
}

// createOrAttach handles the import-record no-match path. Creation is
// gated on a well-formed dedupe key so junk rows never become fragmentary
// identities, and serialized per key so exactly one of two racing chunks
// creates the identity and the loser attaches to it.
func (r *Reconciler) createOrAttach(ctx context.Context, sig domain.Signal, nf domain.NormalizedFields) (Decision, error) {
	key := normalize.DedupeKey(nf)
	if key == "" {
		return r.record(ctx, Decision{
			SignalID:  sig.SignalID,
			Kind:      KindDefer,
			Method:    domain.MethodUnresolved,
			DecidedAt: time.Now(),
		})
	}

	unlock := r.keys.Lock(key)
	defer unlock()

	// Another chunk may have won this key while we waited on the lock.
	if existing := r.lookupKey(nf); existing != nil {
		decision, err := r.record(ctx, Decision{
			SignalID:   sig.SignalID,
			Kind:       KindAttach,
			IdentityID: existing,
			Method:     domain.MethodNameZip,
			Confidence: resolve.NameZipFloor,
			DecidedAt:  time.Now(),
		})
		if err != nil {
			return Decision{}, err
		}
		if decision.Kind == KindAttach && sig.AmountCents != 0 {
			if err := r.identities.AddActivity(ctx, *decision.IdentityID, sig.AmountCents); err != nil {
				return Decision{}, domain.NewDependencyError("record activity", err)
			}
		}
		return decision, nil
	}

	ident := &identity.CanonicalIdentity{
		ID:         uuid.New(),
		LastName:   nf.LastName,
		FirstName:  nf.FirstName,
		MiddleName: nf.MiddleName,
		Suffix:     nf.Suffix,
		City:       nf.City,
		State:      nf.State,
		Zip5:       nf.Zip5,
		Email:      nf.Email,
		Phone:      nf.Phone,
	}
	if sig.AmountCents != 0 {
		ident.LifetimeAmountCents = sig.AmountCents
		ident.GiftCount = 1
	}
	if err := r.identities.Insert(ctx, ident); err != nil {
		return Decision{}, domain.NewDependencyError("create identity", err)
	}
	// Incremental index insert: the new identity is matchable by later
	// records in the same run, no second pass required.
	r.index.Insert(*ident)

	return r.record(ctx, Decision{
		SignalID:   sig.SignalID,
		Kind:       KindCreateNew,
		IdentityID: &ident.ID,
		Method:     domain.MethodUnresolved,
		Confidence: 0,
		DecidedAt:  time.Now(),
	})
}

// lookupKey finds the surviving identity for a dedupe key, mirroring the
// key's own zip-else-city construction.
func (r *Reconciler) lookupKey(nf domain.NormalizedFields) *uuid.UUID {
	first := normalize.Canonical(nf.FirstName)
	var candidates []uuid.UUID
	if nf.Zip5 != "" {
		candidates = r.index.NameZip(nf.LastName, first, nf.Zip5)
	} else {
		candidates = r.index.NameCity(nf.LastName, first, nf.City)
	}
	if len(candidates) != 1 {
		return nil
	}
	return &candidates[0]
}

// enrich fills empty contact fields only. A failed enrichment is
// tolerated: the attach decision stands.
func (r *Reconciler) enrich(ctx context.Context, id uuid.UUID, nf domain.NormalizedFields) error {
	if nf.Email == "" && nf.Phone == "" {
		return nil
	}
	err := r.identities.EnrichContact(ctx, id, nf.Email, nf.Phone)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return domain.NewDependencyError("enrich contact", err)
	}
	return nil
}

// record inserts the decision, resolving insert races in favor of the
// stored row.
func (r *Reconciler) record(ctx context.Context, decision Decision) (Decision, error) {
	err := r.decisions.Insert(ctx, decision)
	if errors.Is(err, sentinel.ErrConflict) {
		prior, getErr := r.decisions.Get(ctx, decision.SignalID)
		if getErr != nil {
			return Decision{}, domain.NewDependencyError("reload decision", getErr)
		}
		r.reportReplay(ctx, *prior, domain.MatchResult{IdentityID: decision.IdentityID, Method: decision.Method, Confidence: decision.Confidence})
		return *prior, nil
	}
	if err != nil {
		return Decision{}, domain.NewDependencyError("record decision", err)
	}
	r.metrics.ObserveDecision(decision.Kind)
	return decision, nil
}

// reportReplay logs replays whose content disagrees with the recorded
// decision. The prior decision always wins.
func (r *Reconciler) reportReplay(ctx context.Context, prior Decision, result domain.MatchResult) {
	if sameIdentity(prior.IdentityID, result.IdentityID) {
		return
	}
	r.metrics.IncrementConsistencyReplays()
	consistency := domain.NewConsistencyError("reconcile replay", fmt.Errorf("signal %s: recorded %v, replay produced %v", prior.SignalID, prior.IdentityID, result.IdentityID))
	if r.logger != nil {
		r.logger.WarnContext(ctx, "conflicting replay, prior decision wins",
			"signal_id", prior.SignalID,
			"error", consistency,
		)
	}
}

func sameIdentity(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
