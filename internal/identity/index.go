package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kindred/internal/normalize"
)

// Index is the derived lookup projection the matcher tiers query. It is
// rebuildable from the identity store at any time and supports incremental
// insertion so identities created mid-batch are matchable within the same
// run. Reads are concurrent; writes are serialized.
type Index struct {
	mu sync.RWMutex

	byNameZip        map[string][]uuid.UUID
	byNameCity       map[string][]uuid.UUID
	byEmail          map[string][]uuid.UUID
	byLastZipInitial map[string][]uuid.UUID
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	idx := &Index{}
	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.byNameZip = make(map[string][]uuid.UUID)
	idx.byNameCity = make(map[string][]uuid.UUID)
	idx.byEmail = make(map[string][]uuid.UUID)
	idx.byLastZipInitial = make(map[string][]uuid.UUID)
}

// Rebuild cold-builds the index from the identity store, replacing all
// current contents atomically.
func (idx *Index) Rebuild(ctx context.Context, store Store) error {
	fresh := NewIndex()
	err := store.ForEach(ctx, func(ident CanonicalIdentity) error {
		fresh.insertLocked(ident)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild candidate index: %w", err)
	}

	idx.mu.Lock()
	idx.byNameZip = fresh.byNameZip
	idx.byNameCity = fresh.byNameCity
	idx.byEmail = fresh.byEmail
	idx.byLastZipInitial = fresh.byLastZipInitial
	idx.mu.Unlock()
	return nil
}

// Insert adds one identity to every applicable lookup map. The identity's
// first name is expanded through the nickname table at index time, so a
// donor stored as JIM is findable under JAMES and vice versa.
func (idx *Index) Insert(ident CanonicalIdentity) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insertLocked(ident)
}

func (idx *Index) insertLocked(ident CanonicalIdentity) {
	if ident.LastName != "" {
		for _, first := range normalize.Variants(ident.FirstName) {
			if ident.Zip5 != "" {
				key := normalize.NameZipKey(ident.LastName, first, ident.Zip5)
				idx.byNameZip[key] = appendUnique(idx.byNameZip[key], ident.ID)
			}
			if ident.City != "" {
				key := normalize.NameCityKey(ident.LastName, first, ident.City)
				idx.byNameCity[key] = appendUnique(idx.byNameCity[key], ident.ID)
			}
		}
		if ident.Zip5 != "" && ident.FirstName != "" {
			key := normalize.LastZipInitialKey(ident.LastName, ident.Zip5, ident.FirstName[:1])
			idx.byLastZipInitial[key] = appendUnique(idx.byLastZipInitial[key], ident.ID)
		}
	}
	if ident.Email != "" {
		key := strings.ToLower(ident.Email)
		idx.byEmail[key] = appendUnique(idx.byEmail[key], ident.ID)
	}
}

// NameZip returns candidates with the exact normalized last+first+zip5.
func (idx *Index) NameZip(last, first, zip5 string) []uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return clone(idx.byNameZip[normalize.NameZipKey(last, first, zip5)])
}

// NameCity returns candidates with the exact normalized last+first+city.
func (idx *Index) NameCity(last, first, city string) []uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return clone(idx.byNameCity[normalize.NameCityKey(last, first, city)])
}

// Email returns candidates with the exact (lowercased) email.
func (idx *Index) Email(email string) []uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return clone(idx.byEmail[strings.ToLower(email)])
}

// LastZipInitial returns candidates sharing last name, zip5, and first
// initial.
func (idx *Index) LastZipInitial(last, zip5, initial string) []uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return clone(idx.byLastZipInitial[normalize.LastZipInitialKey(last, zip5, initial)])
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func clone(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}
