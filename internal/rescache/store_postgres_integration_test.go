//go:build integration

package rescache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"kindred/internal/domain"
	"kindred/internal/rescache"
	"kindred/pkg/platform/sentinel"
	"kindred/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *rescache.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = rescache.NewPostgresStore(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(context.Background(), "TRUNCATE resolution_cache")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newEntry(key string, seen time.Time) *domain.CacheEntry {
	identityID := uuid.New()
	return &domain.CacheEntry{
		SignalKey:       key,
		FingerprintHash: "fp-1",
		IdentityID:      &identityID,
		Method:          domain.MethodFirstParty,
		Confidence:      0.97,
		Contact: domain.ContactSnapshot{
			Name:    "JAMES WILSON",
			Email:   "jwilson@example.com",
			Address: "Winston-Salem, NC, 27104",
		},
		FirstSeen:    seen,
		LastSeen:     seen,
		TimesMatched: 1,
		Valid:        true,
	}
}

func (s *PostgresStoreSuite) TestInsertAndGet() {
	ctx := context.Background()
	entry := s.newEntry("fp:f1|em:e1", time.Now())
	s.Require().NoError(s.store.Insert(ctx, entry))

	got, err := s.store.Get(ctx, "fp:f1|em:e1")
	s.Require().NoError(err)
	s.Equal(domain.MethodFirstParty, got.Method)
	s.Require().NotNil(got.IdentityID)
	s.Equal(*entry.IdentityID, *got.IdentityID)
	s.Equal("JAMES WILSON", got.Contact.Name)
	s.True(got.Valid)
}

func (s *PostgresStoreSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), "fp:missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTouchBumpsTimesMatched() {
	ctx := context.Background()
	seen := time.Now().Add(-time.Hour)
	s.Require().NoError(s.store.Insert(ctx, s.newEntry("fp:f1", seen)))

	later := time.Now()
	s.Require().NoError(s.store.Touch(ctx, "fp:f1", later))

	got, err := s.store.Get(ctx, "fp:f1")
	s.Require().NoError(err)
	s.Equal(2, got.TimesMatched)
	s.WithinDuration(later, got.LastSeen, time.Second)
}

func (s *PostgresStoreSuite) TestInvalidateThenReinsert() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.newEntry("fp:f1", time.Now())))
	s.Require().NoError(s.store.Invalidate(ctx, "fp:f1"))

	_, err := s.store.Get(ctx, "fp:f1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	// The partial unique index only guards valid rows, so a fresh binding
	// for the same key coexists with the audit row.
	replacement := s.newEntry("fp:f1", time.Now())
	s.Require().NoError(s.store.Insert(ctx, replacement))

	got, err := s.store.Get(ctx, "fp:f1")
	s.Require().NoError(err)
	s.Equal(*replacement.IdentityID, *got.IdentityID)

	var rows int
	err = s.postgres.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM resolution_cache WHERE signal_key = $1", "fp:f1").Scan(&rows)
	s.Require().NoError(err)
	s.Equal(2, rows)
}

func (s *PostgresStoreSuite) TestDuplicateValidKeyRejected() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.newEntry("fp:f1", time.Now())))
	s.Error(s.store.Insert(ctx, s.newEntry("fp:f1", time.Now())))
}

func (s *PostgresStoreSuite) TestGetByFingerprintMostRecentWins() {
	ctx := context.Background()
	old := s.newEntry("fp:f1|em:old", time.Now().Add(-48*time.Hour))
	recent := s.newEntry("fp:f1|em:new", time.Now())
	s.Require().NoError(s.store.Insert(ctx, old))
	s.Require().NoError(s.store.Insert(ctx, recent))

	got, err := s.store.GetByFingerprint(ctx, "fp-1")
	s.Require().NoError(err)
	s.Equal("fp:f1|em:new", got.SignalKey)
}

func (s *PostgresStoreSuite) TestGetByFingerprintEmptyHash() {
	_, err := s.store.GetByFingerprint(context.Background(), "")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestNilIdentityRoundTrip() {
	ctx := context.Background()
	entry := s.newEntry("fp:anon", time.Now())
	entry.IdentityID = nil
	entry.Method = domain.MethodFingerprint
	entry.Confidence = 0.40
	s.Require().NoError(s.store.Insert(ctx, entry))

	got, err := s.store.Get(ctx, "fp:anon")
	s.Require().NoError(err)
	s.Nil(got.IdentityID)
	s.Equal(domain.MethodFingerprint, got.Method)
}
