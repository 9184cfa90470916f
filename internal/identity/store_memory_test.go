package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/pkg/platform/sentinel"
)

func TestInMemoryStore_GetUnknown(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_EnrichContactFillsEmptyOnly(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	ident := CanonicalIdentity{ID: uuid.New(), LastName: "SMITH", Email: "existing@example.com"}
	require.NoError(t, store.Insert(ctx, &ident))

	require.NoError(t, store.EnrichContact(ctx, ident.ID, "new@example.com", "3365550138"))

	got, err := store.Get(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, "existing@example.com", got.Email, "populated field must never be overwritten")
	assert.Equal(t, "3365550138", got.Phone, "empty field is enrichable")
}

func TestInMemoryStore_AddActivityAggregates(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	ident := CanonicalIdentity{ID: uuid.New(), LastName: "SMITH"}
	require.NoError(t, store.Insert(ctx, &ident))

	require.NoError(t, store.AddActivity(ctx, ident.ID, 2500))
	require.NoError(t, store.AddActivity(ctx, ident.ID, 5000))

	got, err := store.Get(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), got.LifetimeAmountCents)
	assert.Equal(t, 2, got.GiftCount)
}
