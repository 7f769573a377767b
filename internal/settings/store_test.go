package settings

import (
	"context"
	"testing"

	"whatsapp-crm-lookup/internal/config"
	"whatsapp-crm-lookup/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(&config.Config{DBDriver: "sqlite", DBPath: ":memory:"})
	require.NoError(t, err)
	return NewStore(db)
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store yields incomplete credentials", func(t *testing.T) {
		store := newTestStore(t)
		creds, err := store.Get(ctx)
		require.NoError(t, err)
		assert.False(t, creds.Complete())
	})

	t.Run("set trims and round trips", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Set(ctx, Credentials{APIKey: "  key-1 ", LocationID: "loc-1\n"}))

		creds, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, Credentials{APIKey: "key-1", LocationID: "loc-1"}, creds)
	})

	t.Run("set overwrites previous values", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Set(ctx, Credentials{APIKey: "old", LocationID: "old-loc"}))
		require.NoError(t, store.Set(ctx, Credentials{APIKey: "new", LocationID: "new-loc"}))

		creds, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, Credentials{APIKey: "new", LocationID: "new-loc"}, creds)
	})

	t.Run("set rejects a blank field", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Set(ctx, Credentials{APIKey: "key", LocationID: "   "})
		assert.ErrorIs(t, err, ErrIncomplete)

		creds, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Empty(t, creds.APIKey)
	})

	t.Run("seed does not override stored values", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Set(ctx, Credentials{APIKey: "stored", LocationID: "stored-loc"}))
		require.NoError(t, store.Seed(ctx, Credentials{APIKey: "env", LocationID: "env-loc"}))

		creds, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "stored", creds.APIKey)
	})

	t.Run("seed fills missing keys only", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Seed(ctx, Credentials{APIKey: "env"}))

		creds, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, Credentials{APIKey: "env"}, creds)
	})
}

func TestStatic(t *testing.T) {
	creds, err := Static{APIKey: "k", LocationID: "l"}.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, creds.Complete())
}
