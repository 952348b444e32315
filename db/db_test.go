package db_test

import (
	"context"
	"path/filepath"
	"socialfeed/db"
	"socialfeed/store"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*db.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	database, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database, path
}

func TestSetGetClear(t *testing.T) {
	ctx := context.Background()
	database, _ := openTestDB(t)

	_, found, err := database.Get(ctx, store.KeySessionToken)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, database.Set(ctx, store.KeySessionToken, "token-1"))
	require.NoError(t, database.Set(ctx, store.KeySessionToken, "token-2"))

	value, found, err := database.Get(ctx, store.KeySessionToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "token-2", value)

	updatedAt, err := database.UpdatedAt(ctx, store.KeySessionToken)
	require.NoError(t, err)
	assert.False(t, updatedAt.IsZero())

	require.NoError(t, database.Clear(ctx, store.KeySessionToken))
	_, found, err = database.Get(ctx, store.KeySessionToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestValuesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	database, path := openTestDB(t)

	require.NoError(t, database.Set(ctx, store.KeyCacheSnapshot, `{"posts":[],"comments":{}}`))
	require.NoError(t, database.Close())

	reopened, err := db.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err := reopened.Get(ctx, store.KeyCacheSnapshot)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"posts":[],"comments":{}}`, value)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	database, _ := openTestDB(t)

	require.NoError(t, database.Set(ctx, store.KeyCacheSnapshot, "a"))
	require.NoError(t, database.Set(ctx, store.KeySessionToken, "b"))
	require.NoError(t, database.Set(ctx, store.KeySessionUser, "c"))

	removed, err := database.Reset(ctx, store.KeyCacheSnapshot)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, found, _ := database.Get(ctx, store.KeySessionToken)
	assert.True(t, found)

	removed, err = database.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestRollback(t *testing.T) {
	_, path := openTestDB(t)
	assert.NoError(t, db.Rollback(path))
	assert.NoError(t, db.Migrate(path))
}
