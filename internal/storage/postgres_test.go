package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revuhq/revu/internal/core"
)

// newPostgresStore connects to the database named by REVU_TEST_DATABASE_URL,
// or skips. The schema must already exist (run the migrations first); tests
// clean up the rows they create.
func newPostgresStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("REVU_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("REVU_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func createTestUser(t *testing.T, store Store, username string) *core.User {
	t.Helper()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, username, "hash")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DeleteOwner(ctx, user.ID) })
	return user
}

func TestPostgresStore_VersionChain(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "pg_chain_user")
	filename := fmt.Sprintf("chain_%d.py", user.ID)

	v1, err := store.AppendVersion(ctx, newVersion(user.ID, filename, "h1"))
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Nil(t, v1.ParentID)

	v2, err := store.AppendVersion(ctx, newVersion(user.ID, filename, "h2"))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	require.NotNil(t, v2.ParentID)
	assert.Equal(t, v1.ID, *v2.ParentID)

	latest, err := store.LatestVersion(ctx, filename)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Version)
	require.Len(t, latest.Comments, 1)
	assert.Equal(t, "Rename x.", latest.Comments[0].Review)
}

func TestPostgresStore_ConcurrentAppends(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "pg_race_user")
	filename := fmt.Sprintf("race_%d.py", user.ID)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.AppendVersion(ctx, newVersion(user.ID, filename, fmt.Sprintf("h%d", i)))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	versions, err := store.ListByOwner(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, versions, n)
	for i, v := range versions {
		assert.Equal(t, n-i, v.Version, "versions must be contiguous with no duplicates")
	}
}

func TestPostgresStore_DeleteLeavesDanglingParent(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "pg_delete_user")
	filename := fmt.Sprintf("delete_%d.py", user.ID)

	for i := 1; i <= 3; i++ {
		_, err := store.AppendVersion(ctx, newVersion(user.ID, filename, fmt.Sprintf("h%d", i)))
		require.NoError(t, err)
	}

	deleted, err := store.DeleteByFilenameAndVersion(ctx, filename, 2)
	require.NoError(t, err)
	assert.True(t, deleted)

	v3, err := store.GetByFilenameAndVersion(ctx, filename, 3)
	require.NoError(t, err)
	assert.NotNil(t, v3.ParentID, "deleting the middle version must not touch its child")

	deleted, err = store.DeleteByFilenameAndVersion(ctx, filename, 2)
	require.NoError(t, err)
	assert.False(t, deleted)

	v4, err := store.AppendVersion(ctx, newVersion(user.ID, filename, "h4"))
	require.NoError(t, err)
	assert.Equal(t, 4, v4.Version, "numbering continues from the highest survivor")
}

func TestPostgresStore_ErrorTaxonomy(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	user := createTestUser(t, store, "pg_errors_user")

	_, err := store.AppendVersion(ctx, newVersion(-1, "ghost.py", "h1"))
	assert.True(t, errors.Is(err, core.ErrNotFound), "unknown owner maps the FK violation")

	_, err = store.CreateUser(ctx, user.Username, "other")
	assert.True(t, errors.Is(err, core.ErrUsernameTaken))

	_, err = store.GetByID(ctx, -1)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = store.GetUserByUsername(ctx, "pg_no_such_user")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	none, err := store.LatestVersion(ctx, "pg_no_such_file.py")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPostgresStore_DeleteOwnerCascades(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "pg_cascade_user", "hash")
	require.NoError(t, err)
	filename := fmt.Sprintf("cascade_%d.py", user.ID)

	_, err = store.AppendVersion(ctx, newVersion(user.ID, filename, "h1"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteOwner(ctx, user.ID))

	_, err = store.GetUserByID(ctx, user.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	gone, err := store.LatestVersion(ctx, filename)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.True(t, errors.Is(store.DeleteOwner(ctx, user.ID), core.ErrNotFound))
}
