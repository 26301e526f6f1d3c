package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvscope/kvscope/pkg/store"
)

func openTestEnv(t *testing.T, options ...Option) *Env {
	t.Helper()
	env, err := Open(filepath.Join(t.TempDir(), "test.db"), options...)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestCreateAndOpenCollection(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("users")
	require.NoError(t, err)
	require.NoError(t, wtxn.Commit())

	rtxn, err := env.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()

	_, ok := rtxn.Collection(store.MainCollection)
	assert.True(t, ok)
	_, ok = rtxn.Collection("users")
	assert.True(t, ok)
	_, ok = rtxn.Collection("missing")
	assert.False(t, ok)

	// The reserved main bucket must not leak into the listing.
	assert.Equal(t, []string{"users"}, rtxn.Collections())
}

func TestCollectionsOnFinishedTxn(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("users")
	require.NoError(t, err)
	require.NoError(t, wtxn.Commit())

	rtxn, err := env.Begin(false)
	require.NoError(t, err)
	require.NoError(t, rtxn.Rollback())

	// The walk fails on a finished transaction; the listing must be empty
	// rather than partial.
	assert.Empty(t, rtxn.Collections())
}

func TestPutGetDelete(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)

	key := []byte{0x00, 0xff, 'k'}
	require.NoError(t, c.Put(key, []byte("value")))

	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)

	// Empty values are distinguishable from absent keys.
	require.NoError(t, c.Put([]byte("empty"), []byte{}))
	v, ok = c.Get([]byte("empty"))
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok = c.Get([]byte("absent"))
	assert.False(t, ok)

	require.NoError(t, c.Delete(key))
	_, ok = c.Get(key)
	assert.False(t, ok)

	// Idempotent delete
	assert.NoError(t, c.Delete(key))

	require.NoError(t, wtxn.Commit())
}

func TestCountTracksUncommittedWrites(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, c.Put([]byte("a"), []byte("1")))
	require.NoError(t, c.Put([]byte("b"), []byte("2")))
	require.NoError(t, wtxn.Commit())

	wtxn, err = env.Begin(true)
	require.NoError(t, err)
	defer wtxn.Rollback()
	c, ok := wtxn.Collection(store.MainCollection)
	require.True(t, ok)

	assert.Equal(t, 2, c.Count())

	require.NoError(t, c.Put([]byte("c"), []byte("3")))
	assert.Equal(t, 3, c.Count())

	// Overwrite must not change the count.
	require.NoError(t, c.Put([]byte("a"), []byte("1!")))
	assert.Equal(t, 3, c.Count())

	require.NoError(t, c.Delete([]byte("b")))
	assert.Equal(t, 2, c.Count())

	// Deleting an absent key must not change the count.
	require.NoError(t, c.Delete([]byte("zzz")))
	assert.Equal(t, 2, c.Count())
}

func TestReadSnapshotCount(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, wtxn.Commit())

	rtxn, err := env.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()
	rc, ok := rtxn.Collection(store.MainCollection)
	require.True(t, ok)
	assert.Equal(t, 3, rc.Count())
}

func TestCursorOrder(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, c.Put([]byte("banana"), []byte("2")))
	require.NoError(t, c.Put([]byte{0x00}, []byte("0")))
	require.NoError(t, c.Put([]byte("apple"), []byte("1")))
	require.NoError(t, wtxn.Commit())

	rtxn, err := env.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()
	rc, ok := rtxn.Collection(store.MainCollection)
	require.True(t, ok)

	var keys []string
	cur := rc.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		keys = append(keys, string(k))
	}
	assert.Equal(t, []string{"\x00", "apple", "banana"}, keys)
}

func TestCollectionLimit(t *testing.T) {
	env := openTestEnv(t, WithMaxCollections(1))

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	defer wtxn.Rollback()

	_, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("one")
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("two")
	assert.ErrorIs(t, err, store.ErrCollectionLimit)
}

func TestReadOnlyTxnRejectsWrites(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, wtxn.Commit())

	rtxn, err := env.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()

	_, err = rtxn.CreateCollection("nope")
	assert.ErrorIs(t, err, store.ErrReadOnlyTxn)

	c, ok := rtxn.Collection(store.MainCollection)
	require.True(t, ok)
	assert.ErrorIs(t, c.Put([]byte("k"), []byte("v")), store.ErrReadOnlyTxn)
	assert.ErrorIs(t, c.Delete([]byte("k")), store.ErrReadOnlyTxn)
}

func TestInvalidCollectionName(t *testing.T) {
	env := openTestEnv(t)

	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	defer wtxn.Rollback()

	_, err = wtxn.CreateCollection("bad\x00name")
	assert.ErrorIs(t, err, store.ErrInvalidName)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	env, err := Open(path)
	require.NoError(t, err)
	wtxn, err := env.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, c.Put([]byte("durable"), []byte("yes")))
	require.NoError(t, wtxn.Commit())
	require.NoError(t, env.Close())

	env, err = Open(path)
	require.NoError(t, err)
	defer env.Close()
	rtxn, err := env.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()
	rc, ok := rtxn.Collection(store.MainCollection)
	require.True(t, ok)
	v, ok := rc.Get([]byte("durable"))
	require.True(t, ok)
	assert.Equal(t, []byte("yes"), v)
}
