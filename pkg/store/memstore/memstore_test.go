package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvscope/kvscope/pkg/store"
)

func TestCreateAndOpenCollection(t *testing.T) {
	db := New()
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)

	_, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("users")
	require.NoError(t, err)
	require.NoError(t, wtxn.Commit())

	rtxn, err := db.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()

	_, ok := rtxn.Collection("users")
	assert.True(t, ok)
	_, ok = rtxn.Collection("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"users"}, rtxn.Collections())
}

func TestCreateRequiresWritableTxn(t *testing.T) {
	db := New()
	defer db.Close()

	rtxn, err := db.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()

	_, err = rtxn.CreateCollection("users")
	assert.ErrorIs(t, err, store.ErrReadOnlyTxn)
}

func TestCollectionLimit(t *testing.T) {
	db := New(WithMaxCollections(2))
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)
	defer wtxn.Rollback()

	// The main collection does not count against the limit.
	_, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)

	_, err = wtxn.CreateCollection("one")
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("two")
	require.NoError(t, err)
	_, err = wtxn.CreateCollection("three")
	assert.ErrorIs(t, err, store.ErrCollectionLimit)

	// Re-opening an existing collection is not a create.
	_, err = wtxn.CreateCollection("one")
	assert.NoError(t, err)
}

func TestSnapshotIsolation(t *testing.T) {
	db := New()
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, c.Put([]byte("a"), []byte("1")))
	require.NoError(t, wtxn.Commit())

	// A reader opened now must not see writes committed later.
	before, err := db.Begin(false)
	require.NoError(t, err)
	defer before.Rollback()

	wtxn, err = db.Begin(true)
	require.NoError(t, err)
	c, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, c.Put([]byte("b"), []byte("2")))
	require.NoError(t, wtxn.Commit())

	bc, ok := before.Collection(store.MainCollection)
	require.True(t, ok)
	assert.Equal(t, 1, bc.Count())
	_, ok = bc.Get([]byte("b"))
	assert.False(t, ok)

	after, err := db.Begin(false)
	require.NoError(t, err)
	defer after.Rollback()
	ac, ok := after.Collection(store.MainCollection)
	require.True(t, ok)
	assert.Equal(t, 2, ac.Count())
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := New()
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)
	_, err = wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, wtxn.Commit())

	wtxn, err = db.Begin(true)
	require.NoError(t, err)
	c, ok := wtxn.Collection(store.MainCollection)
	require.True(t, ok)
	require.NoError(t, c.Put([]byte("ghost"), []byte("boo")))
	require.NoError(t, wtxn.Rollback())

	rtxn, err := db.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()
	rc, ok := rtxn.Collection(store.MainCollection)
	require.True(t, ok)
	_, ok = rc.Get([]byte("ghost"))
	assert.False(t, ok)
}

func TestWriterSeesOwnWrites(t *testing.T) {
	db := New()
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)
	defer wtxn.Rollback()

	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)
	require.NoError(t, c.Put([]byte("k"), []byte("v")))

	v, ok := c.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 1, c.Count())

	require.NoError(t, c.Delete([]byte("k")))
	assert.Equal(t, 0, c.Count())

	// Deleting an absent key is a no-op.
	assert.NoError(t, c.Delete([]byte("k")))
}

func TestCursorOrder(t *testing.T) {
	db := New()
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)
	c, err := wtxn.CreateCollection(store.MainCollection)
	require.NoError(t, err)

	// Inserted out of order, including a binary key.
	require.NoError(t, c.Put([]byte("banana"), []byte("2")))
	require.NoError(t, c.Put([]byte{0x00, 0x01}, []byte("0")))
	require.NoError(t, c.Put([]byte("apple"), []byte("1")))
	require.NoError(t, wtxn.Commit())

	rtxn, err := db.Begin(false)
	require.NoError(t, err)
	defer rtxn.Rollback()
	rc, ok := rtxn.Collection(store.MainCollection)
	require.True(t, ok)

	var keys [][]byte
	cur := rc.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		keys = append(keys, k)
	}
	require.Len(t, keys, 3)
	assert.Equal(t, []byte{0x00, 0x01}, keys[0])
	assert.Equal(t, []byte("apple"), keys[1])
	assert.Equal(t, []byte("banana"), keys[2])
}

func TestInvalidCollectionName(t *testing.T) {
	db := New()
	defer db.Close()

	wtxn, err := db.Begin(true)
	require.NoError(t, err)
	defer wtxn.Rollback()

	_, err = wtxn.CreateCollection("bad\x00name")
	assert.ErrorIs(t, err, store.ErrInvalidName)
}

func TestClosedEnv(t *testing.T) {
	db := New()
	require.NoError(t, db.Close())

	_, err := db.Begin(false)
	assert.ErrorIs(t, err, store.ErrEnvClosed)
}
