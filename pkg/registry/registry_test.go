package registry

import (
	"errors"
	"testing"

	"github.com/kvscope/kvscope/pkg/store"
	"github.com/kvscope/kvscope/pkg/store/memstore"
)

func newTestDB(t *testing.T) *memstore.DB {
	t.Helper()
	db := memstore.New()
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMissingIsNotAnError(t *testing.T) {
	db := newTestDB(t)

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer txn.Rollback()

	if _, ok := Open(txn, "nope"); ok {
		t.Errorf("Expected ok=false for a missing collection")
	}
}

func TestOpenOrCreate(t *testing.T) {
	db := newTestDB(t)

	wtxn, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	c, err := OpenOrCreate(wtxn, "users")
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	if c.Name() != "users" {
		t.Errorf("Expected name users, got %q", c.Name())
	}
	if err := wtxn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	rtxn, err := db.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer rtxn.Rollback()

	if _, ok := Open(rtxn, "users"); !ok {
		t.Errorf("Expected created collection to be openable")
	}
	names := List(rtxn)
	if len(names) != 1 || names[0] != "users" {
		t.Errorf("Expected [users], got %v", names)
	}
}

func TestOpenOrCreateRequiresWriteTxn(t *testing.T) {
	db := newTestDB(t)

	rtxn, err := db.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer rtxn.Rollback()

	if _, err := OpenOrCreate(rtxn, "users"); !errors.Is(err, store.ErrReadOnlyTxn) {
		t.Errorf("Expected ErrReadOnlyTxn, got %v", err)
	}
}

func TestHandleOutlivesTransaction(t *testing.T) {
	db := newTestDB(t)

	wtxn, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	c, err := OpenOrCreate(wtxn, "users")
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	if err := c.Put(wtxn, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := wtxn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// The same handle must resolve under a brand-new transaction.
	rtxn, err := db.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer rtxn.Rollback()

	v, ok := c.Get(rtxn, []byte("k"))
	if !ok || string(v) != "v" {
		t.Errorf("Expected handle to resolve under a new transaction, got %q ok=%v", v, ok)
	}
	if c.Count(rtxn) != 1 {
		t.Errorf("Expected count 1, got %d", c.Count(rtxn))
	}
}

func TestMutationOnMissingCollection(t *testing.T) {
	db := newTestDB(t)

	wtxn, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer wtxn.Rollback()

	c := Collection{name: "ghost"}
	if err := c.Put(wtxn, []byte("k"), []byte("v")); !errors.Is(err, ErrCollectionMissing) {
		t.Errorf("Expected ErrCollectionMissing from Put, got %v", err)
	}
	if err := c.Delete(wtxn, []byte("k")); !errors.Is(err, ErrCollectionMissing) {
		t.Errorf("Expected ErrCollectionMissing from Delete, got %v", err)
	}
	if c.Count(wtxn) != 0 {
		t.Errorf("Expected count 0 for a missing collection")
	}
	if _, ok := c.Cursor(wtxn); ok {
		t.Errorf("Expected no cursor for a missing collection")
	}
}

func TestMainHandle(t *testing.T) {
	m := Main()
	if !m.IsMain() {
		t.Errorf("Expected IsMain for the main handle")
	}
	if m.Name() != store.MainCollection {
		t.Errorf("Expected empty name for main, got %q", m.Name())
	}
	if m.DisplayName() != "{main}" {
		t.Errorf("Expected display name {main}, got %q", m.DisplayName())
	}
}
