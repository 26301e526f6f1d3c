// Package registry resolves named collections inside a store environment
// and hands out cheap collection handles.
//
// A Collection handle only carries the collection's name. It is resolved
// against the caller's current transaction on every use, so a handle stays
// valid for the life of the environment and is never tied to the
// transaction it was obtained under.
package registry

import (
	"errors"
	"fmt"

	"github.com/kvscope/kvscope/pkg/store"
)

// ErrCollectionMissing is returned when a mutation targets a collection
// that does not exist under the current transaction, for example after the
// transaction that created it was aborted.
var ErrCollectionMissing = errors.New("collection does not exist under this transaction")

// Collection is a cheap, copyable handle naming one collection.
type Collection struct {
	name string
}

// Main returns the handle for the distinguished main collection, which the
// engine guarantees to exist.
func Main() Collection {
	return Collection{name: store.MainCollection}
}

// Open resolves an existing collection. ok is false when the named
// collection does not exist, which is a normal outcome, not an error; the
// caller decides whether to surface it.
func Open(txn store.Txn, name string) (Collection, bool) {
	if _, ok := txn.Collection(name); !ok {
		return Collection{}, false
	}
	return Collection{name: name}, true
}

// OpenOrCreate resolves a collection, creating it if absent. Creation
// mutates the store's own metadata, so a write transaction is required.
func OpenOrCreate(txn store.Txn, name string) (Collection, error) {
	if _, err := txn.CreateCollection(name); err != nil {
		return Collection{}, fmt.Errorf("failed to open or create collection %q: %w", name, err)
	}
	return Collection{name: name}, nil
}

// List returns the named collections visible to the transaction in sorted
// order, excluding the main collection.
func List(txn store.Txn) []string {
	return txn.Collections()
}

// Name returns the collection's name; empty for the main collection.
func (c Collection) Name() string {
	return c.name
}

// IsMain reports whether this is the main collection handle.
func (c Collection) IsMain() bool {
	return c.name == store.MainCollection
}

// DisplayName returns the name shown to users, with the main collection
// rendered as "{main}".
func (c Collection) DisplayName() string {
	if c.IsMain() {
		return "{main}"
	}
	return c.name
}

// Get returns the value for key under txn, or ok=false if either the
// collection or the key is absent.
func (c Collection) Get(txn store.Txn, key []byte) ([]byte, bool) {
	sc, ok := txn.Collection(c.name)
	if !ok {
		return nil, false
	}
	return sc.Get(key)
}

// Put stores a key-value pair under a write transaction.
func (c Collection) Put(txn store.Txn, key, value []byte) error {
	sc, ok := txn.Collection(c.name)
	if !ok {
		return ErrCollectionMissing
	}
	return sc.Put(key, value)
}

// Delete removes a key under a write transaction. Deleting an absent key
// is a no-op.
func (c Collection) Delete(txn store.Txn, key []byte) error {
	sc, ok := txn.Collection(c.name)
	if !ok {
		return ErrCollectionMissing
	}
	return sc.Delete(key)
}

// Count returns the number of entries visible to txn, or zero if the
// collection does not exist under it.
func (c Collection) Count(txn store.Txn) int {
	sc, ok := txn.Collection(c.name)
	if !ok {
		return 0
	}
	return sc.Count()
}

// Cursor returns a forward cursor over the collection under txn, or
// ok=false if the collection does not exist under it.
func (c Collection) Cursor(txn store.Txn) (store.Cursor, bool) {
	sc, ok := txn.Collection(c.name)
	if !ok {
		return nil, false
	}
	return sc.Cursor(), true
}
