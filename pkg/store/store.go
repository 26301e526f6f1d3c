// Package store defines the contract between the kvscope engine and an
// embedded key-value store. A store holds named collections of byte-string
// keys mapped to byte-string values, ordered by raw key bytes, and provides
// snapshot transactions: any number of concurrent readers and at most one
// writer per environment.
//
// The engine is written entirely against these interfaces so that it can run
// on the bolt-backed implementation in production and on the in-memory
// implementation in tests.
package store

// MainCollection is the name of the distinguished unnamed collection. It is
// guaranteed to exist once the engine has started.
const MainCollection = ""

// Env is an open store environment. It owns all collections and hands out
// transactions over them.
type Env interface {
	// Begin starts a new transaction. A writable transaction is exclusive
	// at the environment level; Begin blocks until any current writer
	// finishes. Read transactions see a consistent snapshot as of Begin.
	Begin(writable bool) (Txn, error)

	// Path returns the location the environment was opened from.
	Path() string

	// Close releases the environment. Outstanding transactions must be
	// finished first.
	Close() error
}

// Txn is a single store transaction. All collection handles obtained from a
// transaction are only valid until the transaction ends.
type Txn interface {
	// Writable reports whether this transaction may mutate the store.
	Writable() bool

	// Collection returns the named collection, or ok=false if it does not
	// exist under this transaction's snapshot. The empty name denotes the
	// main collection.
	Collection(name string) (Collection, bool)

	// CreateCollection opens the named collection, creating it if absent.
	// Requires a writable transaction.
	CreateCollection(name string) (Collection, error)

	// Collections lists the named collections visible to this transaction
	// in sorted order. The main collection is not included.
	Collections() []string

	// Commit durably applies the transaction's writes. Only valid for
	// writable transactions.
	Commit() error

	// Rollback discards the transaction. Safe to call on read transactions;
	// this is how they are released.
	Rollback() error
}

// Collection is an ordered key-value keyspace resolved under one transaction.
type Collection interface {
	// Get returns the value for key, or ok=false if the key is absent.
	// The returned slice is only valid until the transaction ends and must
	// not be modified.
	Get(key []byte) (value []byte, ok bool)

	// Put stores a key-value pair, replacing any existing value.
	Put(key, value []byte) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(key []byte) error

	// Count returns the number of entries visible to the transaction,
	// including uncommitted writes of the owning write transaction.
	Count() int

	// Cursor returns a forward cursor over the collection in key order.
	Cursor() Cursor
}

// Cursor iterates a collection in ascending raw-byte key order. Returned
// slices follow the same validity rule as Collection.Get.
type Cursor interface {
	// First positions at the first entry and returns it, or nil keys if
	// the collection is empty.
	First() (key, value []byte)

	// Next advances and returns the next entry, or nil keys when the
	// cursor is exhausted.
	Next() (key, value []byte)
}
