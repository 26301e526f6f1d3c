// Package memstore is an in-memory implementation of the store contract.
// It provides the same semantics as the on-disk backend, snapshot reads and
// a single exclusive writer, which makes it useful both for tests and for
// browsing ephemeral data without touching disk.
package memstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/kvscope/kvscope/pkg/store"
)

// DB is an in-memory store environment.
type DB struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	writer bool

	// colls maps collection name to its committed entries. The outer map
	// and every inner map are replaced wholesale on commit, never mutated
	// in place, so read transactions can hold them as snapshots.
	colls map[string]map[string][]byte

	maxCollections int
}

// Option configures a DB
type Option func(*DB)

// WithMaxCollections bounds the number of named collections that may be
// created. Zero means unbounded.
func WithMaxCollections(n int) Option {
	return func(db *DB) {
		db.maxCollections = n
	}
}

// New creates an empty in-memory environment.
func New(options ...Option) *DB {
	db := &DB{
		colls: make(map[string]map[string][]byte),
	}
	db.cond = sync.NewCond(&db.mu)
	for _, option := range options {
		option(db)
	}
	return db
}

// Begin starts a transaction. A writable transaction blocks until any
// current writer commits or rolls back.
func (db *DB) Begin(writable bool) (store.Txn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, store.ErrEnvClosed
	}

	if writable {
		for db.writer {
			db.cond.Wait()
			if db.closed {
				return nil, store.ErrEnvClosed
			}
		}
		db.writer = true
		return &txn{db: db, writable: true, base: db.colls, dirty: make(map[string]map[string][]byte)}, nil
	}

	return &txn{db: db, base: db.colls}, nil
}

// Path identifies the environment; memory environments have no backing file.
func (db *DB) Path() string {
	return ":memory:"
}

// Close releases the environment.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	db.cond.Broadcast()
	return nil
}

type txn struct {
	db       *DB
	writable bool
	closed   bool

	// base is the committed snapshot taken at Begin.
	base map[string]map[string][]byte

	// dirty holds copy-on-write clones of collections this write
	// transaction has touched or created, keyed by name.
	dirty map[string]map[string][]byte
}

func (t *txn) Writable() bool {
	return t.writable
}

// lookup resolves a collection to its entry map under this transaction.
func (t *txn) lookup(name string) (map[string][]byte, bool) {
	if t.writable {
		if m, ok := t.dirty[name]; ok {
			return m, true
		}
	}
	m, ok := t.base[name]
	return m, ok
}

// mutable returns the copy-on-write clone for name, cloning from the base
// snapshot on first touch.
func (t *txn) mutable(name string) (map[string][]byte, bool) {
	if m, ok := t.dirty[name]; ok {
		return m, true
	}
	base, ok := t.base[name]
	if !ok {
		return nil, false
	}
	clone := make(map[string][]byte, len(base))
	for k, v := range base {
		clone[k] = v
	}
	t.dirty[name] = clone
	return clone, true
}

func (t *txn) Collection(name string) (store.Collection, bool) {
	if t.closed {
		return nil, false
	}
	if _, ok := t.lookup(name); !ok {
		return nil, false
	}
	return &coll{txn: t, name: name}, true
}

func (t *txn) CreateCollection(name string) (store.Collection, error) {
	if t.closed {
		return nil, store.ErrTxnClosed
	}
	if !t.writable {
		return nil, store.ErrReadOnlyTxn
	}
	if strings.ContainsRune(name, 0) {
		return nil, store.ErrInvalidName
	}

	if _, ok := t.lookup(name); !ok {
		if name != store.MainCollection && t.db.maxCollections > 0 &&
			t.namedCount() >= t.db.maxCollections {
			return nil, store.ErrCollectionLimit
		}
		t.dirty[name] = make(map[string][]byte)
	}
	return &coll{txn: t, name: name}, nil
}

func (t *txn) namedCount() int {
	seen := make(map[string]struct{})
	for name := range t.base {
		seen[name] = struct{}{}
	}
	for name := range t.dirty {
		seen[name] = struct{}{}
	}
	delete(seen, store.MainCollection)
	return len(seen)
}

func (t *txn) Collections() []string {
	names := make([]string, 0)
	seen := make(map[string]struct{})
	for name := range t.base {
		seen[name] = struct{}{}
	}
	if t.writable {
		for name := range t.dirty {
			seen[name] = struct{}{}
		}
	}
	for name := range seen {
		if name != store.MainCollection {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (t *txn) Commit() error {
	if t.closed {
		return store.ErrTxnClosed
	}
	if !t.writable {
		return store.ErrReadOnlyTxn
	}
	t.closed = true

	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	// Publish a fresh outer map so readers holding the old one are
	// untouched.
	next := make(map[string]map[string][]byte, len(t.db.colls)+len(t.dirty))
	for name, m := range t.db.colls {
		next[name] = m
	}
	for name, m := range t.dirty {
		next[name] = m
	}
	t.db.colls = next

	t.db.writer = false
	t.db.cond.Broadcast()
	return nil
}

func (t *txn) Rollback() error {
	if t.closed {
		return store.ErrTxnClosed
	}
	t.closed = true

	if t.writable {
		t.db.mu.Lock()
		t.db.writer = false
		t.db.cond.Broadcast()
		t.db.mu.Unlock()
	}
	return nil
}

type coll struct {
	txn  *txn
	name string
}

func (c *coll) Get(key []byte) ([]byte, bool) {
	m, ok := c.txn.lookup(c.name)
	if !ok {
		return nil, false
	}
	v, ok := m[string(key)]
	return v, ok
}

func (c *coll) Put(key, value []byte) error {
	if c.txn.closed {
		return store.ErrTxnClosed
	}
	if !c.txn.writable {
		return store.ErrReadOnlyTxn
	}
	m, ok := c.txn.mutable(c.name)
	if !ok {
		return store.ErrInvalidName
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	m[string(key)] = valueCopy
	return nil
}

func (c *coll) Delete(key []byte) error {
	if c.txn.closed {
		return store.ErrTxnClosed
	}
	if !c.txn.writable {
		return store.ErrReadOnlyTxn
	}
	m, ok := c.txn.mutable(c.name)
	if !ok {
		return store.ErrInvalidName
	}
	delete(m, string(key))
	return nil
}

func (c *coll) Count() int {
	m, ok := c.txn.lookup(c.name)
	if !ok {
		return 0
	}
	return len(m)
}

// Cursor snapshots the sorted key list at creation time. Go map iteration
// order is random, and string comparison on raw bytes matches the store's
// lexicographic key order.
func (c *coll) Cursor() store.Cursor {
	m, _ := c.txn.lookup(c.name)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &cursor{entries: m, keys: keys, pos: -1}
}

type cursor struct {
	entries map[string][]byte
	keys    []string
	pos     int
}

func (cu *cursor) First() ([]byte, []byte) {
	cu.pos = 0
	return cu.current()
}

func (cu *cursor) Next() ([]byte, []byte) {
	if cu.pos < 0 {
		return cu.First()
	}
	cu.pos++
	return cu.current()
}

func (cu *cursor) current() ([]byte, []byte) {
	if cu.pos >= len(cu.keys) {
		return nil, nil
	}
	k := cu.keys[cu.pos]
	return []byte(k), cu.entries[k]
}
