// Package bolt implements the store contract on top of go.etcd.io/bbolt.
// The environment is a single bolt database file; each collection is a
// top-level bucket. The main (unnamed) collection lives in a reserved
// bucket whose name cannot collide with user collection names because
// user names may not contain NUL bytes.
package bolt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	bbolt "go.etcd.io/bbolt"

	"github.com/kvscope/kvscope/pkg/store"
)

// mainBucket is the reserved bucket backing the main collection.
var mainBucket = []byte("\x00main")

// Env is a bolt-backed store environment.
type Env struct {
	db             *bbolt.DB
	maxCollections int
}

// Option configures an Env at open time
type Option func(*config)

type config struct {
	readOnly       bool
	noSync         bool
	maxCollections int
}

// WithMaxCollections bounds the number of named collections that may be
// created. Zero means unbounded.
func WithMaxCollections(n int) Option {
	return func(c *config) {
		c.maxCollections = n
	}
}

// WithReadOnly opens the environment without write access.
func WithReadOnly() Option {
	return func(c *config) {
		c.readOnly = true
	}
}

// WithNoSync disables fsync on commit. Faster, but a crash can lose the
// most recent commits.
func WithNoSync() Option {
	return func(c *config) {
		c.noSync = true
	}
}

// Open opens or creates the bolt database at path.
func Open(path string, options ...Option) (*Env, error) {
	var cfg config
	for _, option := range options {
		option(&cfg)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		ReadOnly: cfg.readOnly,
		NoSync:   cfg.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database at %s: %w", path, err)
	}

	return &Env{db: db, maxCollections: cfg.maxCollections}, nil
}

// Begin starts a transaction. Writable transactions are exclusive; Begin
// blocks until any current writer finishes.
func (e *Env) Begin(writable bool) (store.Txn, error) {
	tx, err := e.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &txn{env: e, tx: tx, counts: make(map[string]int)}, nil
}

// Path returns the database file path.
func (e *Env) Path() string {
	return e.db.Path()
}

// Close releases the environment.
func (e *Env) Close() error {
	return e.db.Close()
}

// bucketName maps a collection name to its bucket name. The empty name is
// the main collection.
func bucketName(name string) ([]byte, error) {
	if name == store.MainCollection {
		return mainBucket, nil
	}
	if strings.ContainsRune(name, 0) {
		return nil, store.ErrInvalidName
	}
	return []byte(name), nil
}

type txn struct {
	env *Env
	tx  *bbolt.Tx

	// counts caches entry counts per collection name for this
	// transaction. Bucket stats do not see uncommitted writes, so write
	// transactions count by walking once and then track deltas on every
	// mutation.
	counts map[string]int
}

func (t *txn) Writable() bool {
	return t.tx.Writable()
}

func (t *txn) Collection(name string) (store.Collection, bool) {
	bname, err := bucketName(name)
	if err != nil {
		return nil, false
	}
	b := t.tx.Bucket(bname)
	if b == nil {
		return nil, false
	}
	return &coll{txn: t, name: name, b: b}, true
}

func (t *txn) CreateCollection(name string) (store.Collection, error) {
	if !t.tx.Writable() {
		return nil, store.ErrReadOnlyTxn
	}
	bname, err := bucketName(name)
	if err != nil {
		return nil, err
	}

	if name != store.MainCollection && t.tx.Bucket(bname) == nil &&
		t.env.maxCollections > 0 && len(t.Collections()) >= t.env.maxCollections {
		return nil, store.ErrCollectionLimit
	}

	b, err := t.tx.CreateBucketIfNotExists(bname)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return &coll{txn: t, name: name, b: b}, nil
}

func (t *txn) Collections() []string {
	var names []string
	err := t.tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		if len(name) > 0 && name[0] != 0 {
			names = append(names, string(name))
		}
		return nil
	})
	if err != nil {
		// Only a closed transaction can fail the walk; report nothing
		// rather than a partial listing.
		return nil
	}
	sort.Strings(names)
	return names
}

func (t *txn) Commit() error {
	return t.tx.Commit()
}

func (t *txn) Rollback() error {
	return t.tx.Rollback()
}

type coll struct {
	txn  *txn
	name string
	b    *bbolt.Bucket
}

// exists reports key presence without relying on Get, which cannot tell an
// absent key from an empty value.
func (c *coll) exists(key []byte) bool {
	k, _ := c.b.Cursor().Seek(key)
	return k != nil && bytes.Equal(k, key)
}

func (c *coll) Get(key []byte) ([]byte, bool) {
	v := c.b.Get(key)
	if v == nil {
		if c.exists(key) {
			return []byte{}, true
		}
		return nil, false
	}
	return v, true
}

func (c *coll) Put(key, value []byte) error {
	if !c.txn.tx.Writable() {
		return store.ErrReadOnlyTxn
	}
	fresh := !c.exists(key)
	if err := c.b.Put(key, value); err != nil {
		return err
	}
	if fresh {
		c.txn.bumpCount(c.name, 1)
	}
	return nil
}

func (c *coll) Delete(key []byte) error {
	if !c.txn.tx.Writable() {
		return store.ErrReadOnlyTxn
	}
	if !c.exists(key) {
		return nil
	}
	if err := c.b.Delete(key); err != nil {
		return err
	}
	c.txn.bumpCount(c.name, -1)
	return nil
}

func (c *coll) Count() int {
	if n, ok := c.txn.counts[c.name]; ok {
		return n
	}

	var n int
	if c.txn.tx.Writable() {
		cur := c.b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			n++
		}
	} else {
		n = c.b.Stats().KeyN
	}
	c.txn.counts[c.name] = n
	return n
}

func (c *coll) Cursor() store.Cursor {
	return &cursor{c: c.b.Cursor()}
}

func (t *txn) bumpCount(name string, delta int) {
	if n, ok := t.counts[name]; ok {
		t.counts[name] = n + delta
	}
}

type cursor struct {
	c *bbolt.Cursor
}

func (cu *cursor) First() ([]byte, []byte) {
	return cu.c.First()
}

func (cu *cursor) Next() ([]byte, []byte) {
	return cu.c.Next()
}
