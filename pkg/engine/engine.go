// Package engine is the facade tying the kvscope subsystems together: the
// store environment, the transaction session, collection handles, the paged
// row cursor, and the pending-entry buffer. A presentation layer (the CLI,
// or any other front end) drives it with intents and renders the views it
// returns; the engine itself never blocks beyond the store's own
// synchronous commit.
//
// The error policy follows three classes. Codec failures and
// wrong-state mutations are recovered here and reported as status; the
// pending entry stays intact so the user can correct it. Store I/O failures
// are fatal to the operation that hit them, never to the engine, which
// always falls back to a fresh read snapshot. An absent collection or an
// absent delete key is not an error at all.
package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kvscope/kvscope/pkg/codec"
	"github.com/kvscope/kvscope/pkg/common/log"
	"github.com/kvscope/kvscope/pkg/dump"
	"github.com/kvscope/kvscope/pkg/editbuf"
	"github.com/kvscope/kvscope/pkg/pager"
	"github.com/kvscope/kvscope/pkg/registry"
	"github.com/kvscope/kvscope/pkg/session"
	"github.com/kvscope/kvscope/pkg/stats"
	"github.com/kvscope/kvscope/pkg/store"
	boltstore "github.com/kvscope/kvscope/pkg/store/bolt"
	"github.com/kvscope/kvscope/pkg/store/memstore"
)

// Row is one key-value pair in escaped text form, ready for display.
type Row struct {
	Key   string
	Value string
}

// View is the rendering snapshot returned to the presentation layer.
type View struct {
	// Rows are the requested rows in store order, codec-encoded
	Rows []Row

	// Total is the collection's row count under the current transaction
	Total int

	// Mode is the session state the view was produced under
	Mode session.Mode

	// LastErr is the most recent operation error, nil after a clean
	// operation
	LastErr error
}

// Engine arbitrates access to one store environment. Methods are
// serialized by an internal mutex; within one goroutine it behaves as the
// single-threaded cooperative core it was designed as.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	env     store.Env
	sess    *session.Session
	current registry.Collection
	pg      *pager.Pager
	entry   editbuf.Buffer
	stats   *stats.Collector
	log     log.Logger

	lastErr error
	closed  bool
}

// Engine exposes its counters through the shared stats contract.
var _ stats.Provider = (*Engine)(nil)

// New opens the configured store environment and starts an engine over it.
// The session comes up in the Reading state, and the main collection is
// created if missing, so the caller immediately has something to render.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithField("component", "engine")

	env, err := openEnv(cfg)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(env, logger)
	if err != nil {
		env.Close()
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		env:     env,
		sess:    sess,
		current: registry.Main(),
		stats:   stats.NewCollector(),
		log:     logger,
	}
	e.pg = pager.New(e.current, e.stats)

	if err := e.ensureMain(); err != nil {
		sess.Close()
		env.Close()
		return nil, err
	}

	logger.Info("engine started on %s", env.Path())
	return e, nil
}

func openEnv(cfg Config) (store.Env, error) {
	switch cfg.Backend {
	case BackendMemory:
		return memstore.New(memstore.WithMaxCollections(cfg.MaxCollections)), nil
	case BackendBolt:
		options := []boltstore.Option{boltstore.WithMaxCollections(cfg.MaxCollections)}
		if cfg.ReadOnly {
			options = append(options, boltstore.WithReadOnly())
		}
		if cfg.NoSync {
			options = append(options, boltstore.WithNoSync())
		}
		return boltstore.Open(cfg.Path, options...)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

// ensureMain guarantees the main collection exists by creating it under a
// short-lived write session at start-up.
func (e *Engine) ensureMain() error {
	if e.cfg.ReadOnly {
		return nil
	}
	if _, ok := registry.Open(e.sess.Txn(), store.MainCollection); ok {
		return nil
	}

	if err := e.sess.BeginWrite(); err != nil {
		return err
	}
	if _, err := registry.OpenOrCreate(e.sess.Txn(), store.MainCollection); err != nil {
		e.sess.Abort()
		return err
	}
	return e.sess.Commit()
}

// Mode returns the session state.
func (e *Engine) Mode() session.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Mode()
}

// Path returns the store environment's location.
func (e *Engine) Path() string {
	return e.env.Path()
}

// CollectionName returns the display name of the selected collection.
func (e *Engine) CollectionName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.DisplayName()
}

// Collections lists the named collections visible to the current
// transaction.
func (e *Engine) Collections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return registry.List(e.sess.Txn())
}

// SelectCollection switches the engine to the named collection. found is
// false when no such collection exists under the current snapshot, which is
// a normal outcome; the previous selection stays in place.
func (e *Engine) SelectCollection(name string) (found bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrEngineClosed
	}
	e.lastErr = nil

	coll, ok := registry.Open(e.sess.Txn(), name)
	if !ok {
		e.log.Debug("collection %q not found", name)
		return false, nil
	}
	e.current = coll
	e.pg.Reset(coll)
	e.log.Debug("selected collection %s", coll.DisplayName())
	return true, nil
}

// CreateCollection creates (or opens) the named collection and selects it.
// Creation mutates store metadata, so the session must be Writing.
func (e *Engine) CreateCollection(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.lastErr = nil

	if e.sess.Mode() != session.ModeWriting {
		return e.fail(session.ErrInvalidState)
	}
	coll, err := registry.OpenOrCreate(e.sess.Txn(), name)
	if err != nil {
		return e.fail(err)
	}
	e.current = coll
	e.pg.Reset(coll)
	return nil
}

// BeginWrite upgrades the session to the exclusive write transaction. A
// repeated request while already Writing is ignored.
func (e *Engine) BeginWrite() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.lastErr = nil

	if e.cfg.ReadOnly {
		return e.fail(ErrReadOnly)
	}
	if err := e.sess.BeginWrite(); err != nil {
		return e.fail(err)
	}
	e.stats.TrackOperation(stats.OpBeginWrite)
	return nil
}

// Commit durably applies the write session and drops back to Reading over
// a fresh snapshot.
func (e *Engine) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.lastErr = nil

	if err := e.sess.Commit(); err != nil {
		if !errors.Is(err, session.ErrInvalidState) {
			e.stats.TrackError("commit")
		}
		return e.fail(err)
	}
	e.stats.TrackOperation(stats.OpCommit)
	return nil
}

// Abort discards the write session and drops back to Reading over a fresh
// snapshot.
func (e *Engine) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.lastErr = nil

	if err := e.sess.Abort(); err != nil {
		return e.fail(err)
	}
	e.stats.TrackOperation(stats.OpAbort)
	return nil
}

// StageEdit overwrites the pending entry with escaped key and value text,
// typically copied from an existing row the user wants to modify.
func (e *Engine) StageEdit(keyText, valueText string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entry.Stage(keyText, valueText)
}

// Entry returns the pending entry's text and whether one is staged.
func (e *Engine) Entry() (keyText, valueText string, staged bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entry.KeyText(), e.entry.ValueText(), e.entry.Staged()
}

// Insert decodes the pending entry and puts it into the selected
// collection under the active write transaction. A decode failure or a
// Reading-state session rejects the operation without touching the store
// and leaves the entry staged; on success the entry is cleared.
func (e *Engine) Insert() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.lastErr = nil

	key, err := e.entry.DecodedKey()
	if err != nil {
		e.stats.TrackError("decode")
		return e.fail(err)
	}
	value, err := e.entry.DecodedValue()
	if err != nil {
		e.stats.TrackError("decode")
		return e.fail(err)
	}
	if e.sess.Mode() != session.ModeWriting {
		e.stats.TrackError("invalid_state")
		return e.fail(session.ErrInvalidState)
	}

	if err := e.current.Put(e.sess.Txn(), key, value); err != nil {
		return e.fail(err)
	}
	e.entry.Clear()
	e.pg.Invalidate()
	e.stats.TrackOperation(stats.OpPut)
	return nil
}

// Delete decodes the pending entry's key and removes it from the selected
// collection under the active write transaction. Deleting an absent key
// succeeds as a no-op.
func (e *Engine) Delete() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.lastErr = nil

	key, err := e.entry.DecodedKey()
	if err != nil {
		e.stats.TrackError("decode")
		return e.fail(err)
	}
	if e.sess.Mode() != session.ModeWriting {
		e.stats.TrackError("invalid_state")
		return e.fail(session.ErrInvalidState)
	}

	if err := e.current.Delete(e.sess.Txn(), key); err != nil {
		return e.fail(err)
	}
	e.entry.Clear()
	e.pg.Invalidate()
	e.stats.TrackOperation(stats.OpDelete)
	return nil
}

// Get looks up one key, given in escaped text form, and returns its value
// encoded for display.
func (e *Engine) Get(keyText string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", false, ErrEngineClosed
	}

	key, err := codec.Decode(keyText)
	if err != nil {
		e.stats.TrackError("decode")
		return "", false, err
	}
	value, ok := e.current.Get(e.sess.Txn(), key)
	e.stats.TrackOperation(stats.OpGet)
	if !ok {
		return "", false, nil
	}
	return codec.Encode(value), true, nil
}

// Rows serves up to count rows starting at the zero-based index start from
// the selected collection, encoded for display. count <= 0 selects the
// configured page size. The returned view also carries the collection's
// total row count, the session mode, and the most recent operation error.
func (e *Engine) Rows(start, count int) View {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return View{LastErr: ErrEngineClosed}
	}

	if count <= 0 {
		count = e.cfg.PageSize
	}

	raw, total := e.pg.Rows(e.sess.Txn(), e.sess.Generation(), start, count)
	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = Row{Key: codec.Encode(r.Key), Value: codec.Encode(r.Value)}
	}
	e.stats.TrackOperationN(stats.OpRows, uint64(len(rows)))

	return View{
		Rows:    rows,
		Total:   total,
		Mode:    e.sess.Mode(),
		LastErr: e.lastErr,
	}
}

// Dump exports the selected collection to w under the current snapshot.
func (e *Engine) Dump(w io.Writer, c dump.Codec) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrEngineClosed
	}
	e.lastErr = nil

	n, err := dump.Write(w, e.sess.Txn(), e.current, c)
	if err != nil {
		return n, e.fail(err)
	}
	e.stats.TrackOperation(stats.OpDump)
	return n, nil
}

// Load imports a dump through the active write transaction, creating its
// target collection if absent. The import is only durable once the caller
// commits.
func (e *Engine) Load(r io.Reader) (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", 0, ErrEngineClosed
	}
	e.lastErr = nil

	if e.sess.Mode() != session.ModeWriting {
		e.stats.TrackError("invalid_state")
		return "", 0, e.fail(session.ErrInvalidState)
	}

	name, n, err := dump.Read(r, e.sess.Txn())
	if err != nil {
		return name, n, e.fail(err)
	}
	e.pg.Invalidate()
	e.stats.TrackOperation(stats.OpLoad)
	return name, n, nil
}

// GetStats returns the engine's operation counters, cursor reuse/reseek
// counts included, plus session details.
func (e *Engine) GetStats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.stats.GetStats()
	out["collection"] = e.current.DisplayName()
	out["mode"] = e.sess.Mode().String()
	out["path"] = e.env.Path()
	return out
}

// Close releases the session and the store environment. Any uncommitted
// write session is discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.sess.Close(); err != nil {
		e.log.Warn("failed to close session: %v", err)
	}
	err := e.env.Close()
	e.log.Info("engine closed")
	return err
}

// fail records err as the view-visible last error and returns it.
func (e *Engine) fail(err error) error {
	e.lastErr = err
	return err
}
