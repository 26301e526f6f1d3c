// Package session holds the single active store transaction behind the
// kvscope engine and the rules for moving between its two states.
//
// A session is always in exactly one of two states: Reading, holding an open
// read transaction, or Writing, holding the environment-exclusive write
// transaction. There is deliberately no empty state; the resting state is
// Reading with a fresh snapshot, so a caller always has a consistent view to
// render even before any write is requested.
package session

import (
	"sync"

	"github.com/kvscope/kvscope/pkg/common/log"
	"github.com/kvscope/kvscope/pkg/store"
)

// Mode identifies which kind of transaction the session holds.
type Mode int

const (
	// ModeReading means the session holds a read-only snapshot
	ModeReading Mode = iota
	// ModeWriting means the session holds the exclusive write transaction
	ModeWriting
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeReading:
		return "reading"
	case ModeWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// Session is the transaction state machine. Transitions are serialized by an
// internal mutex so a multi-threaded caller cannot end up holding two
// transactions at once, which the store treats as undefined behavior.
type Session struct {
	mu   sync.Mutex
	env  store.Env
	mode Mode
	txn  store.Txn
	gen  uint64
	log  log.Logger
}

// New opens a session in the Reading state with a fresh read transaction.
func New(env store.Env, logger log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	txn, err := env.Begin(false)
	if err != nil {
		return nil, &StoreIOError{Op: "begin read transaction", Err: err}
	}

	return &Session{
		env:  env,
		mode: ModeReading,
		txn:  txn,
		gen:  1,
		log:  logger,
	}, nil
}

// Mode returns the current state.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Txn returns the active transaction, never nil. The returned transaction
// is only writable when Mode is ModeWriting.
func (s *Session) Txn() store.Txn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

// Generation returns a counter that increments every time the held
// transaction changes identity. Cursors key their validity off it.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// BeginWrite moves the session from Reading to Writing. The held read
// transaction is released, never committed. If the session is already
// Writing the request is ignored rather than queued, so an interactive
// caller can never deadlock against itself.
func (s *Session) BeginWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeWriting {
		s.log.Debug("begin write ignored, write transaction already active")
		return nil
	}

	// Release the read snapshot before requesting the exclusive writer.
	if err := s.txn.Rollback(); err != nil {
		s.log.Warn("failed to release read transaction: %v", err)
	}
	s.txn = nil

	wtxn, err := s.env.Begin(true)
	if err != nil {
		// Fall back to a fresh read transaction so the session stays
		// usable.
		if rerr := s.openRead(); rerr != nil {
			return rerr
		}
		return &StoreIOError{Op: "begin write transaction", Err: err}
	}

	s.txn = wtxn
	s.mode = ModeWriting
	s.gen++
	s.log.Debug("write transaction started")
	return nil
}

// Commit durably applies the write transaction and returns the session to
// Reading with a brand-new read transaction, so subsequent reads observe the
// just-committed state. A storage failure is returned as a *StoreIOError,
// but the session still re-enters Reading.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeWriting {
		return ErrInvalidState
	}

	err := s.txn.Commit()
	s.txn = nil

	if rerr := s.openRead(); rerr != nil {
		if err != nil {
			s.log.Error("commit failed and no read transaction could be opened: %v", err)
		}
		return rerr
	}

	if err != nil {
		return &StoreIOError{Op: "commit", Err: err}
	}
	s.log.Debug("write transaction committed")
	return nil
}

// Abort discards the write transaction and returns the session to Reading
// with a fresh read transaction.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeWriting {
		return ErrInvalidState
	}

	if err := s.txn.Rollback(); err != nil {
		s.log.Warn("failed to roll back write transaction: %v", err)
	}
	s.txn = nil

	if err := s.openRead(); err != nil {
		return err
	}
	s.log.Debug("write transaction aborted")
	return nil
}

// openRead installs a fresh read transaction. Callers must hold s.mu.
func (s *Session) openRead() error {
	txn, err := s.env.Begin(false)
	if err != nil {
		// The store is broken at this point. Record the Reading state
		// anyway, holding a dead placeholder transaction so consumers
		// fail cleanly instead of dereferencing nil; the next successful
		// transition replaces it.
		ioErr := &StoreIOError{Op: "begin read transaction", Err: err}
		s.txn = deadTxn{err: ioErr}
		s.mode = ModeReading
		s.gen++
		return ioErr
	}
	s.txn = txn
	s.mode = ModeReading
	s.gen++
	return nil
}

// deadTxn stands in when no real transaction could be opened. Reads resolve
// to nothing and mutations fail with the error that broke the session, so
// the two-state invariant holds even while the store is unreachable.
type deadTxn struct {
	err error
}

func (t deadTxn) Writable() bool                                    { return false }
func (t deadTxn) Collection(string) (store.Collection, bool)        { return nil, false }
func (t deadTxn) CreateCollection(string) (store.Collection, error) { return nil, t.err }
func (t deadTxn) Collections() []string                             { return nil }
func (t deadTxn) Commit() error                                     { return t.err }
func (t deadTxn) Rollback() error                                   { return nil }

// Close releases whatever transaction the session holds.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txn == nil {
		return nil
	}
	err := s.txn.Rollback()
	s.txn = nil
	return err
}
