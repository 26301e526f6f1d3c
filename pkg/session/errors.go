package session

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when an operation that requires the write
// transaction is attempted while the session is Reading. The operation is
// rejected without touching the store.
var ErrInvalidState = errors.New("operation requires an active write transaction")

// StoreIOError wraps a failure reported by the underlying store. It is
// fatal to the operation that triggered it, but never to the session, which
// always falls back to a usable Reading state.
type StoreIOError struct {
	// Op names the store operation that failed
	Op string

	// Err is the underlying store error
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}
