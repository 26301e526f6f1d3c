package store

import "errors"

// Common errors returned by store implementations
var (
	// ErrReadOnlyTxn is returned when a write operation is attempted on a
	// read-only transaction
	ErrReadOnlyTxn = errors.New("cannot write in a read-only transaction")

	// ErrTxnClosed is returned when an operation is attempted on a
	// transaction that has already been committed or rolled back
	ErrTxnClosed = errors.New("transaction already committed or rolled back")

	// ErrEnvClosed is returned when a transaction is requested from a
	// closed environment
	ErrEnvClosed = errors.New("environment is closed")

	// ErrCollectionLimit is returned when creating a collection would
	// exceed the environment's configured maximum
	ErrCollectionLimit = errors.New("collection limit reached")

	// ErrInvalidName is returned for collection names the store cannot
	// represent
	ErrInvalidName = errors.New("invalid collection name")
)
