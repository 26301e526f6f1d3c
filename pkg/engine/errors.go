package engine

import "errors"

var (
	// ErrEngineClosed is returned when operations are performed on a closed engine
	ErrEngineClosed = errors.New("engine is closed")

	// ErrReadOnly is returned when a write session is requested on a
	// read-only engine
	ErrReadOnly = errors.New("engine is read-only")
)
