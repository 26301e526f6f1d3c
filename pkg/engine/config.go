package engine

import (
	"errors"
	"fmt"

	"github.com/kvscope/kvscope/pkg/common/log"
)

// ErrInvalidConfig is returned when a configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Backend selects the store implementation behind the engine.
type Backend string

const (
	// BackendBolt stores data in a bolt database file
	BackendBolt Backend = "bolt"
	// BackendMemory keeps data in memory, for tests and ephemeral browsing
	BackendMemory Backend = "memory"
)

// Config holds the engine configuration
type Config struct {
	// Path is the store file location; required for the bolt backend
	Path string

	// Backend selects the store implementation
	Backend Backend

	// MaxCollections bounds the number of named collections; zero means
	// unbounded
	MaxCollections int

	// ReadOnly opens the store without write access
	ReadOnly bool

	// NoSync disables fsync on commit for the bolt backend
	NoSync bool

	// PageSize is the default number of rows served per page request
	PageSize int

	// Logger receives engine logs; defaults to the package default logger
	Logger log.Logger
}

// NewDefaultConfig creates a Config with recommended default values. An
// empty path selects the in-memory backend.
func NewDefaultConfig(path string) Config {
	backend := BackendBolt
	if path == "" {
		backend = BackendMemory
	}
	return Config{
		Path:           path,
		Backend:        backend,
		MaxCollections: 1000,
		PageSize:       50,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBolt:
		if c.Path == "" {
			return fmt.Errorf("%w: bolt backend requires a path", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidConfig)
	}
	if c.MaxCollections < 0 {
		return fmt.Errorf("%w: max collections cannot be negative", ErrInvalidConfig)
	}
	return nil
}
