// Package stats collects operation counters for the kvscope engine with
// minimal contention, using atomic values.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Common operation types
const (
	OpRows         OperationType = "rows"
	OpGet          OperationType = "get"
	OpPut          OperationType = "put"
	OpDelete       OperationType = "delete"
	OpBeginWrite   OperationType = "begin_write"
	OpCommit       OperationType = "commit"
	OpAbort        OperationType = "abort"
	OpCursorReuse  OperationType = "cursor_reuse"
	OpCursorReseek OperationType = "cursor_reseek"
	OpDump         OperationType = "dump"
	OpLoad         OperationType = "load"
)

// Provider is implemented by components that expose statistics.
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}
}

// Collector provides centralized statistics collection.
type Collector struct {
	// Operation counters using atomic values
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex // Only used when creating new counter entries

	// Timing measurements for last operation timestamps
	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	// Error tracking
	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *Collector) TrackOperation(op OperationType) {
	c.TrackOperationN(op, 1)
}

// TrackOperationN adds n to the counter for the specified operation type
func (c *Collector) TrackOperationN(op OperationType, n uint64) {
	counter := c.getOrCreateCounter(op)
	counter.Add(n)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackError increments the counter for the specified error type
func (c *Collector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// OpCount returns the current count for one operation type
func (c *Collector) OpCount(op OperationType) uint64 {
	c.countsMu.RLock()
	defer c.countsMu.RUnlock()

	if counter, exists := c.counts[op]; exists {
		return counter.Load()
	}
	return 0
}

// GetStats returns all statistics as a flat map
func (c *Collector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, ts := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = ts.Format(time.RFC3339)
	}
	c.lastOpTimeMu.RUnlock()

	c.errorsMu.RLock()
	for errType, counter := range c.errors {
		stats["error_"+errType] = counter.Load()
	}
	c.errorsMu.RUnlock()

	return stats
}

func (c *Collector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}
