// Package pager provides a resumable, forward-only iteration window over a
// collection, built for a table view that asks for the same screenful of
// rows on every render tick.
//
// The pager keeps the cursor from the previous call. When the next request
// continues exactly where the last one stopped, which is the dominant
// pattern while scrolling, the cursor is simply advanced, O(1) amortized
// per row. Any discontinuity, a jump, a new transaction, a different
// collection, discards the cursor and re-seeks from the first entry by
// skipping rows, O(start). Restarting the scan on every tick instead would
// cost O(n^2) over a full scroll of a large collection.
package pager

import (
	"github.com/kvscope/kvscope/pkg/registry"
	"github.com/kvscope/kvscope/pkg/stats"
	"github.com/kvscope/kvscope/pkg/store"
)

// Row is one raw key-value pair. Slices are copies owned by the caller.
type Row struct {
	Key   []byte
	Value []byte
}

// Pager is an iteration window over one collection. It is not safe for
// concurrent use; the engine serializes access to it.
type Pager struct {
	coll  registry.Collection
	stats *stats.Collector

	iter *rowIter
	gen  uint64
	last int
}

// New creates a pager over the given collection handle. Cursor reuse and
// re-seek events are tracked on collector; a nil collector gets a private
// one.
func New(coll registry.Collection, collector *stats.Collector) *Pager {
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &Pager{coll: coll, stats: collector, last: -1}
}

// Collection returns the handle the pager iterates.
func (p *Pager) Collection() registry.Collection {
	return p.coll
}

// Reset points the pager at a different collection and drops its cursor.
func (p *Pager) Reset(coll registry.Collection) {
	p.coll = coll
	p.Invalidate()
}

// Invalidate drops the retained cursor. The next request re-seeks. Callers
// invalidate after mutating the collection mid-transaction, since a live
// cursor may otherwise keep yielding the pre-mutation view.
func (p *Pager) Invalidate() {
	p.iter = nil
	p.last = -1
}

// Rows yields up to count rows starting at the zero-based row index start,
// in store key order, under the given transaction. gen must identify the
// transaction (see session.Generation); a change invalidates the retained
// cursor. The collection's total row count is re-derived on every call and
// returned alongside the rows; it may shrink between calls when rows are
// deleted inside the same write session. start at or past the total yields
// an empty page, not an error.
func (p *Pager) Rows(txn store.Txn, gen uint64, start, count int) ([]Row, int) {
	total := p.coll.Count(txn)
	if start < 0 || count <= 0 || start >= total {
		return nil, total
	}

	if p.iter != nil && gen == p.gen && start == p.last+1 {
		p.stats.TrackOperation(stats.OpCursorReuse)
	} else {
		cur, ok := p.coll.Cursor(txn)
		if !ok {
			return nil, 0
		}
		p.iter = &rowIter{cur: cur}
		p.gen = gen
		p.stats.TrackOperation(stats.OpCursorReseek)

		for i := 0; i < start; i++ {
			if _, _, ok := p.iter.next(); !ok {
				p.Invalidate()
				return nil, total
			}
		}
	}

	rows := make([]Row, 0, count)
	for len(rows) < count {
		k, v, ok := p.iter.next()
		if !ok {
			break
		}
		rows = append(rows, Row{Key: copyBytes(k), Value: copyBytes(v)})
	}

	p.last = start + len(rows) - 1
	return rows, total
}

// Reuses returns how many requests continued an existing cursor.
func (p *Pager) Reuses() uint64 {
	return p.stats.OpCount(stats.OpCursorReuse)
}

// Reseeks returns how many requests had to restart iteration from the
// first entry.
func (p *Pager) Reseeks() uint64 {
	return p.stats.OpCount(stats.OpCursorReseek)
}

// rowIter adapts a store cursor to a single next method, folding the
// First/Next split into the first invocation.
type rowIter struct {
	cur     store.Cursor
	started bool
}

func (it *rowIter) next() ([]byte, []byte, bool) {
	var k, v []byte
	if !it.started {
		it.started = true
		k, v = it.cur.First()
	} else {
		k, v = it.cur.Next()
	}
	if k == nil {
		return nil, nil, false
	}
	return k, v, true
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
