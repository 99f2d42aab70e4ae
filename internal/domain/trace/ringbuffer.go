package trace

import (
	"slices"
	"sync"
)

const defaultCapacity = 100

// Query selects entries from a RingBuffer. Zero fields match everything.
type Query struct {
	// Limit caps the result to the newest matching entries.
	Limit      int
	MappingID  string
	FailedOnly bool
	// After skips entries with a sequence number at or below it, so a client
	// can poll for new runs.
	After uint64
}

func (q Query) match(e *Entry) bool {
	if e.Seq <= q.After {
		return false
	}
	if q.MappingID != "" && e.MappingID != q.MappingID {
		return false
	}
	return !q.FailedOnly || e.Failed()
}

// RingBuffer holds the most recent trace entries. Every added entry gets the
// next sequence number; slot seq%cap holds it until it is overwritten.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []Entry
	seq   uint64
	// base is the sequence number of the oldest entry still held, minus one.
	base uint64
}

// NewRingBuffer creates a buffer for up to capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RingBuffer{slots: make([]Entry, capacity)}
}

// Add stores e and returns its sequence number.
func (rb *RingBuffer) Add(e Entry) uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	e.Seq = rb.seq
	rb.slots[rb.seq%uint64(len(rb.slots))] = e
	if held := rb.seq - rb.base; held > uint64(len(rb.slots)) {
		rb.base = rb.seq - uint64(len(rb.slots))
	}
	return rb.seq
}

// Last returns the newest n entries, oldest first.
func (rb *RingBuffer) Last(n int) []Entry {
	return rb.Query(Query{Limit: n})
}

// Query returns the newest entries matching q, oldest first. A Limit of zero
// or less returns nil.
func (rb *RingBuffer) Query(q Query) []Entry {
	if q.Limit <= 0 {
		return nil
	}
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []Entry
	for s := rb.seq; s > rb.base && len(out) < q.Limit; s-- {
		e := &rb.slots[s%uint64(len(rb.slots))]
		if q.match(e) {
			out = append(out, *e)
		}
	}
	slices.Reverse(out)
	return out
}

// Clear drops all entries. Sequence numbers keep increasing.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.slots)
	rb.base = rb.seq
}

// Count returns the number of entries held.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(rb.seq - rb.base)
}

// Seq returns the sequence number of the newest entry, zero if none was added.
func (rb *RingBuffer) Seq() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.seq
}
