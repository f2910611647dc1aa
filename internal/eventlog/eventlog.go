// Package eventlog keeps a bounded, append-only, in-memory log of events.
// Once full, appending evicts the oldest entry. There is no deletion or
// update-in-place; survivors keep their insertion order.
package eventlog

import (
	"sync"

	"github.com/sweeney/jar-tracker/internal/logic"
)

// DefaultCapacity bounds the log when the configuration does not.
const DefaultCapacity = 500

// Log is a fixed-capacity FIFO of events. Append is called by the single
// writer; Recent may be called concurrently by any number of readers.
type Log struct {
	mu       sync.RWMutex
	buf      []logic.Event
	capacity int
	head     int // next write position
	count    int
}

// New creates a Log with the given capacity. Non-positive capacities fall
// back to DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf:      make([]logic.Event, capacity),
		capacity: capacity,
	}
}

// Append adds an event, evicting the oldest when full. O(1).
func (l *Log) Append(ev logic.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.head] = ev
	l.head = (l.head + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}
	// count stays at capacity once full: head just overwrote the oldest.
}

// Recent returns the last n events in chronological order, oldest first.
// n is clamped to the number of stored events.
func (l *Log) Recent(n int) []logic.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}
	if n > l.count {
		n = l.count
	}

	result := make([]logic.Event, n)
	// Oldest requested item is at (head - n) mod capacity.
	start := (l.head - n + l.capacity) % l.capacity
	for i := 0; i < n; i++ {
		result[i] = l.buf[(start+i)%l.capacity]
	}
	return result
}

// Len returns the number of stored events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
