// Package progress tracks the fractional completion of in-flight work items.
package progress

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Entry is a point-in-time view of one in-flight item.
type Entry[T comparable] struct {
	Item    T
	Percent float64
}

// Sink is the handle a worker callback uses to report progress for one item.
type Sink struct {
	bits atomic.Uint64
	seq  uint64
}

// Report overwrites the stored percentage. Values are not required to be
// monotonic.
func (s *Sink) Report(percent float64) {
	if s == nil {
		return
	}
	s.bits.Store(math.Float64bits(percent))
}

// Percent returns the last reported value.
func (s *Sink) Percent() float64 {
	if s == nil {
		return 0
	}
	return math.Float64frombits(s.bits.Load())
}

// Tracker maps in-flight items to their progress sinks.
type Tracker[T comparable] struct {
	mu      sync.RWMutex
	entries map[T]*Sink
	seq     uint64
}

// NewTracker creates an empty tracker.
func NewTracker[T comparable]() *Tracker[T] {
	return &Tracker[T]{entries: make(map[T]*Sink)}
}

// Track registers item at 0% and returns its sink. Tracking an item that is
// already present replaces the previous entry.
func (t *Tracker[T]) Track(item T) *Sink {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	sink := &Sink{seq: t.seq}
	t.entries[item] = sink
	return sink
}

// Untrack removes item.
func (t *Tracker[T]) Untrack(item T) {
	t.mu.Lock()
	delete(t.entries, item)
	t.mu.Unlock()
}

// Get returns the sink for item, if tracked.
func (t *Tracker[T]) Get(item T) (*Sink, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sink, ok := t.entries[item]
	return sink, ok
}

// Len returns the number of in-flight items.
func (t *Tracker[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns all entries in the order they were tracked.
func (t *Tracker[T]) Snapshot() []Entry[T] {
	type ordered struct {
		entry Entry[T]
		seq   uint64
	}

	t.mu.RLock()
	list := make([]ordered, 0, len(t.entries))
	for item, sink := range t.entries {
		list = append(list, ordered{
			entry: Entry[T]{Item: item, Percent: sink.Percent()},
			seq:   sink.seq,
		})
	}
	t.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]Entry[T], len(list))
	for i, o := range list {
		out[i] = o.entry
	}
	return out
}
