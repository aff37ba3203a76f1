package qdispatch

import (
	"sync"

	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qevent"
)

// stagingItem is one entry in a priority ring: the event, the AO it is
// ultimately headed for, and the timestamp it was staged at.
type stagingItem struct {
	evt       *qevent.Event
	target    *qactive.Active
	timestamp int64
}

// stagingRing is a bounded ring of stagingItem, one per Level. Unlike
// qisr's rings this one has many producers (any caller of
// Dispatcher.PostFromISR) and a single consumer (the dispatcher
// goroutine), so it is guarded by a plain mutex rather than lock-free
// cursors — there is no true interrupt context on this side of the
// boundary, just ordinary concurrent goroutines.
type stagingRing struct {
	mu       sync.Mutex
	buf      []stagingItem
	head     int
	count    int
	capacity int
}

func newStagingRing(capacity int) *stagingRing {
	return &stagingRing{buf: make([]stagingItem, capacity), capacity: capacity}
}

// push appends item unless the ring is already full.
func (r *stagingRing) push(item stagingItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count >= r.capacity {
		return false
	}
	tail := (r.head + r.count) % r.capacity
	r.buf[tail] = item
	r.count++
	return true
}

// drainAll atomically removes and returns everything currently staged.
// Items pushed while drainAll runs are not included — they wait for the
// next cycle, matching "drains each ring fully per cycle" rather than
// chasing a moving tail forever.
func (r *stagingRing) drainAll() []stagingItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil
	}
	out := make([]stagingItem, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%r.capacity]
	}
	r.head = (r.head + len(out)) % r.capacity
	r.count = 0
	return out
}

func (r *stagingRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
