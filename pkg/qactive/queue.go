package qactive

import (
	"context"
	"sync"

	"github.com/cuemby/qfgo/pkg/qevent"
)

// Queue is a bounded ring of event pointers with a blocking-dequeue,
// FIFO-post/LIFO-post contract. It does no refcounting itself — that's
// layered on top by Active.PostFIFO/PostLIFO, and deliberately bypassed by
// Active.Deliver, which qdispatch uses for the staging-to-queue handoff
// (see Active.Deliver's doc comment).
type Queue struct {
	mu       sync.Mutex
	buf      []*qevent.Event
	head     int
	count    int
	capacity int
	sem      chan struct{}
}

func newQueue(capacity int) *Queue {
	return &Queue{
		buf:      make([]*qevent.Event, capacity),
		capacity: capacity,
		sem:      make(chan struct{}, capacity),
	}
}

// Capacity returns the queue's fixed bound.
func (q *Queue) Capacity() int { return q.capacity }

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// pushFIFO appends e at the tail unless doing so would leave fewer than
// margin free slots. Returns false without touching the queue on
// rejection.
func (q *Queue) pushFIFO(e *qevent.Event, margin int) bool {
	q.mu.Lock()
	if q.count >= q.capacity-margin {
		q.mu.Unlock()
		return false
	}
	tail := (q.head + q.count) % q.capacity
	q.buf[tail] = e
	q.count++
	q.mu.Unlock()
	q.sem <- struct{}{}
	return true
}

// pushLIFO prepends e at the head. Callers are required to guarantee
// capacity in advance (urgent posts are not margin-checked); violating
// that is a contract violation, not a recoverable condition.
func (q *Queue) pushLIFO(e *qevent.Event) {
	q.mu.Lock()
	if q.count >= q.capacity {
		q.mu.Unlock()
		panic(qevent.Fault{Msg: "qactive: LIFO post into a queue with no free slots"})
	}
	q.head = (q.head - 1 + q.capacity) % q.capacity
	q.buf[q.head] = e
	q.count++
	q.mu.Unlock()
	q.sem <- struct{}{}
}

// Get blocks until an event is available or ctx is done, in which case it
// returns nil. Active.Run calls this as get(ctx); it is also exported for
// tests and tooling that want to drain a queue without driving a full
// qhsm.Machine.
func (q *Queue) Get(ctx context.Context) *qevent.Event {
	return q.get(ctx)
}

// get blocks until an event is available or ctx is done, in which case it
// returns nil.
func (q *Queue) get(ctx context.Context) *qevent.Event {
	select {
	case <-q.sem:
	case <-ctx.Done():
		return nil
	}
	q.mu.Lock()
	e := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.mu.Unlock()
	return e
}
