package qactive

import (
	"sync"

	"github.com/cuemby/qfgo/pkg/qevent"
)

// Registry is the pub/sub table: AOs subscribe to signals, a publisher
// fans an event out to every current subscriber via PostFIFO. It is
// generalized from the teacher's events.Broker (string EventType + channel
// Subscriber, broadcast to every subscriber) to integer Signal + *Active
// subscriber, fanned out only to the subscribers of that one signal.
type Registry struct {
	mu   sync.RWMutex
	subs map[qevent.Signal]map[*Active]struct{}
}

// NewRegistry returns an empty subscription table.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[qevent.Signal]map[*Active]struct{})}
}

// Subscribe registers ao to receive every event published with signal sig.
// Idempotent.
func (r *Registry) Subscribe(ao *Active, sig qevent.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[sig]
	if !ok {
		set = make(map[*Active]struct{})
		r.subs[sig] = set
	}
	set[ao] = struct{}{}
}

// Unsubscribe removes ao from sig's subscriber set. Idempotent.
func (r *Registry) Unsubscribe(ao *Active, sig qevent.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[sig]
	if !ok {
		return
	}
	delete(set, ao)
	if len(set) == 0 {
		delete(r.subs, sig)
	}
}

// SubscriberCount returns the number of AOs currently subscribed to sig.
func (r *Registry) SubscriberCount(sig qevent.Signal) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[sig])
}

// Publish fans e out to every subscriber of e.Sig() via PostFIFO, which
// increments e's refcount once per successful delivery. A subscriber whose
// queue is full does not get e and is counted in failed rather than
// delivered — publish never blocks and never retries (that's the
// dispatcher's job, one layer up).
func (r *Registry) Publish(e *qevent.Event) (delivered, failed int) {
	r.mu.RLock()
	set := r.subs[e.Sig()]
	targets := make([]*Active, 0, len(set))
	for ao := range set {
		targets = append(targets, ao)
	}
	r.mu.RUnlock()

	for _, ao := range targets {
		if ao.PostFIFO(e, 0) {
			delivered++
		} else {
			failed++
		}
	}
	return delivered, failed
}
