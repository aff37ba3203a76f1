// Package integration drives the whole qevent/qactive/qisr/qdispatch
// stack together, the way spec.md §8's S1-S4 scenarios describe. Unlike
// the package-level tests, these exercise components only through the
// public API a consuming application would use: allocate, subscribe,
// post, publish, relay.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qdispatch"
	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/cuemby/qfgo/pkg/qisr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingMachine struct {
	mu   sync.Mutex
	seen []qevent.Signal
	got  chan *qevent.Event
}

func newCapturingMachine(buf int) *capturingMachine {
	return &capturingMachine{got: make(chan *qevent.Event, buf)}
}

func (m *capturingMachine) Init(ctx context.Context, param *qevent.Event) {}
func (m *capturingMachine) Dispatch(ctx context.Context, e *qevent.Event) {
	m.mu.Lock()
	m.seen = append(m.seen, e.Sig())
	m.mu.Unlock()
	m.got <- e
}

func (m *capturingMachine) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// TestS1SimplePublishReceive: one AO subscribes to a signal; a static
// event published once is seen exactly once, and pool accounting (there
// is none to disturb — it's static) is untouched.
func TestS1SimplePublishReceive(t *testing.T) {
	mgr := qevent.NewManager()
	machine := newCapturingMachine(1)
	ao := qactive.New("ao1", 1, 4, machine, mgr)

	registry := qactive.NewRegistry()
	registry.Subscribe(ao, qevent.SigUser)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ao.Run(ctx)

	e := qevent.NewStatic(qevent.SigUser)
	delivered, failed := registry.Publish(e)
	require.Equal(t, 1, delivered)
	require.Equal(t, 0, failed)

	select {
	case got := <-machine.got:
		assert.Equal(t, qevent.SigUser, got.Sig())
	case <-time.After(time.Second):
		t.Fatal("AO never dispatched the published event")
	}
	assert.EqualValues(t, 0, e.RefCount())
}

// TestS2RefcountOnMulticast: two AOs subscribe to the same signal; a
// dynamic event published once is dispatched to both exactly once, and
// the pool's free count returns to its pre-publish value once both event
// loops have GC'd their copy.
func TestS2RefcountOnMulticast(t *testing.T) {
	mgr := qevent.NewManager()
	pool := mgr.Register(16, 8, 0)
	freeBefore := pool.Free()

	m1 := newCapturingMachine(1)
	m2 := newCapturingMachine(1)
	ao1 := qactive.New("ao1", 2, 4, m1, mgr)
	ao2 := qactive.New("ao2", 1, 4, m2, mgr)

	registry := qactive.NewRegistry()
	registry.Subscribe(ao1, qevent.SigUser)
	registry.Subscribe(ao2, qevent.SigUser)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ao1.Run(ctx)
	go ao2.Run(ctx)

	e, err := mgr.Alloc(16, qevent.SigUser, 0)
	require.NoError(t, err)

	delivered, failed := registry.Publish(e)
	require.Equal(t, 2, delivered)
	require.Equal(t, 0, failed)

	<-m1.got
	<-m2.got

	deadline := time.After(time.Second)
	for pool.Free() != freeBefore {
		select {
		case <-deadline:
			t.Fatalf("pool free count never returned to %d (at %d)", freeBefore, pool.Free())
		case <-time.After(time.Millisecond):
		}
	}
}

// TestS3HighPerfDropUnderLoadEndToEnd is S3 driven entirely through the
// public Dispatcher surface rather than its unexported cycle() method.
func TestS3HighPerfDropUnderLoadEndToEnd(t *testing.T) {
	mgr := qevent.NewManager()
	mgr.Register(16, 32, 0)

	machine := newCapturingMachine(8)
	ao := qactive.New("target", 3, 8, machine, mgr)

	d := qdispatch.New(mgr, 16)
	d.SetStrategy(qdispatch.HighPerfStrategy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Hold the AO's queue at 7/8 by posting directly (no consumer running
	// yet), which is over HighPerfStrategy's 80% drop threshold.
	for i := 0; i < 7; i++ {
		require.True(t, ao.PostFIFO(qevent.NewStatic(qevent.SigUser), 0))
	}

	nonCritical, err := mgr.AllocExtended(16, qevent.SigUser+1, 10, 0, 0)
	require.NoError(t, err)
	critical, err := mgr.AllocExtended(16, qevent.SigUser+2, 250, qevent.FlagCritical|qevent.FlagNoDrop, 0)
	require.NoError(t, err)

	require.True(t, d.PostFromISR(nonCritical, ao, 10))
	require.True(t, d.PostFromISR(critical, ao, 10))

	deadline := time.After(time.Second)
	for d.Metrics().EventsDropped == 0 {
		select {
		case <-deadline:
			t.Fatal("dispatcher never recorded a drop")
		case <-time.After(time.Millisecond):
		}
	}

	m := d.Metrics()
	assert.EqualValues(t, 1, m.EventsDropped)
	assert.EqualValues(t, 0, m.PostFailures) // strategy-level drop, not a failed delivery

	// Now start consuming so the AO dispatches its backlog, starting with
	// the first static filler.
	go ao.Run(ctx)
	select {
	case got := <-machine.got:
		assert.Equal(t, qevent.SigUser, got.Sig())
	case <-time.After(time.Second):
		t.Fatal("AO never started dispatching its backlog")
	}
}

// TestS4ISRRelayBurst is spec.md §8's S4: a burst of 64 descriptors
// against a 32-slot primary and 16-slot overflow ring fills both and
// loses the remaining 16, with pool accounting matching exactly 48
// allocations and 48 recycles once the relay drains.
func TestS4ISRRelayBurst(t *testing.T) {
	mgr := qevent.NewManager()
	pool := mgr.Register(16, 64, 0)
	registry := qactive.NewRegistry()

	machine := newCapturingMachine(64)
	ao := qactive.New("sink", 1, 64, machine, mgr)
	registry.Subscribe(ao, qevent.SigUser)

	relay := qisr.NewRelay(mgr, registry, 32, 16, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ao.Run(ctx)
	go relay.Run(ctx)

	accepted := 0
	for i := 0; i < 64; i++ {
		if relay.PushFromISR(qisr.Descriptor{Sig: uint32(qevent.SigUser)}) {
			accepted++
		}
	}
	assert.Equal(t, 48, accepted)

	deadline := time.After(2 * time.Second)
	for machine.count() < 48 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 48 events reached the AO", machine.count())
		case <-time.After(time.Millisecond):
		}
	}

	stats := relay.Stats()
	assert.EqualValues(t, 16, stats.EventsLost)
	assert.EqualValues(t, 48, stats.EventsProcessed)

	freeDeadline := time.After(time.Second)
	for pool.Free() != 64 {
		select {
		case <-freeDeadline:
			t.Fatalf("pool never returned to full (at %d/64 free)", pool.Free())
		case <-time.After(time.Millisecond):
		}
	}
}

// TestSubscribeUnsubscribeRoundTrip checks the idempotence property from
// spec.md §8: subscribe then unsubscribe returns the registry to its
// prior observable state (zero subscribers for that signal again).
func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	mgr := qevent.NewManager()
	ao := qactive.New("ao", 1, 4, newCapturingMachine(1), mgr)
	registry := qactive.NewRegistry()

	require.Equal(t, 0, registry.SubscriberCount(qevent.SigUser))
	registry.Subscribe(ao, qevent.SigUser)
	require.Equal(t, 1, registry.SubscriberCount(qevent.SigUser))
	registry.Unsubscribe(ao, qevent.SigUser)
	assert.Equal(t, 0, registry.SubscriberCount(qevent.SigUser))
}

// TestPublishWithNoSubscribersIsANoOp checks the boundary behavior from
// spec.md §8: publishing a signal nobody subscribes to leaves a dynamic
// event's refcount at zero, immediately recyclable.
func TestPublishWithNoSubscribersIsANoOp(t *testing.T) {
	mgr := qevent.NewManager()
	pool := mgr.Register(16, 4, 0)
	registry := qactive.NewRegistry()

	e, err := mgr.Alloc(16, qevent.SigUser, 0)
	require.NoError(t, err)

	delivered, failed := registry.Publish(e)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, failed)
	assert.EqualValues(t, 0, e.RefCount())

	mgr.GC(e)
	assert.Equal(t, 4, pool.Free())
}
