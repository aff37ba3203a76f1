package qactive

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMachine struct {
	dispatched chan qevent.Signal
}

func (m *recordingMachine) Init(ctx context.Context, param *qevent.Event) {}
func (m *recordingMachine) Dispatch(ctx context.Context, e *qevent.Event) {
	m.dispatched <- e.Sig()
}

func TestActiveDispatchesInOrder(t *testing.T) {
	mgr := qevent.NewManager()
	mgr.Register(16, 4, 0)
	machine := &recordingMachine{dispatched: make(chan qevent.Signal, 4)}
	ao := New("worker", 5, 4, machine, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ao.Run(ctx)

	require.True(t, ao.PostFIFO(qevent.NewStatic(qevent.SigUser), 0))
	require.True(t, ao.PostFIFO(qevent.NewStatic(qevent.SigUser+1), 0))

	assert.Equal(t, qevent.SigUser, <-machine.dispatched)
	assert.Equal(t, qevent.SigUser+1, <-machine.dispatched)
}

func TestQueueBoundRejectsPastMargin(t *testing.T) {
	mgr := qevent.NewManager()
	machine := &recordingMachine{dispatched: make(chan qevent.Signal, 4)}
	ao := New("worker", 5, 2, machine, mgr)

	require.True(t, ao.PostFIFO(qevent.NewStatic(qevent.SigUser), 1))
	assert.False(t, ao.PostFIFO(qevent.NewStatic(qevent.SigUser), 1), "second post violates margin 1 on a depth-2 queue")
	assert.True(t, ao.PostFIFO(qevent.NewStatic(qevent.SigUser), 0), "margin 0 still has one slot free")
}

func TestPublishDeliversToEachSubscriberOnce(t *testing.T) {
	mgr := qevent.NewManager()
	mgr.Register(16, 4, 0)

	m1 := &recordingMachine{dispatched: make(chan qevent.Signal, 1)}
	m2 := &recordingMachine{dispatched: make(chan qevent.Signal, 1)}
	ao1 := New("ao1", 5, 4, m1, mgr)
	ao2 := New("ao2", 4, 4, m2, mgr)

	reg := NewRegistry()
	reg.Subscribe(ao1, qevent.SigUser)
	reg.Subscribe(ao2, qevent.SigUser)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ao1.Run(ctx)
	go ao2.Run(ctx)

	e, err := mgr.Alloc(8, qevent.SigUser, 0)
	require.NoError(t, err)

	delivered, failed := reg.Publish(e)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, failed)
	assert.EqualValues(t, 2, e.RefCount())

	assert.Equal(t, qevent.SigUser, <-m1.dispatched)
	assert.Equal(t, qevent.SigUser, <-m2.dispatched)

	// Give both event loops a moment to run their post-dispatch GC.
	deadline := time.After(time.Second)
	for e.RefCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("refcount never reached zero")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestBlockingProxyRepliesWithFnResult(t *testing.T) {
	proxy := NewBlockingProxy(1, func(ctx context.Context, e *qevent.Event) *qevent.Event {
		return qevent.NewStatic(e.Sig() + 1)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go proxy.Run(ctx)

	res, err := proxy.Request(ctx, qevent.NewStatic(qevent.SigUser))
	require.NoError(t, err)
	assert.Equal(t, qevent.SigUser+1, res.Sig())
}
