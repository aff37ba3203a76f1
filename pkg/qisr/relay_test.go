package qisr

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/cuemby/qfgo/pkg/qhsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayDeliversThroughPubSub(t *testing.T) {
	mgr := qevent.NewManager()
	mgr.Register(32, 16, 0)
	registry := qactive.NewRegistry()

	received := make(chan qevent.Signal, 4)
	machine := &recordingHSM{received: received}
	ao := qactive.New("consumer", 5, 8, machine, mgr)
	registry.Subscribe(ao, qevent.SigUser+1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ao.Run(ctx)

	relay := NewRelay(mgr, registry, 8, 4, 16)
	go relay.Run(ctx)

	ok := relay.PushFromISR(Descriptor{Sig: uint32(qevent.SigUser + 1), Priority: 1})
	require.True(t, ok)

	select {
	case sig := <-received:
		assert.Equal(t, qevent.SigUser+1, sig)
	case <-time.After(time.Second):
		t.Fatal("event never reached the subscriber through the relay")
	}
}

func TestRelayOverflowRingAbsorbsBurst(t *testing.T) {
	mgr := qevent.NewManager()
	mgr.Register(32, 64, 0)
	registry := qactive.NewRegistry()
	relay := NewRelay(mgr, registry, 4, 8, 16)

	// Fill the main ring (capacity rounds to 4) without draining.
	for i := 0; i < 4; i++ {
		require.True(t, relay.PushFromISR(Descriptor{Sig: uint32(qevent.SigUser)}))
	}
	// Main is full; next pushes must land in overflow.
	require.True(t, relay.PushFromISR(Descriptor{Sig: uint32(qevent.SigUser)}))
	assert.True(t, relay.overflowActive.Load())
}

type recordingHSM struct {
	received chan qevent.Signal
}

func (m *recordingHSM) Init(ctx context.Context, param *qevent.Event) {}
func (m *recordingHSM) Dispatch(ctx context.Context, e *qevent.Event) {
	m.received <- e.Sig()
}

var _ qhsm.Machine = (*recordingHSM)(nil)
