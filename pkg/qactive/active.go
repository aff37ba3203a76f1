package qactive

import (
	"context"
	"sync/atomic"

	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/cuemby/qfgo/pkg/qhsm"
	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SigShutdown is the one framework-reserved signal in the qactive
// namespace. There is no defined AO destruction path (matching the
// contract this framework is built on — an AO's loop runs for the
// lifetime of the program); applications that need one post SigShutdown
// as a static event and Active.Run returns once it dequeues it, after
// releasing whatever reference it holds. The machine never sees it.
const SigShutdown qevent.Signal = 8

// Active is an Active Object: a name, a priority, a bounded Queue, and a
// qhsm.Machine driven strictly run-to-completion — Dispatch for event N+1
// never starts until Dispatch for event N has returned.
type Active struct {
	ID       uuid.UUID
	Name     string
	Priority int

	queue   *Queue
	machine qhsm.Machine
	mgr     *qevent.Manager
	logger  zerolog.Logger

	progress uint64
}

// New creates an Active Object with a queue of the given capacity.
func New(name string, priority int, capacity int, machine qhsm.Machine, mgr *qevent.Manager) *Active {
	return &Active{
		ID:       uuid.New(),
		Name:     name,
		Priority: priority,
		queue:    newQueue(capacity),
		machine:  machine,
		mgr:      mgr,
		logger:   qlog.WithComponent("ao." + name),
	}
}

// Queue returns the AO's event queue.
func (a *Active) Queue() *Queue { return a.queue }

// Progress returns a monotonically increasing count of events this AO has
// fully dispatched, used by qhealth to detect a stalled event loop.
func (a *Active) Progress() uint64 { return atomic.LoadUint64(&a.progress) }

// PostFIFO enqueues e at the tail. On success, a dynamic event's refcount
// is incremented — the queue is now one of e's holders and will drop its
// reference via Manager.GC once it has dispatched e.
func (a *Active) PostFIFO(e *qevent.Event, margin int) bool {
	ok := a.queue.pushFIFO(e, margin)
	if ok && !e.IsStatic() {
		a.mgr.IncRef(e)
	}
	return ok
}

// PostLIFO enqueues e at the head (an urgent post). Callers must guarantee
// capacity; see Queue.pushLIFO.
func (a *Active) PostLIFO(e *qevent.Event) {
	a.queue.pushLIFO(e)
	if !e.IsStatic() {
		a.mgr.IncRef(e)
	}
}

// Deliver is the refcount-naive FIFO enqueue qdispatch.Dispatcher uses:
// the dispatcher already incremented e's refcount when it staged e, and a
// successful staging-to-queue handoff transfers that single reference to
// the queue rather than adding a second one. Any other caller should use
// PostFIFO instead.
func (a *Active) Deliver(e *qevent.Event, margin int) bool {
	return a.queue.pushFIFO(e, margin)
}

// Run drives the event loop until ctx is done or a SigShutdown event is
// dequeued. It calls machine.Init once before the first Get.
func (a *Active) Run(ctx context.Context) {
	a.machine.Init(ctx, nil)
	for {
		e := a.queue.get(ctx)
		if e == nil {
			return
		}
		if e.Sig() == SigShutdown {
			a.mgr.GC(e)
			return
		}
		a.dispatchOne(ctx, e)
		atomic.AddUint64(&a.progress, 1)
	}
}

func (a *Active) dispatchOne(ctx context.Context, e *qevent.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("fault", r).Msg("event loop recovered from a fault; event dropped")
		}
		a.mgr.GC(e)
	}()
	a.machine.Dispatch(ctx, e)
}
