package qhsm

import (
	"context"

	"github.com/cuemby/qfgo/pkg/qevent"
)

// Machine is what an Active Object drives its run-to-completion loop
// through. Init runs once, before the owning AO's event loop starts
// consuming its queue; Dispatch runs once per event, synchronously, with
// the AO's own goroutine as the caller — a Machine implementation must
// never block or hand the event to another goroutine itself.
type Machine interface {
	Init(ctx context.Context, param *qevent.Event)
	Dispatch(ctx context.Context, e *qevent.Event)
}
