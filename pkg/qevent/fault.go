package qevent

import "errors"

// ErrExhausted is returned by Manager.Alloc/AllocExtended when every
// candidate pool is below its effective margin.
var ErrExhausted = errors.New("qevent: every candidate pool is below its effective margin")

// Fault marks a contract violation: a programmer error rather than a
// runtime condition (double free, incRef on a static event, gc against an
// unknown pool id). Manager panics with a Fault; callers that need to keep
// one bad event from bringing down a whole loop recover it at the
// dispatch/delivery boundary (see qactive.Active.Run, qdispatch.Dispatcher.Run,
// qisr.Relay.Run) and log it instead of crashing the process.
type Fault struct {
	Msg string
}

func (f Fault) Error() string { return "qevent: fault: " + f.Msg }
