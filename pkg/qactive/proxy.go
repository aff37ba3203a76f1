package qactive

import (
	"context"

	"github.com/cuemby/qfgo/pkg/qevent"
)

// BlockingProxy runs a slow call (a lower-priority task's semaphore, a
// socket read) on a dedicated proxy goroutine instead of the caller's
// own. Request hands the event to that goroutine and then blocks its
// caller on a private reply channel until fn has returned; the result
// comes back as Request's return value and is not posted to any AO's
// queue. An AO that calls Request from Dispatch therefore stays blocked
// for the duration of fn.
type BlockingProxy struct {
	requests chan proxyRequest
	fn       func(ctx context.Context, e *qevent.Event) *qevent.Event
}

type proxyRequest struct {
	event *qevent.Event
	reply chan *qevent.Event
}

// NewBlockingProxy returns a proxy whose Run loop executes fn for each
// request. buffer bounds how many outstanding requests can queue before
// Request blocks its caller.
func NewBlockingProxy(buffer int, fn func(ctx context.Context, e *qevent.Event) *qevent.Event) *BlockingProxy {
	return &BlockingProxy{requests: make(chan proxyRequest, buffer), fn: fn}
}

// Run services requests until ctx is done.
func (p *BlockingProxy) Run(ctx context.Context) {
	for {
		select {
		case req := <-p.requests:
			req.reply <- p.fn(ctx, req.event)
		case <-ctx.Done():
			return
		}
	}
}

// Request submits e to the proxy and blocks the calling goroutine (the
// AO's own, typically) until the proxy's fn has run and replied, or ctx is
// done first.
func (p *BlockingProxy) Request(ctx context.Context, e *qevent.Event) (*qevent.Event, error) {
	reply := make(chan *qevent.Event, 1)
	select {
	case p.requests <- proxyRequest{event: e, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
