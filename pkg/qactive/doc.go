// Package qactive implements the Active Object: a bounded event queue, a
// strict run-to-completion event loop around a qhsm.Machine, a pub/sub
// registry AOs subscribe to by signal, and a blocking-proxy helper that
// runs a slow call on its own goroutine while the requester waits for
// the reply.
package qactive
