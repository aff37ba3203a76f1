// Package qisr is the ISR-to-task boundary: a lock-free SPSC ring carries
// compact descriptors (not event pointers — an interrupt context must
// never touch the allocator) from the producer side to a dedicated relay
// worker goroutine, which allocates a real event and publishes it through
// qactive.Registry. A second overflow ring absorbs bursts past the
// primary ring's capacity; the relay drains overflow first so it never
// grows unbounded while the primary ring still has room. Batch size is
// adaptive: it grows when a drain cycle takes too long and shrinks when
// drains are cheap, the same heuristic the original RT-Thread port used.
package qisr
