// Package qevent implements the event ownership model: signals, base and
// extended events, and the fixed-size block-pool allocator that hands them
// out. An event is either static (caller-owned, never pooled, never
// refcounted) or dynamic (pool-allocated, refcounted, recycled by the last
// holder to call Manager.GC).
package qevent
