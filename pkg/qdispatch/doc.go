// Package qdispatch implements the priority-partitioned dispatch
// optimization layer: three staging rings (high/normal/low), a single
// dispatcher goroutine that drains them strictly in priority order once
// per wakeup, and a pluggable Strategy that decides what gets merged,
// dropped, classified and retried. It is a direct port of the original
// RT-Thread port's qf_opt_layer.c algorithm: classify on post, batch-drain
// per level, look-ahead merge within a batch, retry into the low ring on
// a failed delivery, drop once the retry budget or the NO_DROP flag says
// to.
package qdispatch
