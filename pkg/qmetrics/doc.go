// Package qmetrics exposes dispatcher, pool, queue and relay state as
// Prometheus collectors, following the teacher's pkg/metrics shape:
// package-level vars registered once in init(), a Timer helper for
// histogram observations, and a Collector that periodically scrapes live
// state into gauges (the teacher scraped cluster manager state on a
// ticker; this one scrapes qdispatch/qevent/qactive state instead).
package qmetrics
