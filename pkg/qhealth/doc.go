// Package qhealth is a liveness watchdog for the framework's long-running
// loops (AO event loops, the dispatcher thread, the ISR relay worker). It
// is adapted from the teacher's pkg/health Checker/Result/Status shape and
// pkg/metrics's HTTP health-endpoint surface, generalized from "is this
// container/HTTP/TCP target healthy" to "is this loop still making
// progress on the work it has pending" — a loop that is correctly idle,
// blocked waiting for work that hasn't arrived, is healthy by definition;
// one with pending work and an unmoving progress counter is stalled.
package qhealth
