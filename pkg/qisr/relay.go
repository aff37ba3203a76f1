package qisr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/cuemby/qfgo/pkg/qmetrics"
	"github.com/rs/zerolog"
)

const (
	batchInitSize = 8
	batchMaxSize  = 16
	batchMinSize  = 1

	// Adaptive batch thresholds, taken from the original RT-Thread port's
	// qf_isr_relay.c rather than spec.md (which only says "a threshold
	// tick count"): grow the batch when a drain takes more than 5ms,
	// shrink it when a drain takes less than 1ms.
	growThreshold   = 5 * time.Millisecond
	shrinkThreshold = 1 * time.Millisecond
)

// Stats is a snapshot of the relay's counters, guarded by a mutex kept
// deliberately separate from the ring/publish data path (it is touched
// only at the three points below, never while a ring or the registry is
// locked).
type Stats struct {
	EventsProcessed uint64
	EventsLost      uint64
	Wakeups         uint64
	MaxBatchSize    int
	MaxProcessTime  time.Duration
}

// Relay is the ISR-to-task-context boundary: PushFromISR is safe to call
// from the producer side (standing in for an interrupt handler) with no
// allocation and no blocking; Run is the dedicated worker goroutine that
// drains both rings, allocates real events, and publishes them.
type Relay struct {
	main     *spscRing
	overflow *spscRing

	overflowActive atomic.Bool
	notify         chan struct{}
	stopCh         chan struct{}

	mu    sync.Mutex
	stats Stats

	mgr      *qevent.Manager
	registry *qactive.Registry
	blockSz  int
	logger   zerolog.Logger

	progress uint64
}

// NewRelay builds a relay over mgr (for allocation) and registry (for
// publishing). mainSize/overflowSize are ring capacities (rounded up to a
// power of two); blockSize is the size class passed to
// Manager.AllocExtended for every reconstructed event.
func NewRelay(mgr *qevent.Manager, registry *qactive.Registry, mainSize, overflowSize, blockSize int) *Relay {
	return &Relay{
		main:     newSPSCRing(mainSize),
		overflow: newSPSCRing(overflowSize),
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		mgr:      mgr,
		registry: registry,
		blockSz:  blockSize,
		logger:   qlog.WithComponent("relay"),
	}
}

// PushFromISR enqueues a descriptor. It never allocates and never blocks:
// on the rare case both rings are full, the descriptor is dropped and
// counted as lost rather than stalling whatever called this.
func (r *Relay) PushFromISR(d Descriptor) bool {
	if r.main.push(d) {
		r.wake()
		return true
	}
	if r.overflow.push(d) {
		r.overflowActive.Store(true)
		r.wake()
		return true
	}
	r.mu.Lock()
	r.stats.EventsLost++
	r.mu.Unlock()
	qmetrics.RelayEventsLost.Inc()
	return false
}

func (r *Relay) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the relay's counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Progress returns a monotonically increasing count of descriptors this
// relay has drained and published, for qhealth's stall detection.
func (r *Relay) Progress() uint64 { return atomic.LoadUint64(&r.progress) }

// Pending returns the number of descriptors currently queued across both
// rings.
func (r *Relay) Pending() int { return r.main.len() + r.overflow.len() }

// Run drives the relay worker until ctx is done or Stop is called.
func (r *Relay) Run(ctx context.Context) {
	batch := batchInitSize
	for {
		select {
		case <-r.notify:
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}

		start := time.Now()
		processed := 0

		if r.overflowActive.Load() {
			processed += r.drain(r.overflow, batch-processed)
			if r.overflow.len() == 0 {
				r.overflowActive.Store(false)
			}
		}
		if processed < batch {
			processed += r.drain(r.main, batch-processed)
		}

		elapsed := time.Since(start)

		r.mu.Lock()
		r.stats.EventsProcessed += uint64(processed)
		r.stats.Wakeups++
		if processed > r.stats.MaxBatchSize {
			r.stats.MaxBatchSize = processed
		}
		if elapsed > r.stats.MaxProcessTime {
			r.stats.MaxProcessTime = elapsed
		}
		r.mu.Unlock()

		qmetrics.RelayEventsProcessed.Add(float64(processed))
		qmetrics.RelayWakeups.Inc()
		qmetrics.RelayBatchSize.Observe(float64(processed))
		atomic.AddUint64(&r.progress, uint64(processed))

		if elapsed > growThreshold && batch < batchMaxSize {
			batch++
		} else if elapsed < shrinkThreshold && batch > batchMinSize {
			batch--
		}

		// Wakeups coalesce, so a batch that left descriptors behind
		// re-signals the worker instead of waiting for the next push.
		if r.Pending() > 0 {
			r.wake()
		}
	}
}

func (r *Relay) drain(ring *spscRing, limit int) int {
	count := 0
	for count < limit {
		d, ok := ring.pop()
		if !ok {
			break
		}
		r.publishOneSafely(d)
		count++
	}
	return count
}

// publishOneSafely recovers a Fault from one bad descriptor so it cannot
// take down the relay worker for every descriptor behind it in the ring,
// matching qactive.Active.dispatchOne's recover-and-log boundary.
func (r *Relay) publishOneSafely(d Descriptor) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("fault", rec).Msg("relay drain recovered from a fault; descriptor dropped")
		}
	}()

	e, err := r.mgr.AllocExtended(r.blockSz, qevent.Signal(d.Sig), d.Priority, qevent.Flags(d.Flags), 0)
	if err != nil {
		r.mu.Lock()
		r.stats.EventsLost++
		r.mu.Unlock()
		qmetrics.RelayEventsLost.Inc()
		return
	}
	// Publish increments e's refcount once per successful delivery; each
	// subscriber's own event loop releases that reference with its own GC
	// once it has dispatched e. No self-release belongs here when at least
	// one subscriber took e: e's refcount already starts at its
	// allocation-owned zero, so an extra GC at this point would race the
	// subscribers' GCs and recycle the block while a queue still holds it.
	// When nobody took e, no other holder exists and the relay recycles it.
	if delivered, _ := r.registry.Publish(e); delivered == 0 {
		r.mgr.GC(e)
	}
}

// Stop ends the relay worker.
func (r *Relay) Stop() {
	close(r.stopCh)
}
