package qdispatch

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/cuemby/qfgo/pkg/qmetrics"
	"github.com/rs/zerolog"
)

// MaxRetry caps how many times an extended NO_DROP event can be re-staged
// into Low after a failed delivery before the dispatcher gives up on it.
const MaxRetry uint8 = 3

// Metrics is the dispatcher's monotonic counter set. Every field is
// reset together by Dispatcher.ResetMetrics; between resets every counter
// only ever goes up.
type Metrics struct {
	DispatchCycles   uint64
	EventsProcessed  uint64
	EventsMerged     uint64
	EventsDropped    uint64
	EventsRetried    uint64
	MaxBatchSize     int
	totalBatchSize   uint64
	batchCount       uint64
	MaxQueueDepth    int
	PostFailures     uint64
	StagingOverflows [levelCount]uint64
}

// AvgBatchSize returns the running mean batch size across every drained
// ring since the last reset.
func (m Metrics) AvgBatchSize() float64 {
	if m.batchCount == 0 {
		return 0
	}
	return float64(m.totalBatchSize) / float64(m.batchCount)
}

// Dispatcher is the priority-partitioned optimization layer: three
// staging rings, a single goroutine that drains them strictly
// HIGH-then-NORMAL-then-LOW every wakeup, and a pluggable Strategy that
// decides what gets merged, dropped, classified and retried. It is a
// direct port of the original RT-Thread port's qf_opt_layer.c algorithm.
type Dispatcher struct {
	rings [levelCount]*stagingRing

	strategy atomic.Pointer[Strategy]

	mgr *qevent.Manager

	notify  chan struct{}
	stopCh  chan struct{}
	enabled atomic.Bool

	mu      sync.Mutex
	metrics Metrics

	logger   zerolog.Logger
	progress uint64
}

// New returns a Dispatcher over mgr (needed to GC dropped/merged events),
// with stagingSize-capacity rings for each of High/Normal/Low. The
// default strategy is active until SetStrategy is called.
func New(mgr *qevent.Manager, stagingSize int) *Dispatcher {
	d := &Dispatcher{
		mgr:    mgr,
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		logger: qlog.WithComponent("dispatcher"),
	}
	for l := Level(0); l < levelCount; l++ {
		d.rings[l] = newStagingRing(stagingSize)
	}
	d.strategy.Store(DefaultStrategy)
	d.enabled.Store(true)
	return d
}

// SetStrategy swaps the active strategy. The swap is a single atomic
// pointer store; callbacks read the current pointer without locking. A
// batch already drained from a ring continues processing under whichever
// strategy was active when Process started on it.
func (d *Dispatcher) SetStrategy(s *Strategy) {
	d.strategy.Store(s)
}

func (d *Dispatcher) currentStrategy() *Strategy {
	return d.strategy.Load()
}

// Enable resumes staging acceptance after Disable.
func (d *Dispatcher) Enable() { d.enabled.Store(true) }

// Disable stops PostFromISR from accepting new work; callers get false
// immediately instead of a staging or fast-path attempt. The dispatcher
// loop keeps draining whatever was already staged.
func (d *Dispatcher) Disable() { d.enabled.Store(false) }

// Metrics returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Metrics() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.metrics
}

// ResetMetrics zeroes every counter. Only safe to call from task context;
// it takes the same lock the dispatcher loop uses to update counters.
func (d *Dispatcher) ResetMetrics() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics = Metrics{}
}

// Progress returns a monotonically increasing count of dispatch cycles
// completed, for qhealth's stall detection.
func (d *Dispatcher) Progress() uint64 { return atomic.LoadUint64(&d.progress) }

// Pending returns the total number of items currently staged across all
// three levels.
func (d *Dispatcher) Pending() int {
	n := 0
	for l := Level(0); l < levelCount; l++ {
		n += d.rings[l].len()
	}
	return n
}

// PostFromISR classifies e via the active strategy and stages it for
// delivery to target. It is the entry point both ordinary posters and the
// ISR relay's reconstructed events go through.
//
// A static event targeting a runnable AO of higher priority than the
// poster is eligible for the fast path (SPEC_FULL §6, ported from
// QF_isEligibleForFastPath): it
// skips staging entirely and is posted directly, since a static event
// carries no refcount discipline that staging's extra incRef would be
// protecting. Dynamic events always stage, so the "each container holds
// exactly one count" discipline (DESIGN.md Open Question 1) stays intact.
func (d *Dispatcher) PostFromISR(e *qevent.Event, target *qactive.Active, posterPriority int) bool {
	if !d.enabled.Load() {
		return false
	}

	if e.IsStatic() && posterPriority < target.Priority && d.fastPathEligible(target) {
		return target.PostFIFO(e, 1)
	}

	level := d.currentStrategy().ClassifyPriority(e)
	item := stagingItem{evt: e, target: target, timestamp: time.Now().UnixNano()}
	if !d.rings[level].push(item) {
		d.mu.Lock()
		d.metrics.StagingOverflows[level]++
		d.mu.Unlock()
		qmetrics.StagingOverflows.WithLabelValues(level.String()).Inc()
		return false
	}
	if !e.IsStatic() {
		d.mgr.IncRef(e)
	}
	d.wake()
	return true
}

// fastPathEligible reports whether target's queue currently has room,
// standing in for "is the target thread runnable" in the original RTOS
// port (there, a blocked/suspended thread could not be fast-posted to
// either; here, a full queue is the only local signal we have without
// reaching into the scheduler).
func (d *Dispatcher) fastPathEligible(target *qactive.Active) bool {
	q := target.Queue()
	return q.Len() < q.Capacity()
}

func (d *Dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Wake is the idle-hook entry point: the scheduler's idle loop (or, here,
// anything that suspects a missed signal) calls this when it observes a
// non-empty ring, as a belt-and-suspenders wakeup against semaphore
// implementations that coalesce signals.
func (d *Dispatcher) Wake() {
	if d.Pending() > 0 {
		d.wake()
	}
}

// Run drives the dispatcher loop until ctx is done or Stop is called. It
// is the single highest-priority task in the system: every AO and the ISR
// relay rely on it to drain staging promptly.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-d.notify:
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
		d.cycle()
	}
}

// Stop ends the dispatcher loop.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
}

func (d *Dispatcher) cycle() {
	d.mu.Lock()
	d.metrics.DispatchCycles++
	d.mu.Unlock()
	qmetrics.DispatchCycles.Inc()

	for level := Level(0); level < levelCount; level++ {
		batch := d.rings[level].drainAll()
		if len(batch) == 0 {
			continue
		}

		d.mu.Lock()
		d.metrics.totalBatchSize += uint64(len(batch))
		d.metrics.batchCount++
		if len(batch) > d.metrics.MaxBatchSize {
			d.metrics.MaxBatchSize = len(batch)
		}
		d.mu.Unlock()
		qmetrics.BatchSize.Observe(float64(len(batch)))

		d.processBatchSafely(level, batch)
	}
	atomic.AddUint64(&d.progress, 1)
}

// processBatchSafely recovers a Fault from one bad item in a batch so a
// single contract violation (e.g. a double-GC a buggy Strategy triggered)
// doesn't take down the whole dispatcher loop, matching
// qactive.Active.dispatchOne's recover-and-log boundary.
func (d *Dispatcher) processBatchSafely(level Level, batch []stagingItem) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("fault", r).Str("level", level.String()).Msg("dispatch cycle recovered from a fault; remaining batch items dropped")
		}
	}()
	d.processBatch(level, batch)
}

// processBatch implements the per-item decision in spec.md §4.4: drop,
// merge-lookahead, post, or retry, in that order, for every item still
// live in the batch. Merging releases the earlier item and skips it; the
// later item stays in the batch, so it can itself still be a merge target
// for anything further ahead.
func (d *Dispatcher) processBatch(level Level, batch []stagingItem) {
	strategy := d.currentStrategy()

	for i := range batch {
		item := batch[i]
		if item.evt == nil {
			continue
		}

		if strategy.ShouldDrop(item.evt, item.target) {
			d.drop(item.evt)
			continue
		}

		merged := false
		for j := i + 1; j < len(batch); j++ {
			later := batch[j]
			if later.evt == nil || later.target != item.target {
				continue
			}
			if strategy.ShouldMerge(item.evt, later.evt) {
				d.mgr.GC(item.evt)
				d.mu.Lock()
				d.metrics.EventsMerged++
				d.mu.Unlock()
				qmetrics.EventsMerged.Inc()
				merged = true
				break
			}
		}
		if merged {
			continue
		}

		if item.target.Deliver(item.evt, 1) {
			d.mu.Lock()
			d.metrics.EventsProcessed++
			if n := item.target.Queue().Len(); n > d.metrics.MaxQueueDepth {
				d.metrics.MaxQueueDepth = n
			}
			d.mu.Unlock()
			qmetrics.EventsProcessed.Inc()
			continue
		}

		d.retry(item)
	}
}

func (d *Dispatcher) drop(e *qevent.Event) {
	d.mgr.GC(e)
	d.mu.Lock()
	d.metrics.EventsDropped++
	d.mu.Unlock()
	qmetrics.EventsDropped.Inc()
}

// retry implements spec.md §4.4's retry policy: an extended NO_DROP event
// under MaxRetry is re-staged into Low; everything else is a terminal
// drop counted as both a drop and a post failure.
func (d *Dispatcher) retry(item stagingItem) {
	ext, ok := item.evt.Extended()
	if ok && ext.Flags&qevent.FlagNoDrop != 0 && ext.RetryCount < uint8(MaxRetry) {
		ext.RetryCount++
		item.timestamp = time.Now().UnixNano()
		if d.rings[Low].push(item) {
			d.mu.Lock()
			d.metrics.EventsRetried++
			d.mu.Unlock()
			qmetrics.EventsRetried.Inc()
			d.wake()
			return
		}
		d.mu.Lock()
		d.metrics.StagingOverflows[Low]++
		d.mu.Unlock()
		qmetrics.StagingOverflows.WithLabelValues(Low.String()).Inc()
	}

	d.mgr.GC(item.evt)
	d.mu.Lock()
	d.metrics.EventsDropped++
	d.metrics.PostFailures++
	d.mu.Unlock()
	qmetrics.EventsDropped.Inc()
	qmetrics.PostFailures.Inc()
	d.logger.Debug().Str("target", targetName(item.target)).Msg("post failed, event dropped")
}

func targetName(a *qactive.Active) string {
	if a == nil {
		return "<nil>"
	}
	return a.Name + "#" + strconv.Itoa(a.Priority)
}
