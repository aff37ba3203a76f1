package qmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics
	DispatchCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_cycles_total",
			Help: "Total number of dispatcher wake/drain cycles",
		},
	)

	EventsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_events_processed_total",
			Help: "Total number of events the dispatcher delivered from staging to a target queue",
		},
	)

	EventsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_events_merged_total",
			Help: "Total number of events coalesced by the active strategy",
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_events_dropped_total",
			Help: "Total number of events dropped (strategy shouldDrop or exhausted retries)",
		},
	)

	EventsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_events_retried_total",
			Help: "Total number of events re-staged after a failed queue post",
		},
	)

	PostFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_post_failures_total",
			Help: "Total number of terminal post failures (retry budget exhausted or NO_DROP absent)",
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qfgo_dispatch_batch_size",
			Help:    "Number of events drained from one staging ring in one dispatcher cycle",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	StagingOverflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qfgo_dispatch_staging_overflows_total",
			Help: "Total number of staging-ring pushes rejected because the ring was full",
		},
		[]string{"level"},
	)

	// Pool metrics
	PoolFree = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qfgo_pool_free",
			Help: "Free blocks remaining in a pool",
		},
		[]string{"pool"},
	)

	PoolUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qfgo_pool_used",
			Help: "Blocks currently checked out of a pool",
		},
		[]string{"pool"},
	)

	PoolPeak = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qfgo_pool_peak",
			Help: "High-water mark of blocks checked out of a pool",
		},
		[]string{"pool"},
	)

	AllocFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_pool_alloc_failures_total",
			Help: "Total number of allocations that returned ErrExhausted",
		},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qfgo_queue_depth",
			Help: "Current depth of an AO's event queue",
		},
		[]string{"ao"},
	)

	// ISR relay metrics
	RelayEventsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_relay_events_processed_total",
			Help: "Total number of descriptors the ISR relay has drained and published",
		},
	)

	RelayWakeups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_relay_wakeups_total",
			Help: "Total number of times the relay worker woke from its semaphore",
		},
	)

	RelayEventsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qfgo_relay_events_lost_total",
			Help: "Total number of ISR descriptors lost (both rings full, or no event could be allocated for one)",
		},
	)

	RelayBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qfgo_relay_batch_size",
			Help:    "Number of descriptors drained in one relay wakeup",
			Buckets: []float64{1, 2, 4, 8, 16},
		},
	)
)

func init() {
	prometheus.MustRegister(
		DispatchCycles,
		EventsProcessed,
		EventsMerged,
		EventsDropped,
		EventsRetried,
		PostFailures,
		BatchSize,
		StagingOverflows,
		PoolFree,
		PoolUsed,
		PoolPeak,
		AllocFailuresTotal,
		QueueDepth,
		RelayEventsProcessed,
		RelayWakeups,
		RelayEventsLost,
		RelayBatchSize,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and observing its
// duration into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration { return time.Since(t.start) }
