package qmetrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/rs/zerolog"
)

// Collector periodically scrapes pool and queue state into the metrics
// declared in metrics.go, the same Start/Stop/ticker-driven-collect shape
// the teacher's metrics.Collector used against cluster manager state.
type Collector struct {
	mgr      *qevent.Manager
	aos      []*qactive.Active
	interval time.Duration
	stopCh   chan struct{}
	logger   zerolog.Logger

	lastAllocFailures uint64
}

// NewCollector builds a collector over mgr's pools and the given AOs'
// queues.
func NewCollector(mgr *qevent.Manager, aos []*qactive.Active, interval time.Duration) *Collector {
	return &Collector{
		mgr:      mgr,
		aos:      aos,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   qlog.WithComponent("metrics-collector"),
	}
}

// Start spawns the collection loop.
func (c *Collector) Start() {
	go c.run()
}

// Stop ends the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) run() {
	c.collect()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) collect() {
	timer := NewTimer()
	for _, p := range c.mgr.Pools() {
		label := strconv.Itoa(int(p.ID()))
		PoolFree.WithLabelValues(label).Set(float64(p.Free()))
		PoolUsed.WithLabelValues(label).Set(float64(p.Used()))
		PoolPeak.WithLabelValues(label).Set(float64(p.Peak()))
	}
	AllocFailuresTotal.Add(0) // ensure the series exists even at zero
	if n := c.mgr.AllocFailures(); n > c.lastAllocFailures {
		AllocFailuresTotal.Add(float64(n - c.lastAllocFailures))
		c.lastAllocFailures = n
	}
	for _, ao := range c.aos {
		QueueDepth.WithLabelValues(ao.Name).Set(float64(ao.Queue().Len()))
	}
	c.logger.Debug().Dur("scrape_duration", timer.Duration()).Msg(fmt.Sprintf("collected metrics for %d pools, %d AOs", len(c.mgr.Pools()), len(c.aos)))
}
