package qhealth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/qfgo/pkg/qlog"
	"github.com/rs/zerolog"
)

// Result is the outcome of a single liveness check.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Config controls how often a component is checked and how many
// consecutive failures it takes to call it unhealthy.
type Config struct {
	Interval    time.Duration
	Retries     int
	StartPeriod time.Duration
}

// DefaultConfig returns sensible defaults for watching an in-process loop.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, Retries: 3, StartPeriod: 0}
}

// Status tracks a component's rolling health across checks.
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
}

// NewStatus returns a Status that assumes healthy until proven otherwise.
func NewStatus() *Status {
	return &Status{Healthy: true, StartedAt: time.Now()}
}

// Update folds a new Result into the rolling status.
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
		if s.ConsecutiveFailures >= config.Retries {
			s.Healthy = false
		}
	}
}

// InStartPeriod reports whether the component is still within its startup
// grace period, during which failures don't count.
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}

// Checker is one monitored component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// ProgressSource is what a monitored loop exposes: a monotonically
// increasing counter of work completed, and how much work is currently
// pending. A checker built from one of these only flags a stall when
// Pending() > 0 and Progress() hasn't moved since the previous check.
type ProgressSource struct {
	Name     string
	Progress func() uint64
	Pending  func() int
}

// ProgressChecker is the qhealth.Checker implementation used for every
// component in this module (qactive.Active, qdispatch.Dispatcher,
// qisr.Relay all expose a ProgressSource).
type ProgressChecker struct {
	source ProgressSource
	last   uint64
	seen   bool
}

// NewProgressChecker wraps a ProgressSource as a Checker.
func NewProgressChecker(source ProgressSource) *ProgressChecker {
	return &ProgressChecker{source: source}
}

func (c *ProgressChecker) Name() string { return c.source.Name }

func (c *ProgressChecker) Check(_ context.Context) Result {
	start := time.Now()
	cur := c.source.Progress()
	pending := c.source.Pending()

	healthy := true
	msg := "idle"
	if pending > 0 {
		if c.seen && cur == c.last {
			healthy = false
			msg = fmt.Sprintf("%d items pending, no progress since last check", pending)
		} else {
			msg = fmt.Sprintf("%d items pending, progress advancing", pending)
		}
	}
	c.last = cur
	c.seen = true
	return Result{Healthy: healthy, Message: msg, CheckedAt: start, Duration: time.Since(start)}
}

// Watchdog aggregates the rolling Status of every registered Checker and
// runs them on a ticker, the same Start/Stop/ticker-driven shape as the
// teacher's scheduler/reconciler loops.
type Watchdog struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	statuses  map[string]*Status
	config    Config
	startTime time.Time
	version   string
	stopCh    chan struct{}
	logger    zerolog.Logger
}

// NewWatchdog returns an empty watchdog; Register components before Start.
func NewWatchdog(config Config) *Watchdog {
	return &Watchdog{
		checkers:  make(map[string]Checker),
		statuses:  make(map[string]*Status),
		config:    config,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
		logger:    qlog.WithComponent("watchdog"),
	}
}

// SetVersion sets the version string reported by Health/Ready.
func (w *Watchdog) SetVersion(v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.version = v
}

// Register adds c to the set of monitored components.
func (w *Watchdog) Register(c Checker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkers[c.Name()] = c
	w.statuses[c.Name()] = NewStatus()
}

// Start runs each checker every Config.Interval until ctx is done or Stop
// is called.
func (w *Watchdog) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop ends the watchdog loop.
func (w *Watchdog) Stop() {
	close(w.stopCh)
}

func (w *Watchdog) run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.checkAll(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watchdog) checkAll(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, checker := range w.checkers {
		status := w.statuses[name]
		result := checker.Check(ctx)
		if status.InStartPeriod(w.config) {
			continue
		}
		status.Update(result, w.config)
		if !status.Healthy {
			w.logger.Warn().Str("component", name).Str("message", result.Message).Msg("component unhealthy")
		}
	}
}

// HealthStatus is the JSON-serializable aggregate health report.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// Health aggregates every component's Status into an overall report.
func (w *Watchdog) Health() HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(w.statuses))
	for name, s := range w.statuses {
		if !s.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + s.LastResult.Message
		} else {
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    w.version,
		Uptime:     time.Since(w.startTime).String(),
	}
}

// Ready checks the Status of exactly the named critical components,
// generalizing the teacher's hardcoded critical-component list to
// whatever the caller names (e.g. "dispatcher", "relay").
func (w *Watchdog) Ready(critical []string) HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(critical))

	for _, name := range critical {
		s, exists := w.statuses[name]
		if !exists {
			status = "not_ready"
			message = "waiting for " + name + " to register"
			components[name] = "not registered"
			continue
		}
		if !s.Healthy {
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + s.LastResult.Message
		} else {
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    w.version,
		Uptime:     time.Since(w.startTime).String(),
	}
}
