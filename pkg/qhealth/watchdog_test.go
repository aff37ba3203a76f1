package qhealth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressCheckerIdleIsHealthy(t *testing.T) {
	c := NewProgressChecker(ProgressSource{
		Name:     "idle-ao",
		Progress: func() uint64 { return 0 },
		Pending:  func() int { return 0 },
	})
	res := c.Check(context.Background())
	assert.True(t, res.Healthy)
}

func TestProgressCheckerStalledIsUnhealthy(t *testing.T) {
	progress := uint64(5)
	c := NewProgressChecker(ProgressSource{
		Name:     "stuck-ao",
		Progress: func() uint64 { return progress },
		Pending:  func() int { return 3 },
	})
	first := c.Check(context.Background())
	assert.True(t, first.Healthy, "no prior snapshot, nothing flagged yet")

	second := c.Check(context.Background())
	assert.False(t, second.Healthy, "pending work but progress unchanged")
}

func TestWatchdogReadyRequiresRegisteredCriticalComponents(t *testing.T) {
	w := NewWatchdog(DefaultConfig())
	ready := w.Ready([]string{"dispatcher"})
	assert.Equal(t, "not_ready", ready.Status)

	w.Register(NewProgressChecker(ProgressSource{
		Name:     "dispatcher",
		Progress: func() uint64 { return 1 },
		Pending:  func() int { return 0 },
	}))
	w.checkAll(context.Background())
	ready = w.Ready([]string{"dispatcher"})
	assert.Equal(t, "ready", ready.Status)
}
