package qdispatch

import (
	"github.com/cuemby/qfgo/pkg/qactive"
	"github.com/cuemby/qfgo/pkg/qevent"
)

// Strategy is the pluggable policy the dispatcher consults on every
// batch: whether two events in the same batch headed for the same AO can
// be coalesced, how two events compare in priority, whether an event should
// be dropped outright, and which staging level an incoming event belongs
// in. Swapping the active Strategy (Dispatcher.SetStrategy) changes
// dispatch behavior without touching the dispatcher loop itself.
type Strategy struct {
	ShouldMerge      func(prev, next *qevent.Event) bool
	ComparePriority  func(a, b *qevent.Event) int
	ShouldDrop       func(e *qevent.Event, target *qactive.Active) bool
	ClassifyPriority func(e *qevent.Event) Level
}

// DefaultStrategy never drops, merges same-signal events headed for the
// same AO, and classifies everything Normal — the conservative baseline a
// system with no particular load-shedding needs starts from.
var DefaultStrategy = &Strategy{
	ShouldMerge: func(prev, next *qevent.Event) bool {
		return prev.Sig() == next.Sig()
	},
	ComparePriority: func(a, b *qevent.Event) int { return 0 },
	ShouldDrop: func(e *qevent.Event, target *qactive.Active) bool {
		return false
	},
	ClassifyPriority: func(e *qevent.Event) Level {
		return Normal
	},
}

// HighPerfStrategy trades strict delivery for throughput under load: it
// only merges events both sides explicitly marked FlagMergeable, sheds
// non-critical load once a target queue is over 80% full, and classifies
// by the FlagCritical flag and numeric priority thresholds rather than
// treating everything as Normal.
var HighPerfStrategy = &Strategy{
	ShouldMerge: func(prev, next *qevent.Event) bool {
		pe, pok := prev.Extended()
		ne, nok := next.Extended()
		if !pok || !nok {
			return false
		}
		return prev.Sig() == next.Sig() &&
			pe.Flags&qevent.FlagMergeable != 0 &&
			ne.Flags&qevent.FlagMergeable != 0
	},
	ShouldDrop: func(e *qevent.Event, target *qactive.Active) bool {
		ext, ok := e.Extended()
		if !ok {
			return false
		}
		if ext.Flags&qevent.FlagCritical != 0 {
			return false
		}
		q := target.Queue()
		return q.Len()*10 > q.Capacity()*8
	},
	ClassifyPriority: func(e *qevent.Event) Level {
		ext, ok := e.Extended()
		if !ok {
			return Normal
		}
		if ext.Flags&qevent.FlagCritical != 0 || ext.Priority > 128 {
			return High
		}
		if ext.Priority > 64 {
			return Normal
		}
		return Low
	},
	ComparePriority: func(a, b *qevent.Event) int {
		ae, _ := a.Extended()
		be, _ := b.Extended()
		var ap, bp uint8
		if ae != nil {
			ap = ae.Priority
		}
		if be != nil {
			bp = be.Priority
		}
		switch {
		case ap > bp:
			return 1
		case ap < bp:
			return -1
		default:
			return 0
		}
	},
}
