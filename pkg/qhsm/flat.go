package qhsm

import (
	"context"
	"sync"

	"github.com/cuemby/qfgo/pkg/qevent"
)

// Handler reacts to an event in one state. It returns the state to
// transition to (nil means "stay") and whether the event was handled at
// all (false events are silently ignored, matching the UML convention a
// full HSM would also follow for an unhandled signal).
type Handler func(e *qevent.Event) (next *State, handled bool)

// State is one state of a Flat machine. Entry/Exit are optional and run
// exactly once per transition into/out of the state.
type State struct {
	Name    string
	Entry   func()
	Exit    func()
	Handler Handler
}

// Flat is a minimal, non-hierarchical qhsm.Machine: a single current state
// with a flat transition table. It exists for tests and the cmd/qfctl demo
// AO, not as a production HSM engine — there is no state nesting, no
// history, no orthogonal regions.
type Flat struct {
	mu      sync.Mutex
	initial *State
	current *State
}

// NewFlat returns a Flat machine that starts in initial once Init is
// called.
func NewFlat(initial *State) *Flat {
	return &Flat{initial: initial}
}

func (f *Flat) Init(_ context.Context, _ *qevent.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.initial
	if f.current != nil && f.current.Entry != nil {
		f.current.Entry()
	}
}

func (f *Flat) Dispatch(_ context.Context, e *qevent.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || f.current.Handler == nil {
		return
	}
	next, _ := f.current.Handler(e)
	if next == nil || next == f.current {
		return
	}
	if f.current.Exit != nil {
		f.current.Exit()
	}
	f.current = next
	if next.Entry != nil {
		next.Entry()
	}
}

// Current returns the state the machine is presently in, or nil before
// Init has run.
func (f *Flat) Current() *State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
