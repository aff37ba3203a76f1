package qhsm

import (
	"context"
	"testing"

	"github.com/cuemby/qfgo/pkg/qevent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatTransitions(t *testing.T) {
	var entries, exits []string

	var on, off *State
	on = &State{
		Name:  "on",
		Entry: func() { entries = append(entries, "on") },
		Exit:  func() { exits = append(exits, "on") },
		Handler: func(e *qevent.Event) (*State, bool) {
			if e.Sig() == qevent.SigUser {
				return off, true
			}
			return nil, false
		},
	}
	off = &State{
		Name:  "off",
		Entry: func() { entries = append(entries, "off") },
		Exit:  func() { exits = append(exits, "off") },
		Handler: func(e *qevent.Event) (*State, bool) {
			if e.Sig() == qevent.SigUser {
				return on, true
			}
			return nil, false
		},
	}

	m := NewFlat(on)
	ctx := context.Background()
	m.Init(ctx, nil)
	require.Equal(t, on, m.Current())
	assert.Equal(t, []string{"on"}, entries)

	m.Dispatch(ctx, qevent.NewStatic(qevent.SigUser))
	assert.Equal(t, off, m.Current())
	assert.Equal(t, []string{"on", "off"}, entries)
	assert.Equal(t, []string{"on"}, exits)

	m.Dispatch(ctx, qevent.NewStatic(qevent.SigEntry)) // unhandled signal, no transition
	assert.Equal(t, off, m.Current())
}
