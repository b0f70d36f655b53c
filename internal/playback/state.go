package playback

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrInvalidTransition = errors.New("invalid playback transition")

// State is the authoritative playback state.
type State int

const (
	Stopped State = iota
	Loading
	Playing
	Paused
)

// States lists every state, in declaration order.
var States = []State{Stopped, Loading, Playing, Paused}

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger is an event that may move the machine.
type Trigger int

const (
	TriggerPlay Trigger = iota
	TriggerLookahead
	TriggerUnderrun
	TriggerPause
	TriggerFailSafe
	TriggerStop
	TriggerFatal
	TriggerReset
)

func (t Trigger) String() string {
	switch t {
	case TriggerPlay:
		return "play"
	case TriggerLookahead:
		return "lookahead"
	case TriggerUnderrun:
		return "underrun"
	case TriggerPause:
		return "pause"
	case TriggerFailSafe:
		return "failsafe"
	case TriggerStop:
		return "stop"
	case TriggerFatal:
		return "fatal"
	case TriggerReset:
		return "reset"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

type rule struct {
	from []State // nil means any state
	to   State
}

var rules = map[Trigger]rule{
	TriggerPlay:      {from: []State{Stopped, Paused}, to: Loading},
	TriggerLookahead: {from: []State{Loading}, to: Playing},
	TriggerUnderrun:  {from: []State{Loading, Playing}, to: Loading},
	TriggerPause:     {from: []State{Playing}, to: Paused},
	TriggerFailSafe:  {from: []State{Loading, Playing}, to: Paused},
	TriggerStop:      {from: []State{Loading, Playing, Paused}, to: Stopped},
	TriggerFatal:     {to: Stopped},
	TriggerReset:     {to: Paused},
}

// Transition describes one accepted trigger. From may equal To.
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// Machine holds the playback state and applies the transition table.
// Observers run synchronously after each accepted trigger, outside the lock.
type Machine struct {
	mu        sync.Mutex
	state     State
	observers []func(Transition)
}

// NewMachine returns a machine in Stopped.
func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether t is valid from the current state.
func (m *Machine) Can(t Trigger) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := allowed(t, m.state)
	return ok
}

func allowed(t Trigger, from State) (State, bool) {
	r, ok := rules[t]
	if !ok {
		return from, false
	}
	if r.from != nil && !slices.Contains(r.from, from) {
		return from, false
	}
	return r.to, true
}

// Fire applies t. Invalid triggers change nothing and return
// ErrInvalidTransition.
func (m *Machine) Fire(t Trigger) (Transition, error) {
	m.mu.Lock()
	to, ok := allowed(t, m.state)
	if !ok {
		from := m.state
		m.mu.Unlock()
		return Transition{From: from, To: from, Trigger: t},
			fmt.Errorf("%w: %v from %v", ErrInvalidTransition, t, from)
	}
	tr := Transition{From: m.state, To: to, Trigger: t}
	m.state = to
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(tr)
	}
	return tr, nil
}

// Observe registers fn to run after every accepted trigger.
func (m *Machine) Observe(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(slices.Clip(m.observers), fn)
}
