package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrInvalidTransition is returned for a state change the link cannot make.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the connection state of the sample feed.
type State int

const (
	Disconnected State = iota
	Connecting
	Streaming
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Streaming:
		return "Streaming"
	case Reconnecting:
		return "Reconnecting"
	default:
		return "Disconnected"
	}
}

var allowed = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Streaming, Reconnecting, Disconnected},
	Streaming:    {Reconnecting, Disconnected},
	Reconnecting: {Connecting, Streaming, Disconnected},
}

// CanTransition reports whether from -> to is a legal change.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks the current state and notifies listeners on change.
type Machine struct {
	mu        sync.Mutex
	state     State
	listeners []func(from, to State)
}

// NewMachine starts in Disconnected.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers a listener called after every successful transition.
// Listeners run on the caller's goroutine and must not block.
func (m *Machine) OnChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Transition moves to the given state. Moving to the current state is a
// no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(from, to)
	}
	return nil
}
