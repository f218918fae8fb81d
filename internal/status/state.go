// Package status tracks the push channel connection state. Transitions are
// driven only by the connection manager and published on the bus so a UI can
// render a connectivity indicator.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/scribblechat/scribble/internal/bus"
)

// State is the push channel connection state.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Open         State = "open"
	Closed       State = "closed"
	Error        State = "error"
)

// ShouldReconnect reports whether a state warrants a reconnect attempt while
// a session user is still current.
func ShouldReconnect(s State) bool {
	return s == Closed || s == Error
}

// validTransitions defines allowed state transitions. Disconnected is the
// intentional-teardown state and is reachable from anywhere.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Open, Closed, Error, Disconnected},
	Open:         {Connecting, Closed, Error, Disconnected},
	Closed:       {Connecting, Disconnected},
	Error:        {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	if m.current == to {
		m.mu.Unlock()
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(bus.KindConnectionStatus, StatusChange{From: from, To: to}))
	}
	return nil
}

// StatusChange is the payload for connection status events.
type StatusChange struct {
	From State
	To   State
}
