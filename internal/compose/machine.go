package compose

import (
	"fmt"
	"slices"
	"sync"

	"github.com/bazaarhq/inbox/internal/bus"
)

// State is where a composer is in the send cycle.
type State string

const (
	Idle         State = "IDLE"
	AwaitingName State = "AWAITING_NAME"
	Sending      State = "SENDING"
	Sent         State = "SENT"
	Failed       State = "FAILED"
)

var validTransitions = map[State][]State{
	Idle:         {AwaitingName, Sending},
	AwaitingName: {Sending, Idle},
	Sending:      {Sent, Failed},
	Sent:         {Idle},
	Failed:       {Sending, Idle},
}

// StateChange is the payload of compose.state_changed events.
type StateChange struct {
	Thread ThreadKey
	From   State
	To     State
}

// Machine enforces composer state transitions for one thread.
type Machine struct {
	mu      sync.RWMutex
	current State
	thread  ThreadKey
	bus     *bus.Bus
}

// NewMachine starts in Idle.
func NewMachine(thread ThreadKey, b *bus.Bus) *Machine {
	return &Machine{current: Idle, thread: thread, bus: b}
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to the given state or reports why it cannot.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindComposeState, StateChange{Thread: m.thread, From: from, To: to})
	return nil
}
