// Package status tracks the daemon's health as seen by clients: whether the
// inbox it serves is live, cached or stale after a failed poll.
package status

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/poll"
)

// State represents a daemon runtime state.
type State string

const (
	Booting State = "BOOTING"
	// Warm serves the cached snapshot from the previous run.
	Warm     State = "WARM"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Stopping State = "STOPPING"
)

var validTransitions = map[State][]State{
	Booting:  {Warm, Ready, Degraded, Stopping},
	Warm:     {Ready, Degraded, Stopping},
	Ready:    {Degraded, Stopping},
	Degraded: {Ready, Stopping},
	Stopping: {},
}

// Change is the payload of daemon.state_changed events.
type Change struct {
	From   State
	To     State
	Reason string
}

// Machine tracks and enforces daemon state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	reason  string
	bus     *bus.Bus
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMachine creates a machine in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the state and the reason given for entering it.
func (m *Machine) Current() (State, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.reason
}

// Transition moves to a new state. Moving to the current state only updates
// the reason and emits nothing.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.reason = reason
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current, m.reason = to, reason
	m.mu.Unlock()

	m.bus.Emit(bus.KindDaemonState, Change{From: from, To: to, Reason: reason})
	return nil
}

// Observe moves the machine in response to an inbox poll outcome. Thread
// polls do not change daemon health.
func (m *Machine) Observe(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case poll.Snapshot:
		_ = m.Transition(Ready, "")
	case poll.Failure:
		if p.Target == "inbox" {
			_ = m.Transition(Degraded, p.Err)
		}
	}
}

// Start follows poll events until Stop.
func (m *Machine) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	ch, unsub := m.bus.Subscribe("poll.", 32)
	go func() {
		defer close(m.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				m.Observe(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends event tracking and enters Stopping.
func (m *Machine) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	_ = m.Transition(Stopping, "")
}
