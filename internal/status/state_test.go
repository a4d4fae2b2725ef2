package status

import (
	"context"
	"testing"
	"time"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/poll"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if s, _ := m.Current(); s != Booting {
		t.Errorf("initial state = %s, want BOOTING", s)
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{Warm, Ready}},
		{[]State{Warm, Degraded, Ready}},
		{[]State{Ready, Degraded, Ready, Stopping}},
		{[]State{Degraded, Stopping}},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		for _, s := range tt.path {
			if err := m.Transition(s, ""); err != nil {
				t.Errorf("path %v: %v", tt.path, err)
			}
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Ready, "")
	if err := m.Transition(Warm, ""); err == nil {
		t.Error("READY -> WARM should fail")
	}
	_ = m.Transition(Stopping, "")
	if err := m.Transition(Ready, ""); err == nil {
		t.Error("STOPPING is terminal")
	}
}

func TestSameStateUpdatesReasonQuietly(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 4)
	defer unsub()
	m := NewMachine(b)

	_ = m.Transition(Degraded, "timeout")
	<-ch
	_ = m.Transition(Degraded, "connection refused")
	if _, reason := m.Current(); reason != "connection refused" {
		t.Errorf("reason = %q", reason)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %+v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 4)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Warm, "cache"); err != nil {
		t.Fatal(err)
	}
	evt := <-ch
	if evt.Kind != bus.KindDaemonState {
		t.Errorf("kind = %q", evt.Kind)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != Booting || change.To != Warm || change.Reason != "cache" {
		t.Errorf("change = %+v", change)
	}
}

func TestObservePollOutcomes(t *testing.T) {
	m := NewMachine(nil)

	m.Observe(bus.Event{Kind: bus.KindPollFailed, Payload: poll.Failure{Target: "thread", Err: "x"}})
	if s, _ := m.Current(); s != Booting {
		t.Errorf("thread failure moved state to %s", s)
	}

	m.Observe(bus.Event{Kind: bus.KindPollFailed, Payload: poll.Failure{Target: "inbox", Err: "unavailable"}})
	if s, reason := m.Current(); s != Degraded || reason != "unavailable" {
		t.Errorf("state = %s (%s), want DEGRADED", s, reason)
	}

	m.Observe(bus.Event{Kind: bus.KindInboxSnapshot, Payload: poll.Snapshot{Seq: 1}})
	if s, _ := m.Current(); s != Ready {
		t.Errorf("state = %s, want READY", s)
	}
}

func TestStartFollowsBus(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	m.Start(context.Background())

	b.Emit(bus.KindInboxSnapshot, poll.Snapshot{Seq: 1})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if s, _ := m.Current(); s == Ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("machine never became READY")
		}
		time.Sleep(2 * time.Millisecond)
	}

	m.Stop()
	if s, _ := m.Current(); s != Stopping {
		t.Errorf("state after Stop = %s", s)
	}
}
