package bus

import (
	"testing"
	"time"
)

func TestEmitStampsAndDelivers(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("poll.", 10)
	defer unsub()

	before := time.Now()
	b.Emit(KindInboxSnapshot, 42)

	select {
	case evt := <-ch:
		if evt.Kind != KindInboxSnapshot {
			t.Errorf("got kind %q, want %s", evt.Kind, KindInboxSnapshot)
		}
		if evt.Payload != 42 {
			t.Errorf("payload = %v, want 42", evt.Payload)
		}
		if evt.Timestamp.Before(before) {
			t.Error("timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("compose.", 10)
	defer unsub()

	b.Emit(KindWatermarkUpdated, nil)
	b.Emit(KindComposeState, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindComposeState {
			t.Errorf("got kind %q, want %s", evt.Kind, KindComposeState)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyNamespaceSeesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Emit(KindPollFailed, nil)
	b.Emit(KindLocalCleared, nil)

	if got := len(ch); got != 2 {
		t.Errorf("buffered %d events, want 2", got)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("poll.", 10)
	unsub()
	unsub()

	b.Emit(KindInboxSnapshot, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("poll.", 1)
	defer unsub()

	b.Emit(KindInboxSnapshot, 1)
	b.Emit(KindInboxSnapshot, 2)

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
}

func TestNilBusDrops(t *testing.T) {
	var b *Bus
	b.Emit(KindPollFailed, nil)
}
