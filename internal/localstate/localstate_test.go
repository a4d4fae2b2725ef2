package localstate

import (
	"errors"
	"testing"
)

type brokenBackend struct{ *Memory }

func (b *brokenBackend) Load(string) ([]byte, error) { return nil, errors.New("disk on fire") }

func TestValueRoundTrip(t *testing.T) {
	v := NewValue[map[string]int64](NewMemory(), "marks", nil)

	if _, ok := v.Get(); ok {
		t.Fatal("Get() on empty backend should report absent")
	}
	if err := v.Set(map[string]int64{"L1-B": 250}); err != nil {
		t.Fatal(err)
	}
	got, ok := v.Get()
	if !ok || got["L1-B"] != 250 {
		t.Errorf("Get() = %v, %v; want L1-B=250", got, ok)
	}
	if err := v.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := v.Get(); ok {
		t.Error("Get() after Clear() should report absent")
	}
}

func TestCorruptDataReadsAsEmpty(t *testing.T) {
	mem := NewMemory()
	_ = mem.Save("marks", []byte("{not json"))
	v := NewValue[map[string]int64](mem, "marks", nil)

	got, ok := v.Get()
	if ok || got != nil {
		t.Errorf("Get() = %v, %v; want nil, false for corrupt data", got, ok)
	}
}

func TestUnreadableBackendReadsAsEmpty(t *testing.T) {
	v := NewValue[string](&brokenBackend{Memory: NewMemory()}, "guest", nil)

	got, ok := v.Get()
	if ok || got != "" {
		t.Errorf("Get() = %q, %v; want empty, false", got, ok)
	}
}

func TestMemoryIsolatesCallerSlices(t *testing.T) {
	mem := NewMemory()
	buf := []byte(`"a"`)
	_ = mem.Save("k", buf)
	buf[1] = 'z'

	v := NewValue[string](mem, "k", nil)
	got, _ := v.Get()
	if got != "a" {
		t.Errorf("Get() = %q, want a", got)
	}
}
