package watermark

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/localstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct{ *localstate.Memory }

func (failingBackend) Save(string, []byte) error { return errors.New("quota exceeded") }

// gatedBackend holds its first Save until release is closed.
type gatedBackend struct {
	*localstate.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) Save(key string, data []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Memory.Save(key, data)
}

var keyB = inbox.ConversationKey{ListingID: "L1", Counterparty: "B"}

func TestUnsetWatermarkIsZero(t *testing.T) {
	s := New(localstate.NewMemory(), nil, nil)
	assert.Equal(t, int64(0), s.Watermark(keyB))
}

func TestMarkViewedPersistsAcrossReload(t *testing.T) {
	backend := localstate.NewMemory()
	s := New(backend, nil, nil)

	got := s.MarkViewed(keyB, time.UnixMilli(250))
	assert.Equal(t, int64(250), got)

	raw, err := backend.Load(StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"L1-B":250}`, string(raw))

	reloaded := New(backend, nil, nil)
	assert.Equal(t, int64(250), reloaded.Watermark(keyB))
}

func TestMarkViewedOverwritesUnconditionally(t *testing.T) {
	s := New(localstate.NewMemory(), nil, nil)
	s.MarkViewed(keyB, time.UnixMilli(500))
	s.MarkViewed(keyB, time.UnixMilli(300))
	assert.Equal(t, int64(300), s.Watermark(keyB))
}

func TestCorruptStorageReadsAsEmpty(t *testing.T) {
	backend := localstate.NewMemory()
	require.NoError(t, backend.Save(StorageKey, []byte("<<garbage>>")))

	s := New(backend, nil, nil)
	assert.Equal(t, int64(0), s.Watermark(keyB))

	s.MarkViewed(keyB, time.UnixMilli(10))
	assert.Equal(t, int64(10), New(backend, nil, nil).Watermark(keyB))
}

func TestPersistFailureKeepsMemoryValue(t *testing.T) {
	s := New(failingBackend{localstate.NewMemory()}, nil, nil)
	s.MarkViewed(keyB, time.UnixMilli(99))
	assert.Equal(t, int64(99), s.Watermark(keyB))
}

func TestMarkViewedPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("watermark.", 1)
	defer unsub()

	s := New(localstate.NewMemory(), b, nil)
	s.MarkViewed(keyB, time.UnixMilli(7))

	select {
	case evt := <-ch:
		assert.Equal(t, Update{Key: keyB, At: 7}, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no watermark event")
	}
}

func TestClear(t *testing.T) {
	backend := localstate.NewMemory()
	s := New(backend, nil, nil)
	s.MarkViewed(keyB, time.UnixMilli(1))

	require.NoError(t, s.Clear())
	assert.Equal(t, int64(0), s.Watermark(keyB))
	assert.Equal(t, int64(0), New(backend, nil, nil).Watermark(keyB))
}

func TestUnreadDropsAfterViewing(t *testing.T) {
	msgs := []inbox.Message{
		{ID: "1", ListingID: "L1", Sender: inbox.Registered("B"), Receiver: "A", Timestamp: 200 * 1_000_000},
		{ID: "2", ListingID: "L1", Sender: inbox.Registered("B"), Receiver: "A", Timestamp: 300 * 1_000_000},
	}
	s := New(localstate.NewMemory(), nil, nil)
	assert.Equal(t, 2, inbox.CountUnread(msgs, "A", s))

	s.MarkViewed(keyB, time.UnixMilli(250))
	assert.Equal(t, 1, inbox.CountUnread(msgs, "A", s))

	s.MarkViewed(keyB, time.UnixMilli(300))
	assert.Equal(t, 0, inbox.CountUnread(msgs, "A", s))
}

func TestConcurrentMarksPersistInOrder(t *testing.T) {
	backend := &gatedBackend{Memory: localstate.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	s := New(backend, nil, nil)
	keyC := inbox.ConversationKey{ListingID: "L2", Counterparty: "C"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.MarkViewed(keyB, time.UnixMilli(100))
	}()
	<-backend.entered
	go func() {
		defer wg.Done()
		s.MarkViewed(keyC, time.UnixMilli(200))
	}()
	// Give the second mark time to reach storage if it is not held back.
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	reloaded := New(backend.Memory, nil, nil)
	assert.Equal(t, int64(100), reloaded.Watermark(keyB))
	assert.Equal(t, int64(200), reloaded.Watermark(keyC))
}
