// Package watermark keeps the per-conversation "last viewed" instants that
// decide what counts as unread. Values are milliseconds since the epoch.
package watermark

import (
	"maps"
	"sync"
	"time"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/localstate"
	"go.uber.org/zap"
)

// StorageKey is the local-state key holding the serialized watermark map.
const StorageKey = "read_watermarks"

// Update is published on the bus after a conversation is marked viewed.
type Update struct {
	Key inbox.ConversationKey
	At  int64
}

// Store is an in-memory view of the persisted watermarks. Reads never touch
// storage after construction; writes go through immediately.
type Store struct {
	mu sync.RWMutex
	// persist orders writes to storage: a snapshot is saved before any later
	// snapshot is taken, so storage never goes back to an older map.
	persist sync.Mutex
	marks   map[string]int64
	value  *localstate.Value[map[string]int64]
	bus    *bus.Bus
	logger *zap.Logger
}

// New loads watermarks from backend. Missing or corrupt data yields an empty
// store.
func New(backend localstate.Backend, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	value := localstate.NewValue[map[string]int64](backend, StorageKey, logger)
	marks, _ := value.Get()
	if marks == nil {
		marks = make(map[string]int64)
	}
	return &Store{marks: marks, value: value, bus: b, logger: logger}
}

// Watermark returns the instant key was last viewed, or 0 if never.
func (s *Store) Watermark(key inbox.ConversationKey) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks[key.String()]
}

// MarkViewed overwrites key's watermark with at. It does not enforce
// monotonicity. A failed write is logged and the in-memory value kept, so
// the conversation reads as seen for the rest of the process.
func (s *Store) MarkViewed(key inbox.ConversationKey, at time.Time) int64 {
	ms := at.UnixMilli()

	s.persist.Lock()
	s.mu.Lock()
	s.marks[key.String()] = ms
	snapshot := maps.Clone(s.marks)
	s.mu.Unlock()

	err := s.value.Set(snapshot)
	s.persist.Unlock()
	if err != nil {
		s.logger.Warn("persist watermark failed", zap.String("conversation", key.String()), zap.Error(err))
	}
	s.bus.Emit(bus.KindWatermarkUpdated, Update{Key: key, At: ms})
	return ms
}

// Clear forgets every watermark, in memory and on disk.
func (s *Store) Clear() error {
	s.persist.Lock()
	defer s.persist.Unlock()
	s.mu.Lock()
	s.marks = make(map[string]int64)
	s.mu.Unlock()
	return s.value.Clear()
}

var _ inbox.WatermarkReader = (*Store)(nil)
