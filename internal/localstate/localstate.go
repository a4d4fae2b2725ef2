// Package localstate provides small typed values persisted as JSON blobs in a
// key-value backend. Unreadable or corrupt data is treated as absent: reads
// never fail, they fall back to the zero value and log.
package localstate

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrNotFound is returned by backends for missing keys.
var ErrNotFound = errors.New("localstate: key not found")

// Backend stores raw blobs by key.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(key string) error
}

// Value is one typed blob under a fixed key.
type Value[T any] struct {
	backend Backend
	key     string
	logger  *zap.Logger
}

// NewValue binds a typed value to key in backend.
func NewValue[T any](backend Backend, key string, logger *zap.Logger) *Value[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Value[T]{backend: backend, key: key, logger: logger}
}

// Get returns the stored value and whether one was present and readable.
func (v *Value[T]) Get() (T, bool) {
	var zero T
	data, err := v.backend.Load(v.key)
	if errors.Is(err, ErrNotFound) {
		return zero, false
	}
	if err != nil {
		v.logger.Warn("local state unreadable, treating as empty", zap.String("key", v.key), zap.Error(err))
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		v.logger.Warn("local state corrupt, treating as empty", zap.String("key", v.key), zap.Error(err))
		return zero, false
	}
	return out, true
}

// Set replaces the stored value.
func (v *Value[T]) Set(val T) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return v.backend.Save(v.key, data)
}

// Clear removes the stored value. Clearing a missing key is not an error.
func (v *Value[T]) Clear() error {
	err := v.backend.Delete(v.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Memory is a process-lifetime backend. It is what "session scoped" means
// for the daemon: gone when the process exits.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
