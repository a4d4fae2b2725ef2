package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bazaarhq/inbox/internal/localstate"
)

// StateBackend persists localstate values in the local_state table. It
// outlives the daemon process.
type StateBackend struct {
	db *DB
}

// NewStateBackend returns a durable localstate backend over db.
func NewStateBackend(db *DB) *StateBackend {
	return &StateBackend{db: db}
}

func (b *StateBackend) Load(key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRow(`SELECT value FROM local_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, localstate.ErrNotFound
	}
	return value, err
}

func (b *StateBackend) Save(key string, data []byte) error {
	_, err := b.db.Exec(`
		INSERT INTO local_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().UnixMilli())
	return err
}

func (b *StateBackend) Delete(key string) error {
	_, err := b.db.Exec(`DELETE FROM local_state WHERE key = ?`, key)
	return err
}
