package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bazaarhq/inbox/internal/inbox"
)

// Snapshot is the last inbox fetch persisted for one viewer.
type Snapshot struct {
	Messages  []inbox.Message
	FetchedAt time.Time
}

const messageColumns = `id, listing_id, sender_id, sender_name, sender_ref, receiver_id, content, timestamp_ns, is_deleted, is_edited`

// ReplaceSnapshot swaps owner's cached messages for msgs in one transaction.
// Order is kept so that a warm start reduces exactly like the live fetch.
func (db *DB) ReplaceSnapshot(owner inbox.Identity, msgs []inbox.Message, fetchedAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO messages (owner, ` + messageColumns + `, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, id) DO UPDATE SET
			content = excluded.content,
			is_deleted = excluded.is_deleted,
			is_edited = excluded.is_edited,
			timestamp_ns = excluded.timestamp_ns`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	at := fetchedAt.UnixMilli()
	for _, m := range msgs {
		var senderID sql.NullString
		if id, ok := m.Sender.Identity(); ok {
			senderID = sql.NullString{String: string(id), Valid: true}
		}
		if _, err := stmt.Exec(owner, m.ID, m.ListingID, senderID, m.Sender.DisplayName(), m.Sender.Ref(),
			m.Receiver, m.Content, m.Timestamp, m.IsDeleted, m.IsEdited, at); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadSnapshot returns owner's cached messages in fetch order. An owner with
// nothing cached gets an empty snapshot and a zero FetchedAt.
func (db *DB) LoadSnapshot(owner inbox.Identity) (*Snapshot, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`, fetched_at
		FROM messages
		WHERE owner = ?
		ORDER BY seq`, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snap := &Snapshot{}
	var fetchedAt int64
	for rows.Next() {
		var (
			m  inbox.Message
			at int64
		)
		if err := scanMessage(rows, &m, &at); err != nil {
			return nil, err
		}
		if at > fetchedAt {
			fetchedAt = at
		}
		snap.Messages = append(snap.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if fetchedAt > 0 {
		snap.FetchedAt = time.UnixMilli(fetchedAt)
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, m *inbox.Message, extra ...any) error {
	var (
		senderID   sql.NullString
		senderName string
		senderRef  string
	)
	dest := append([]any{&m.ID, &m.ListingID, &senderID, &senderName, &senderRef,
		&m.Receiver, &m.Content, &m.Timestamp, &m.IsDeleted, &m.IsEdited}, extra...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	if senderID.Valid {
		m.Sender = inbox.Registered(inbox.Identity(senderID.String))
	} else {
		m.Sender = inbox.Anonymous(senderName, senderRef)
	}
	return nil
}
