package store

import "github.com/bazaarhq/inbox/internal/inbox"

// SearchResult is a cached message matching a full-text query.
type SearchResult struct {
	Message inbox.Message
	Snippet string
}

// SearchMessages runs an FTS5 query over owner's cached messages, optionally
// restricted to one listing. Deleted messages never match.
func (db *DB) SearchMessages(owner inbox.Identity, query string, listing inbox.ListingID, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.listing_id, m.sender_id, m.sender_name, m.sender_ref, m.receiver_id,
		       m.content, m.timestamp_ns, m.is_deleted, m.is_edited,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.seq = f.rowid
		WHERE messages_fts MATCH ? AND m.owner = ? AND m.is_deleted = 0`
	args := []any{query, owner}
	if listing != "" {
		q += " AND m.listing_id = ?"
		args = append(args, listing)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := scanMessage(rows, &r.Message, &r.Snippet); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
