package store

import (
	"database/sql"
	"errors"
	"time"
)

// MarkOpened records that a conversation was opened.
func (db *DB) MarkOpened(conversationID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, opened_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at`,
		conversationID, now, now)
	return err
}

// ListConversations returns cached conversations, most recently opened first.
func (db *DB) ListConversations(limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, last_message_at, last_message_preview, message_count, opened_at
		FROM conversations
		ORDER BY opened_at DESC, last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.LastMessageAt, &c.LastMessagePreview, &c.MessageCount, &c.OpenedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns one conversation summary, or nil if unknown.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, last_message_at, last_message_preview, message_count, opened_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.LastMessageAt, &c.LastMessagePreview, &c.MessageCount, &c.OpenedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
