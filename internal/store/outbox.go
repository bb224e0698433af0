package store

import (
	"time"

	"github.com/matheus3301/sbc/internal/transcript"
)

// QueueOutbox journals a new send attempt as pending.
func (db *DB) QueueOutbox(correlationID, conversationID string, content transcript.Content) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (correlation_id, conversation_id, content, status, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', ?, ?)`,
		correlationID, conversationID, content.Encode(), now, now)
	return err
}

// MarkOutboxSent records the server id assigned to a send attempt.
func (db *DB) MarkOutboxSent(correlationID, serverID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_id = ?, error_message = '', updated_at = ? WHERE correlation_id = ?`, serverID, now, correlationID)
	return err
}

// MarkOutboxFailed records the error of a failed send attempt.
func (db *DB) MarkOutboxFailed(correlationID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE correlation_id = ? AND status = 'pending'`, errMsg, now, correlationID)
	return err
}

// ListOutbox returns the send journal of a conversation, newest first. An
// empty status matches every entry.
func (db *DB) ListOutbox(conversationID, status string, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, correlation_id, conversation_id, content, status, error_message, server_id, created_at, updated_at
		FROM outbox WHERE 1 = 1`
	var args []any
	if conversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			content string
		)
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.ConversationID, &content, &e.Status, &e.ErrorMessage, &e.ServerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Content = transcript.ParseContent(content)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
