package store

import (
	"fmt"
	"time"

	"github.com/matheus3301/sbc/internal/transcript"
)

const upsertMessageSQL = `
	INSERT INTO messages (conversation_id, server_id, correlation_id, sender_id, sender_name, content, body, is_file, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(conversation_id, server_id) DO UPDATE SET
		correlation_id = CASE WHEN excluded.correlation_id != '' THEN excluded.correlation_id ELSE messages.correlation_id END,
		sender_id = excluded.sender_id,
		sender_name = excluded.sender_name,
		content = excluded.content,
		body = excluded.body,
		is_file = excluded.is_file,
		created_at = excluded.created_at`

const touchConversationSQL = `
	INSERT INTO conversations (id, last_message_at, last_message_preview, message_count, updated_at)
	VALUES (?, ?, ?, (SELECT COUNT(*) FROM messages WHERE conversation_id = ?), ?)
	ON CONFLICT(id) DO UPDATE SET
		last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
		last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
		message_count = excluded.message_count,
		updated_at = excluded.updated_at`

// UpsertMessage caches one confirmed message (idempotent on conversation +
// server id).
func (db *DB) UpsertMessage(m transcript.Message) error {
	return db.UpsertMessages([]transcript.Message{m})
}

// UpsertMessages caches confirmed messages in one transaction and refreshes
// the conversation summaries they touch. Messages without a server id or
// conversation id are skipped.
func (db *DB) UpsertMessages(msgs []transcript.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	latest := make(map[string]transcript.Message)
	for _, m := range msgs {
		if m.ServerID == "" || m.ConversationID == "" {
			continue
		}
		if _, err := tx.Exec(upsertMessageSQL,
			m.ConversationID, m.ServerID, m.CorrelationID, m.SenderID, m.SenderName,
			m.Content.Encode(), searchText(m.Content), m.Content.IsFile(), toMillis(m.CreatedAt)); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ServerID, err)
		}
		if prev, ok := latest[m.ConversationID]; !ok || !m.CreatedAt.Before(prev.CreatedAt) {
			latest[m.ConversationID] = m
		}
	}

	now := time.Now().UnixMilli()
	for id, m := range latest {
		if _, err := tx.Exec(touchConversationSQL,
			id, toMillis(m.CreatedAt), truncate(m.Content.Preview(), 100), id, now); err != nil {
			return fmt.Errorf("touch conversation %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// CachedTranscript returns the last limit cached messages of a conversation
// in ascending creation order.
func (db *DB) CachedTranscript(conversationID string, limit int) ([]transcript.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT conversation_id, server_id, correlation_id, sender_id, sender_name, content, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []transcript.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, extra ...any) (transcript.Message, error) {
	var (
		m         transcript.Message
		content   string
		createdAt int64
	)
	dest := append([]any{&m.ConversationID, &m.ServerID, &m.CorrelationID, &m.SenderID, &m.SenderName, &content, &createdAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return m, err
	}
	m.Content = transcript.ParseContent(content)
	m.CreatedAt = fromMillis(createdAt)
	m.Status = transcript.StatusConfirmed
	return m, nil
}

func searchText(c transcript.Content) string {
	if c.IsFile() {
		return c.File.Filename
	}
	return c.Text
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
