package store

import "github.com/matheus3301/sbc/internal/transcript"

// Conversation summarizes a cached conversation.
type Conversation struct {
	ID                 string
	LastMessageAt      int64
	LastMessagePreview string
	MessageCount       int
	OpenedAt           int64
}

// OutboxEntry is the journal record of one send attempt.
type OutboxEntry struct {
	ID             int64
	CorrelationID  string
	ConversationID string
	Content        transcript.Content
	Status         string // pending, sent, failed
	ErrorMessage   string
	ServerID       string
	CreatedAt      int64
	UpdatedAt      int64
}

// SearchResult holds a cached message with a search snippet.
type SearchResult struct {
	Message transcript.Message
	Snippet string
}
