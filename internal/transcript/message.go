package transcript

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Status is the delivery state of a transcript entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Identity is the local user on whose behalf messages are sent.
type Identity struct {
	UserID int64
	Name   string
}

// File describes an attachment carried as message content.
type File struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Mime     string `json:"mime"`
	Size     int64  `json:"size"`
}

// Content is either plain text or a file attachment.
type Content struct {
	Text string
	File *File
}

// Text returns plain-text content.
func Text(s string) Content {
	return Content{Text: s}
}

// Attachment returns file content.
func Attachment(f File) Content {
	return Content{File: &f}
}

// IsFile reports whether the content is a file attachment.
func (c Content) IsFile() bool {
	return c.File != nil
}

// Equal compares two contents field by field.
func (c Content) Equal(o Content) bool {
	if c.IsFile() != o.IsFile() {
		return false
	}
	if c.IsFile() {
		return *c.File == *o.File
	}
	return c.Text == o.Text
}

// Preview returns a one-line human readable form.
func (c Content) Preview() string {
	if c.IsFile() {
		return "[file] " + c.File.Filename
	}
	return c.Text
}

type fileEnvelope struct {
	Type string `json:"type"`
	File
}

// Encode returns the backend representation: text as-is, files as a JSON
// object tagged with "type":"file".
func (c Content) Encode() string {
	if !c.IsFile() {
		return c.Text
	}
	b, err := json.Marshal(fileEnvelope{Type: "file", File: *c.File})
	if err != nil {
		return c.File.Filename
	}
	return string(b)
}

// ParseContent is the inverse of Encode. Strings that are not a JSON file
// envelope are treated as text.
func ParseContent(s string) Content {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return Text(s)
	}
	var env fileEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Type != "file" {
		return Text(s)
	}
	return Attachment(env.File)
}

// Message is one entry of a conversation transcript.
type Message struct {
	ServerID       string
	CorrelationID  string
	ConversationID string
	SenderID       int64
	SenderName     string
	Content        Content
	CreatedAt      time.Time
	Status         Status
	Error          string

	// FromMe is derived by the store from the current user id.
	FromMe bool
}

// SenderKey identifies the author for duplicate detection: the numeric id
// when known, the display name otherwise.
func (m Message) SenderKey() string {
	if m.SenderID != 0 {
		return "id:" + strconv.FormatInt(m.SenderID, 10)
	}
	return "name:" + m.SenderName
}

// Similar reports whether two messages share author, content and creation
// time. Messages without a creation time are never similar.
func (m Message) Similar(o Message) bool {
	if m.CreatedAt.IsZero() || o.CreatedAt.IsZero() {
		return false
	}
	return m.SenderKey() == o.SenderKey() &&
		m.CreatedAt.Equal(o.CreatedAt) &&
		m.Content.Equal(o.Content)
}

// Key returns the identity signals of the message.
func (m Message) Key() MatchKey {
	return MatchKey{ServerID: m.ServerID, CorrelationID: m.CorrelationID}
}
