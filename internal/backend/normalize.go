package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/sbc/internal/transcript"
)

// ErrMalformed is returned for payloads that carry neither an id nor content.
var ErrMalformed = errors.New("malformed message")

// Key variants observed on the wire, in lookup order.
var (
	idKeys          = []string{"id", "ID", "server_id", "serverId", "message_id"}
	correlationKeys = []string{"clientTempId", "client_temp_id", "clientTempID", "correlationId", "correlation_id"}
	senderIDKeys    = []string{"sender_id", "senderID", "senderId", "user_id"}
	senderNameKeys  = []string{"sender_name", "senderName", "sender", "username"}
	contentKeys     = []string{"content", "message", "text"}
	createdAtKeys   = []string{"created_at", "createdAt", "timestamp"}
	groupKeys       = []string{"group_id", "groupId", "groupID"}
)

// Decode parses one JSON message object into the canonical type.
func Decode(data []byte) (transcript.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return transcript.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Normalize(raw)
}

// Normalize converts a decoded wire object into a confirmed Message. It is
// the only place that knows about field name variants.
func Normalize(raw map[string]any) (transcript.Message, error) {
	m := transcript.Message{
		ServerID:       idString(lookup(raw, idKeys)),
		CorrelationID:  str(lookup(raw, correlationKeys)),
		ConversationID: idString(lookup(raw, groupKeys)),
		SenderID:       integer(lookup(raw, senderIDKeys)),
		SenderName:     str(lookup(raw, senderNameKeys)),
		CreatedAt:      timestamp(lookup(raw, createdAtKeys)),
		Status:         transcript.StatusConfirmed,
	}
	c, ok := content(lookup(raw, contentKeys))
	if m.ServerID == "" && !ok {
		return transcript.Message{}, ErrMalformed
	}
	m.Content = c
	return m, nil
}

func lookup(raw map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	}
	return ""
}

// idString renders ids that may arrive as numbers or strings. Zero is
// treated as absent: the backend reports 0 when it failed to persist.
func idString(v any) string {
	var s string
	switch x := v.(type) {
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = str(v)
	}
	if s == "0" {
		return ""
	}
	return s
}

func integer(v any) int64 {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(x)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func content(v any) (transcript.Content, bool) {
	switch x := v.(type) {
	case string:
		return transcript.ParseContent(x), true
	case map[string]any:
		if str(x["type"]) != "file" {
			break
		}
		return transcript.Attachment(transcript.File{
			Filename: str(x["filename"]),
			URL:      str(x["url"]),
			Mime:     str(x["mime"]),
			Size:     integer(x["size"]),
		}), true
	case nil:
		return transcript.Content{}, false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return transcript.Content{}, false
	}
	return transcript.Text(string(b)), true
}

func timestamp(v any) time.Time {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(n)
		}
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return epoch(f)
		}
	case float64:
		return epoch(x)
	}
	return time.Time{}
}

// epoch accepts seconds or milliseconds since the Unix epoch.
func epoch(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n >= 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
