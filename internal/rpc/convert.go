package rpc

import (
	"net/url"
	"time"

	"github.com/matheus3301/sbc/internal/transcript"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fields is a convenience builder for request and response structs. Values
// must be string, bool, int, int64, float64, *structpb.Struct or
// []*structpb.Struct; anything else is skipped.
type Fields map[string]any

// Struct renders f.
func (f Fields) Struct() *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(f))}
	for k, v := range f {
		if val := value(v); val != nil {
			out.Fields[k] = val
		}
	}
	return out
}

func value(v any) *structpb.Value {
	switch v := v.(type) {
	case string:
		return structpb.NewStringValue(v)
	case bool:
		return structpb.NewBoolValue(v)
	case int:
		return structpb.NewNumberValue(float64(v))
	case int64:
		return structpb.NewNumberValue(float64(v))
	case float64:
		return structpb.NewNumberValue(v)
	case *structpb.Struct:
		return structpb.NewStructValue(v)
	case []*structpb.Struct:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
		for _, s := range v {
			list.Values = append(list.Values, structpb.NewStructValue(s))
		}
		return structpb.NewListValue(list)
	}
	return nil
}

// Str returns the string field key of s.
func Str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Int returns the numeric field key of s.
func Int(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

// Bool returns the boolean field key of s.
func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// Sub returns the struct field key of s.
func Sub(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

// List returns the struct elements of the list field key of s.
func List(s *structpb.Struct, key string) []*structpb.Struct {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]*structpb.Struct, 0, len(values))
	for _, v := range values {
		if st := v.GetStructValue(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// Millis renders t as unix milliseconds; the zero time is 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Time parses unix milliseconds; 0 is the zero time.
func Time(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// MessageStruct renders a transcript entry.
func MessageStruct(m transcript.Message) *structpb.Struct {
	return Fields{
		"server_id":          m.ServerID,
		"correlation_id":     m.CorrelationID,
		"conversation_id":    m.ConversationID,
		"sender_id":          m.SenderID,
		"sender_name":        m.SenderName,
		"content":            m.Content.Encode(),
		"preview":            m.Content.Preview(),
		"created_at_unix_ms": Millis(m.CreatedAt),
		"status":             string(m.Status),
		"error":              m.Error,
		"from_me":            m.FromMe,
	}.Struct()
}

// MessageFrom parses a rendered transcript entry.
func MessageFrom(s *structpb.Struct) transcript.Message {
	return transcript.Message{
		ServerID:       Str(s, "server_id"),
		CorrelationID:  Str(s, "correlation_id"),
		ConversationID: Str(s, "conversation_id"),
		SenderID:       Int(s, "sender_id"),
		SenderName:     Str(s, "sender_name"),
		Content:        transcript.ParseContent(Str(s, "content")),
		CreatedAt:      Time(Int(s, "created_at_unix_ms")),
		Status:         transcript.Status(Str(s, "status")),
		Error:          Str(s, "error"),
		FromMe:         Bool(s, "from_me"),
	}
}

// MessageList renders a transcript.
func MessageList(msgs []transcript.Message) []*structpb.Struct {
	out := make([]*structpb.Struct, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageStruct(m))
	}
	return out
}

// MessagesFrom parses the list field key of s.
func MessagesFrom(s *structpb.Struct, key string) []transcript.Message {
	items := List(s, key)
	out := make([]transcript.Message, 0, len(items))
	for _, it := range items {
		out = append(out, MessageFrom(it))
	}
	return out
}

// ResolveLink resolves an attachment URL, which the backend reports
// relative to its base URL. Unparseable input is returned as is.
func ResolveLink(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
