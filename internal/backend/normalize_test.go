package backend

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/sbc/internal/transcript"
)

func TestDecodeKeyVariants(t *testing.T) {
	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
	}{
		{"backend", `{"id":12,"group_id":3,"sender_id":42,"sender_name":"ana","content":"hi","created_at":"2025-03-01T10:00:00Z","clientTempId":"c1"}`},
		{"camel", `{"id":"12","groupId":"3","senderID":42,"senderName":"ana","message":"hi","createdAt":"2025-03-01T10:00:00.000Z","client_temp_id":"c1"}`},
		{"epoch seconds", `{"id":12,"group_id":"3","senderId":"42","sender":"ana","text":"hi","timestamp":1740823200,"clientTempID":"c1"}`},
		{"epoch millis", `{"id":12,"group_id":3,"sender_id":42,"username":"ana","content":"hi","created_at":1740823200000,"correlationId":"c1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if m.ServerID != "12" || m.ConversationID != "3" || m.CorrelationID != "c1" {
				t.Errorf("ids: %+v", m)
			}
			if m.SenderID != 42 || m.SenderName != "ana" {
				t.Errorf("sender: %d %q", m.SenderID, m.SenderName)
			}
			if m.Content.Text != "hi" {
				t.Errorf("content: %+v", m.Content)
			}
			if !m.CreatedAt.Equal(want) {
				t.Errorf("created_at: %v, want %v", m.CreatedAt, want)
			}
			if m.Status != transcript.StatusConfirmed {
				t.Errorf("status: %s", m.Status)
			}
		})
	}
}

func TestDecodeFileContent(t *testing.T) {
	asString := `{"id":5,"content":"{\"type\":\"file\",\"url\":\"/uploads/3/a.pdf\",\"filename\":\"a.pdf\",\"size\":99,\"mime\":\"application/pdf\"}"}`
	asObject := `{"id":5,"content":{"type":"file","url":"/uploads/3/a.pdf","filename":"a.pdf","size":99,"mime":"application/pdf"}}`
	want := transcript.File{Filename: "a.pdf", URL: "/uploads/3/a.pdf", Mime: "application/pdf", Size: 99}

	for _, in := range []string{asString, asObject} {
		m, err := Decode([]byte(in))
		if err != nil {
			t.Fatal(err)
		}
		if !m.Content.IsFile() || *m.Content.File != want {
			t.Errorf("got %+v, want %+v", m.Content, want)
		}
	}
}

func TestDecodeEmptyCorrelationIsAbsent(t *testing.T) {
	m, err := Decode([]byte(`{"id":7,"content":"x","clientTempId":""}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.CorrelationID != "" {
		t.Errorf("got %q", m.CorrelationID)
	}
}

func TestDecodeZeroIDIsAbsent(t *testing.T) {
	m, err := Decode([]byte(`{"id":0,"content":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.ServerID != "" {
		t.Errorf("got %q", m.ServerID)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{`not json`, `[1,2]`, `{"type":"typing"}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%s) = %v, want ErrMalformed", in, err)
		}
	}
}

func TestDecodeMissingFieldsStillUsable(t *testing.T) {
	m, err := Decode([]byte(`{"content":"anonymous"}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.ServerID != "" || !m.CreatedAt.IsZero() || m.Content.Text != "anonymous" {
		t.Errorf("got %+v", m)
	}
}
