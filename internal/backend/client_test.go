package backend

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/sbc/internal/backend/backendtest"
)

func newClient(t *testing.T, srv *backendtest.Server, token string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL, Token: token, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "://x"} {
		if _, err := New(Config{BaseURL: u}); err == nil {
			t.Errorf("New(%q) succeeded", u)
		}
	}
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		base, feed, token, want string
	}{
		{"http://h:8080", "", "", "ws://h:8080/ws/3"},
		{"https://h/", "", "tok", "wss://h/ws/3?token=tok"},
		{"http://h", "ws://other:9000", "", "ws://other:9000/ws/3"},
	}
	for _, tt := range tests {
		c, err := New(Config{BaseURL: tt.base, FeedURL: tt.feed, Token: tt.token})
		if err != nil {
			t.Fatal(err)
		}
		if got := c.FeedURL("3"); got != tt.want {
			t.Errorf("FeedURL() = %q, want %q", got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://h:8080"})
	if got := c.ResolveURL("/uploads/3/a.pdf"); got != "http://h:8080/uploads/3/a.pdf" {
		t.Errorf("got %q", got)
	}
	if got := c.ResolveURL("https://cdn/x"); got != "https://cdn/x" {
		t.Errorf("got %q", got)
	}
}

func TestHistory(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.Seed("3",
		backendtest.Msg{SenderID: 42, SenderName: "ana", Content: "one"},
		backendtest.Msg{SenderID: 43, SenderName: "bo", Content: "two"},
	)

	msgs, err := newClient(t, srv, "").History(context.Background(), "3")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ServerID != "1" || msgs[0].Content.Text != "one" || msgs[1].ServerID != "2" {
		t.Errorf("got %+v", msgs)
	}
	if msgs[0].ConversationID != "3" {
		t.Errorf("conversation tag: %q", msgs[0].ConversationID)
	}
}

func TestUnauthorized(t *testing.T) {
	srv := backendtest.New()
	srv.Token = "secret"
	defer srv.Close()

	_, err := newClient(t, srv, "wrong").History(context.Background(), "3")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("got %v, want APIError 401", err)
	}

	if _, err := newClient(t, srv, "secret").History(context.Background(), "3"); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestPostMessageEchoesCorrelation(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()

	m, err := newClient(t, srv, "").PostMessage(context.Background(), "3", "hello", "c_1")
	if err != nil {
		t.Fatal(err)
	}
	if m.ServerID != "1" || m.CorrelationID != "c_1" || m.Content.Text != "hello" || m.SenderID != 1 {
		t.Errorf("got %+v", m)
	}
	if got := srv.Messages("3"); len(got) != 1 || got[0].ClientTempID != "c_1" {
		t.Errorf("server got %+v", got)
	}
}

func TestPostMessageFailure(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	srv.FailPosts(http.StatusInternalServerError)

	_, err := newClient(t, srv, "").PostMessage(context.Background(), "3", "hello", "c_1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("got %v, want APIError 500", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("500 reported as unauthorized")
	}
}

func TestUploadFile(t *testing.T) {
	srv := backendtest.New()
	defer srv.Close()
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := newClient(t, srv, "").UploadFile(context.Background(), "3", path, "c_9")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Content.IsFile() {
		t.Fatalf("got %+v", m.Content)
	}
	f := m.Content.File
	if f.Filename != "notes.pdf" || f.Size != 13 || f.Mime != "application/pdf" || f.URL != "/uploads/3/notes.pdf" {
		t.Errorf("got %+v", f)
	}
	if m.CorrelationID != "c_9" {
		t.Errorf("correlation: %q", m.CorrelationID)
	}
}
