package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned when the backend rejects the token.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Config configures a Client.
type Config struct {
	// BaseURL is the REST root, e.g. http://localhost:8080.
	BaseURL string
	// FeedURL overrides the WebSocket root. Derived from BaseURL when empty.
	FeedURL string
	Token   string
	// Timeout bounds history requests. Zero means 15s.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client talks to the study-group backend.
type Client struct {
	base    *url.URL
	feed    *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	feed, err := feedRoot(base, cfg.FeedURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		base:    base,
		feed:    feed,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  cfg.Logger,
	}, nil
}

func feedRoot(base *url.URL, override string) (*url.URL, error) {
	if override != "" {
		u, err := url.Parse(strings.TrimRight(override, "/"))
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid feed url %q", override)
		}
		return u, nil
	}
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = ""
	return &u, nil
}

// BaseURL returns the REST root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ResolveURL makes a backend-relative URL (such as an attachment URL)
// absolute.
func (c *Client) ResolveURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) endpoint(elem ...string) string {
	u := *c.base
	u.Path = path.Join(append([]string{"/", c.base.Path}, elem...)...)
	return u.String()
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// History fetches the recent transcript of a conversation, oldest first.
// Entries the normalizer cannot use are skipped.
func (c *Client) History(ctx context.Context, conversationID string) ([]transcript.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "groups", conversationID, "messages"), nil)
	if err != nil {
		return nil, err
	}
	var raw []map[string]any
	if err := c.do(req, &raw); err != nil {
		return nil, fmt.Errorf("history %s: %w", conversationID, err)
	}

	msgs := make([]transcript.Message, 0, len(raw))
	for _, r := range raw {
		m, err := Normalize(r)
		if err != nil {
			c.logger.Warn("skipping history entry", zap.Error(err), zap.String("conversation", conversationID))
			continue
		}
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// PostMessage sends a text message tagged with the correlation id.
func (c *Client) PostMessage(ctx context.Context, conversationID, text, correlationID string) (transcript.Message, error) {
	body, err := json.Marshal(map[string]string{
		"content":      text,
		"clientTempId": correlationID,
	})
	if err != nil {
		return transcript.Message{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "groups", conversationID, "messages"), bytes.NewReader(body))
	if err != nil {
		return transcript.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.confirm(req, conversationID)
}

// UploadFile sends the file at filePath as a multipart attachment.
func (c *Client) UploadFile(ctx context.Context, conversationID, filePath, correlationID string) (transcript.Message, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("open attachment: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("clientTempId", correlationID); err != nil {
		return transcript.Message{}, err
	}
	h := make(textproto.MIMEHeader)
	name := filepath.Base(filePath)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType(name))
	part, err := w.CreatePart(h)
	if err != nil {
		return transcript.Message{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return transcript.Message{}, fmt.Errorf("read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return transcript.Message{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "groups", conversationID, "messages", "upload"), &buf)
	if err != nil {
		return transcript.Message{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.confirm(req, conversationID)
}

func (c *Client) confirm(req *http.Request, conversationID string) (transcript.Message, error) {
	var raw map[string]any
	if err := c.do(req, &raw); err != nil {
		return transcript.Message{}, err
	}
	m, err := Normalize(raw)
	if err != nil {
		return transcript.Message{}, err
	}
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}
	return m, nil
}

func contentType(name string) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
