package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/sbc/internal/metrics"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxFrameSize   = 1 << 20
	dialTimeout    = 10 * time.Second
	closeGraceTime = time.Second
)

// FeedURL returns the WebSocket URL of a conversation's live feed.
func (c *Client) FeedURL(conversationID string) string {
	u := *c.feed
	u.Path = path.Join("/", c.feed.Path, "ws", conversationID)
	if c.token != "" {
		q := url.Values{}
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// OpenFeed dials the live feed of a conversation.
func (c *Client) OpenFeed(ctx context.Context, conversationID string) (*Feed, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: dialTimeout,
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := dialer.DialContext(ctx, c.FeedURL(conversationID), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, fmt.Errorf("dial feed: %w", &APIError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	return newFeed(conn, conversationID, c.logger), nil
}

// Feed is one live feed connection. Next must be called from a single
// goroutine; Close may be called from any.
type Feed struct {
	conn           *websocket.Conn
	conversationID string
	logger         *zap.Logger
	queue          []transcript.Message
	done           chan struct{}
	closeOnce      sync.Once
}

func newFeed(conn *websocket.Conn, conversationID string, logger *zap.Logger) *Feed {
	f := &Feed{
		conn:           conn,
		conversationID: conversationID,
		logger:         logger.With(zap.String("conversation", conversationID)),
		done:           make(chan struct{}),
	}
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	go f.keepalive()
	return f
}

func (f *Feed) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-f.done:
			return
		}
	}
}

// Next returns the next message in delivery order. A frame may hold several
// newline-separated messages; malformed ones are skipped.
func (f *Feed) Next() (transcript.Message, error) {
	for len(f.queue) == 0 {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			return transcript.Message{}, err
		}
		_ = f.conn.SetReadDeadline(time.Now().Add(pongWait))
		f.queue = f.decodeFrame(data)
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

func (f *Feed) decodeFrame(data []byte) []transcript.Message {
	var out []transcript.Message
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		m, err := Decode(line)
		if err != nil {
			metrics.FeedFrames.WithLabelValues("malformed").Inc()
			f.logger.Warn("skipping feed message", zap.Error(err), zap.Int("bytes", len(line)))
			continue
		}
		metrics.FeedFrames.WithLabelValues("ok").Inc()
		if m.ConversationID == "" {
			m.ConversationID = f.conversationID
		}
		out = append(out, m)
	}
	return out
}

// Close sends a close frame and tears the connection down.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		_ = f.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGraceTime))
		err = f.conn.Close()
	})
	return err
}
