// Package backendtest provides an in-process study-group backend for tests:
// message history, send confirm, upload and a WebSocket live feed.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Msg is a persisted backend message.
type Msg struct {
	ID           int64
	GroupID      string
	SenderID     int64
	SenderName   string
	Content      string
	CreatedAt    time.Time
	ClientTempID string
}

// JSON renders m the way the backend does.
func (m Msg) JSON() []byte {
	gid, _ := strconv.Atoi(m.GroupID)
	b, _ := json.Marshal(map[string]any{
		"id":           m.ID,
		"group_id":     gid,
		"sender_id":    m.SenderID,
		"sender_name":  m.SenderName,
		"content":      m.Content,
		"created_at":   m.CreatedAt.UTC().Format(time.RFC3339),
		"clientTempId": m.ClientTempID,
	})
	return b
}

type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is a fake backend. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	// Token, when set, is required as Bearer header or token query param.
	Token string
	// Self is the user the fake attributes posts to.
	SelfID   int64
	SelfName string

	mu         sync.Mutex
	nextID     int64
	messages   map[string][]Msg
	peers      map[string][]*peer
	postStatus int
	historyErr int
	// holdConfirm, when set, delays POST responses until it is closed.
	holdConfirm chan struct{}
	echo        bool
	posts       int
	histories   int
	dials       int
	peerAdded   chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// New starts a fake backend. Posted messages are echoed on the live feed.
func New() *Server {
	s := &Server{
		SelfID:    1,
		SelfName:  "me",
		messages:  make(map[string][]Msg),
		peers:     make(map[string][]*peer),
		echo:      true,
		peerAdded: make(chan struct{}, 64),
	}
	r := chi.NewRouter()
	r.Route("/api/groups/{id}/messages", func(r chi.Router) {
		r.Get("/", s.handleHistory)
		r.Post("/", s.handlePost)
		r.Post("/upload", s.handleUpload)
	})
	r.Get("/ws/{id}", s.handleFeed)
	s.Server = httptest.NewServer(r)
	return s
}

// Close disconnects feeds and stops the server.
func (s *Server) Close() {
	s.DropFeeds()
	s.Server.Close()
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+s.Token {
		return true
	}
	return r.URL.Query().Get("token") == s.Token
}

// Seed persists messages from other participants without broadcasting.
func (s *Server) Seed(groupID string, msgs ...Msg) []Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Msg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.persistLocked(groupID, m))
	}
	return out
}

// Inject persists a message and broadcasts it on the live feed.
func (s *Server) Inject(groupID string, m Msg) Msg {
	s.mu.Lock()
	m = s.persistLocked(groupID, m)
	s.mu.Unlock()
	s.Broadcast(groupID, m.JSON())
	return m
}

func (s *Server) persistLocked(groupID string, m Msg) Msg {
	s.nextID++
	m.ID = s.nextID
	m.GroupID = groupID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	s.messages[groupID] = append(s.messages[groupID], m)
	return m
}

// Broadcast writes a raw frame to every feed of a group.
func (s *Server) Broadcast(groupID string, frame []byte) {
	s.mu.Lock()
	peers := append([]*peer(nil), s.peers[groupID]...)
	s.mu.Unlock()
	for _, p := range peers {
		_ = p.write(frame)
	}
}

// DropFeeds closes every live feed connection.
func (s *Server) DropFeeds() {
	s.mu.Lock()
	all := s.peers
	s.peers = make(map[string][]*peer)
	s.mu.Unlock()
	for _, ps := range all {
		for _, p := range ps {
			_ = p.conn.Close()
		}
	}
}

// FailPosts makes sends answer with status. Zero restores success.
func (s *Server) FailPosts(status int) {
	s.mu.Lock()
	s.postStatus = status
	s.mu.Unlock()
}

// FailHistory makes history fetches answer with status. Zero restores
// success.
func (s *Server) FailHistory(status int) {
	s.mu.Lock()
	s.historyErr = status
	s.mu.Unlock()
}

// HoldConfirms delays send responses until the returned func is called.
// The feed echo is still sent immediately.
func (s *Server) HoldConfirms() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holdConfirm = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.holdConfirm = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// SetEcho toggles the feed echo of posted messages.
func (s *Server) SetEcho(on bool) {
	s.mu.Lock()
	s.echo = on
	s.mu.Unlock()
}

// Messages returns the persisted messages of a group.
func (s *Server) Messages(groupID string) []Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Msg(nil), s.messages[groupID]...)
}

// Counts returns how many posts, history fetches and feed dials were served.
func (s *Server) Counts() (posts, histories, dials int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts, s.histories, s.dials
}

// WaitFeed blocks until a feed connection has been accepted since the last
// call, or the timeout expires.
func (s *Server) WaitFeed(timeout time.Duration) bool {
	select {
	case <-s.peerAdded:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	gid := chi.URLParam(r, "id")
	s.mu.Lock()
	s.histories++
	status := s.historyErr
	msgs := append([]Msg(nil), s.messages[gid]...)
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, "history unavailable", status)
		return
	}
	if len(msgs) > 100 {
		msgs = msgs[len(msgs)-100:]
	}
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		m.ClientTempID = ""
		out = append(out, m.JSON())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		Content      string `json:"content"`
		ClientTempID string `json:"clientTempId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}
	s.respond(w, r, req.Content, req.ClientTempID)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	size, _ := io.Copy(io.Discard, file)

	gid := chi.URLParam(r, "id")
	meta, _ := json.Marshal(map[string]any{
		"type":     "file",
		"url":      "/uploads/" + gid + "/" + header.Filename,
		"filename": header.Filename,
		"size":     size,
		"mime":     header.Header.Get("Content-Type"),
	})
	s.respond(w, r, string(meta), r.FormValue("clientTempId"))
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, content, clientTempID string) {
	gid := chi.URLParam(r, "id")
	s.mu.Lock()
	s.posts++
	status := s.postStatus
	hold := s.holdConfirm
	echo := s.echo
	var m Msg
	if status == 0 {
		m = s.persistLocked(gid, Msg{
			SenderID:     s.SelfID,
			SenderName:   s.SelfName,
			Content:      content,
			ClientTempID: clientTempID,
		})
	}
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if echo {
		s.Broadcast(gid, m.JSON())
	}
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(m.JSON())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	gid := chi.URLParam(r, "id")
	p := &peer{conn: conn}
	s.mu.Lock()
	s.dials++
	s.peers[gid] = append(s.peers[gid], p)
	s.mu.Unlock()
	select {
	case s.peerAdded <- struct{}{}:
	default:
	}

	// Drain client frames until the connection goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.removePeer(gid, p)
	_ = conn.Close()
}

func (s *Server) removePeer(gid string, p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.peers[gid]
	for i, q := range ps {
		if q == p {
			s.peers[gid] = append(ps[:i], ps[i+1:]...)
			return
		}
	}
}

// BatchFrame joins several messages into one newline-separated frame.
func BatchFrame(msgs ...Msg) []byte {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = string(m.JSON())
	}
	return []byte(strings.Join(parts, "\n"))
}
