package model

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/transcript"
	"github.com/matheus3301/sbc/internal/tui/client"
	"github.com/matheus3301/sbc/internal/tui/ui"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Info is the daemon status shown in the header.
type Info struct {
	Profile      string
	SelfID       int64
	SelfName     string
	Backend      string
	Conversation string
	State        string
	StateSince   time.Time
	Messages     int64
	Pending      int64
	Failed       int64
	Uptime       time.Duration
}

// Conversation is a recently opened conversation from the cache.
type Conversation struct {
	ID            string
	Preview       string
	LastMessageAt time.Time
	MessageCount  int64
}

// SearchHit is one search result.
type SearchHit struct {
	Message transcript.Message
	Snippet string
}

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	info          Info
	conversations []Conversation
	messages      []transcript.Message
	Flash         *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status and the recent conversations.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Chat.Status(ctx, nil)
	if err != nil {
		return err
	}
	info := Info{
		Profile:      rpc.Str(st, "profile"),
		SelfID:       rpc.Int(st, "self_id"),
		SelfName:     rpc.Str(st, "self_name"),
		Backend:      rpc.Str(st, "backend"),
		Conversation: rpc.Str(st, "conversation"),
		State:        rpc.Str(st, "state"),
		StateSince:   rpc.Time(rpc.Int(st, "state_since_unix_ms")),
		Messages:     rpc.Int(st, "messages"),
		Pending:      rpc.Int(st, "pending"),
		Failed:       rpc.Int(st, "failed"),
		Uptime:       time.Duration(rpc.Int(st, "uptime_ms")) * time.Millisecond,
	}
	var convs []Conversation
	for _, c := range rpc.List(st, "conversations") {
		convs = append(convs, Conversation{
			ID:            rpc.Str(c, "id"),
			Preview:       rpc.Str(c, "last_message_preview"),
			LastMessageAt: rpc.Time(rpc.Int(c, "last_message_unix_ms")),
			MessageCount:  rpc.Int(c, "message_count"),
		})
	}

	vm.mu.Lock()
	vm.info = info
	vm.conversations = convs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadSnapshot fetches the transcript of the open conversation. With no
// conversation open the transcript is cleared.
func (vm *ViewModel) LoadSnapshot(ctx context.Context) error {
	snap, err := vm.client.Chat.Snapshot(ctx, nil)
	if grpcstatus.Code(err) == codes.FailedPrecondition {
		vm.mu.Lock()
		vm.messages = nil
		vm.mu.Unlock()
		vm.signalRefresh()
		return nil
	}
	if err != nil {
		return err
	}

	vm.mu.Lock()
	vm.messages = rpc.MessagesFrom(snap, "messages")
	vm.info.Conversation = rpc.Str(snap, "conversation")
	vm.info.State = rpc.Str(snap, "state")
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Open switches the daemon to conversation id and loads its transcript.
func (vm *ViewModel) Open(ctx context.Context, id string) error {
	if _, err := vm.client.Chat.Open(ctx, rpc.Fields{"conversation": id}.Struct()); err != nil {
		return err
	}
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	return vm.LoadSnapshot(ctx)
}

// Close closes the open conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	if _, err := vm.client.Chat.Close(ctx, nil); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages = nil
	vm.mu.Unlock()
	return vm.LoadStatus(ctx)
}

// Send posts a text message and returns its correlation id.
func (vm *ViewModel) Send(ctx context.Context, text string) (string, error) {
	resp, err := vm.client.Chat.Send(ctx, rpc.Fields{"text": text}.Struct())
	if err != nil {
		return "", err
	}
	_ = vm.LoadSnapshot(ctx)
	return rpc.Str(resp, "correlation_id"), nil
}

// SendFile uploads the file at path. Relative paths resolve against the
// TUI's working directory, not the daemon's.
func (vm *ViewModel) SendFile(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resp, err := vm.client.Chat.SendFile(ctx, rpc.Fields{"path": abs}.Struct())
	if err != nil {
		return "", err
	}
	_ = vm.LoadSnapshot(ctx)
	return rpc.Str(resp, "correlation_id"), nil
}

// Retry resends a failed message.
func (vm *ViewModel) Retry(ctx context.Context, correlationID string) error {
	if _, err := vm.client.Chat.Retry(ctx, rpc.Fields{"correlation_id": correlationID}.Struct()); err != nil {
		return err
	}
	return vm.LoadSnapshot(ctx)
}

// Dismiss drops a failed message from the transcript.
func (vm *ViewModel) Dismiss(ctx context.Context, correlationID string) error {
	if _, err := vm.client.Chat.Dismiss(ctx, rpc.Fields{"correlation_id": correlationID}.Struct()); err != nil {
		return err
	}
	return vm.LoadSnapshot(ctx)
}

// LastFailed returns the most recent failed entry of the transcript.
func (vm *ViewModel) LastFailed() (transcript.Message, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		if vm.messages[i].Status == transcript.StatusFailed {
			return vm.messages[i], true
		}
	}
	return transcript.Message{}, false
}

// Search queries the message cache. A non-empty conversation narrows the
// query to that group.
func (vm *ViewModel) Search(ctx context.Context, query, conversation string) ([]SearchHit, error) {
	req := rpc.Fields{"query": query, "limit": 50}
	if conversation != "" {
		req["conversation"] = conversation
	}
	resp, err := vm.client.Chat.Search(ctx, req.Struct())
	if err != nil {
		return nil, err
	}
	var hits []SearchHit
	for _, r := range rpc.List(resp, "results") {
		hits = append(hits, SearchHit{
			Message: rpc.MessageFrom(rpc.Sub(r, "message")),
			Snippet: rpc.Str(r, "snippet"),
		})
	}
	return hits, nil
}

// Watch follows the daemon event stream until ctx is done, reloading the
// transcript and status as events arrive. A broken stream is redialed
// after retryEvery.
func (vm *ViewModel) Watch(ctx context.Context, retryEvery time.Duration) {
	for {
		err := vm.watchOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			vm.Flash.Warn(fmt.Sprintf("event stream lost: %v", grpcstatus.Convert(err).Message()))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryEvery):
		}
	}
}

func (vm *ViewModel) watchOnce(ctx context.Context) error {
	stream, err := vm.client.Chat.Watch(ctx, nil)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			return err
		}
		kind := rpc.Str(evt, "kind")
		switch {
		case kind == "watch.started":
			_ = vm.LoadStatus(ctx)
			_ = vm.LoadSnapshot(ctx)
		case strings.HasPrefix(kind, "transcript."):
			_ = vm.LoadSnapshot(ctx)
			if kind == "transcript.failed" {
				msg := rpc.MessageFrom(rpc.Sub(evt, "message"))
				vm.Flash.Warn("send failed: " + msg.Error)
			}
		case strings.HasPrefix(kind, "conversation."), strings.HasPrefix(kind, "feed."):
			_ = vm.LoadStatus(ctx)
			if kind == "conversation.opened" || kind == "conversation.closed" {
				_ = vm.LoadSnapshot(ctx)
			}
		}
	}
}

// Info returns a snapshot of the daemon status.
func (vm *ViewModel) Info() Info {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.info
}

// Conversations returns the recent conversations.
func (vm *ViewModel) Conversations() []Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Messages returns the transcript of the open conversation.
func (vm *ViewModel) Messages() []transcript.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}
