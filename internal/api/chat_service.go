package api

import (
	"context"
	"time"

	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/conversation"
	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/status"
	"github.com/matheus3301/sbc/internal/store"
	"github.com/matheus3301/sbc/internal/transcript"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Options carries the daemon settings the service reports or defaults to.
type Options struct {
	Profile      string
	DefaultGroup string
	Self         transcript.Identity
	BackendURL   string
}

// ChatService implements the sbc.v1.ChatService gRPC service.
type ChatService struct {
	opts      Options
	startedAt time.Time
	manager   *conversation.Manager
	db        *store.DB
	bus       *bus.Bus
}

var _ rpc.ChatServiceServer = (*ChatService)(nil)

// NewChatService creates the service. db may be nil, which disables
// Search and ListOutbox.
func NewChatService(opts Options, m *conversation.Manager, db *store.DB, b *bus.Bus) *ChatService {
	return &ChatService{
		opts:      opts,
		startedAt: time.Now(),
		manager:   m,
		db:        db,
		bus:       b,
	}
}

func (s *ChatService) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	f := rpc.Fields{
		"profile":   s.opts.Profile,
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
		"self_id":   s.opts.Self.UserID,
		"self_name": s.opts.Self.Name,
		"backend":   s.opts.BackendURL,
		"state":     string(status.Idle),
	}
	if s.bus != nil {
		f["subscribers"] = s.bus.Subscribers()
	}
	if s.db != nil {
		if recent, err := s.db.ListConversations(10); err == nil {
			f["conversations"] = conversationsToStruct(recent)
		}
	}
	c, err := s.manager.Active()
	if err != nil {
		return f.Struct(), nil
	}

	state, since := c.Status()
	f["conversation"] = c.ID()
	f["state"] = string(state)
	f["state_since_unix_ms"] = since.UnixMilli()

	var pending, failed int
	snap := c.Snapshot()
	for _, m := range snap {
		switch m.Status {
		case transcript.StatusPending:
			pending++
		case transcript.StatusFailed:
			failed++
		}
	}
	f["messages"] = len(snap)
	f["pending"] = pending
	f["failed"] = failed
	return f.Struct(), nil
}

func (s *ChatService) Open(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := rpc.Str(req, "conversation")
	if id == "" {
		id = s.opts.DefaultGroup
	}
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation is required and no default group is configured")
	}
	if _, err := s.manager.Open(ctx, id); err != nil {
		return nil, toStatus("open conversation", err)
	}
	return s.Status(ctx, nil)
}

func (s *ChatService) Close(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.manager.Close(); err != nil {
		return nil, toStatus("close conversation", err)
	}
	return &structpb.Struct{}, nil
}

func (s *ChatService) Snapshot(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.active(rpc.Str(req, "conversation"))
	if err != nil {
		return nil, err
	}
	msgs := c.Snapshot()
	if limit := int(rpc.Int(req, "limit")); limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	state, _ := c.Status()
	return rpc.Fields{
		"conversation": c.ID(),
		"state":        string(state),
		"messages":     rpc.MessageList(msgs),
	}.Struct(), nil
}

// active returns the open conversation, checking it is want when want is
// set.
func (s *ChatService) active(want string) (*conversation.Conversation, error) {
	c, err := s.manager.Active()
	if err != nil {
		return nil, toStatus("", err)
	}
	if want != "" && want != c.ID() {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "conversation %q is not open (open: %q)", want, c.ID())
	}
	return c, nil
}

func conversationsToStruct(convs []store.Conversation) []*structpb.Struct {
	out := make([]*structpb.Struct, 0, len(convs))
	for _, c := range convs {
		out = append(out, rpc.Fields{
			"id":                   c.ID,
			"last_message_preview": c.LastMessagePreview,
			"last_message_unix_ms": c.LastMessageAt,
			"message_count":        c.MessageCount,
			"opened_at_unix_ms":    c.OpenedAt,
		}.Struct())
	}
	return out
}
