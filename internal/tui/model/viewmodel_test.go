package model

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/transcript"
	"github.com/matheus3301/sbc/internal/tui/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeDaemon serves a single in-memory conversation.
type fakeDaemon struct {
	mu     sync.Mutex
	open   string
	msgs   []transcript.Message
	events chan *structpb.Struct
	calls  []string
}

func (d *fakeDaemon) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDaemon) Status(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := rpc.Fields{
		"profile":   "main",
		"self_id":   int64(7),
		"self_name": "bruno",
		"state":     "IDLE",
		"uptime_ms": int64(90_000),
		"conversations": []*structpb.Struct{
			rpc.Fields{"id": "3", "last_message_preview": "hello", "last_message_unix_ms": int64(1740823200000), "message_count": 2}.Struct(),
		},
	}
	if d.open != "" {
		f["conversation"] = d.open
		f["state"] = "LIVE"
		f["messages"] = len(d.msgs)
	}
	return f.Struct(), nil
}

func (d *fakeDaemon) Open(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	d.mu.Lock()
	d.open = rpc.Str(in, "conversation")
	d.msgs = []transcript.Message{
		{ServerID: "1", ConversationID: d.open, SenderID: 42, SenderName: "ana", Content: transcript.Text("hello"), Status: transcript.StatusConfirmed},
	}
	d.mu.Unlock()
	return d.Status(context.Background(), nil)
}

func (d *fakeDaemon) Close(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == "" {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no conversation open")
	}
	d.open = ""
	d.msgs = nil
	return &structpb.Struct{}, nil
}

func (d *fakeDaemon) Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == "" {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no conversation open")
	}
	return rpc.Fields{"conversation": d.open, "state": "LIVE", "messages": rpc.MessageList(d.msgs)}.Struct(), nil
}

func (d *fakeDaemon) Send(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, transcript.Message{
		CorrelationID: "c_1", ConversationID: d.open, SenderID: 7, FromMe: true,
		Content: transcript.Text(rpc.Str(in, "text")), Status: transcript.StatusFailed, Error: "HTTP 500",
	})
	return rpc.Fields{"correlation_id": "c_1"}.Struct(), nil
}

func (d *fakeDaemon) SendFile(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	d.record("sendfile " + rpc.Str(in, "path"))
	return rpc.Fields{"correlation_id": "c_2"}.Struct(), nil
}

func (d *fakeDaemon) Retry(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	d.record("retry " + rpc.Str(in, "correlation_id"))
	return rpc.Fields{"correlation_id": rpc.Str(in, "correlation_id")}.Struct(), nil
}

func (d *fakeDaemon) Dismiss(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := rpc.Str(in, "correlation_id")
	for i, m := range d.msgs {
		if m.CorrelationID == id {
			d.msgs = append(d.msgs[:i], d.msgs[i+1:]...)
			return &structpb.Struct{}, nil
		}
	}
	return nil, grpcstatus.Error(codes.NotFound, "not found")
}

func (d *fakeDaemon) Search(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if conv := rpc.Str(in, "conversation"); conv != "" && conv != "3" {
		return &structpb.Struct{}, nil
	}
	hit := rpc.Fields{
		"message": rpc.MessageStruct(transcript.Message{ServerID: "1", ConversationID: "3", SenderName: "ana", Content: transcript.Text("hello")}),
		"snippet": "[" + rpc.Str(in, "query") + "]",
	}.Struct()
	return rpc.Fields{"results": []*structpb.Struct{hit}}.Struct(), nil
}

func (d *fakeDaemon) ListOutbox(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

func (d *fakeDaemon) Watch(_ *structpb.Struct, stream rpc.ChatService_WatchServer) error {
	if err := stream.Send(rpc.Fields{"kind": "watch.started"}.Struct()); err != nil {
		return err
	}
	for {
		select {
		case evt := <-d.events:
			if err := stream.Send(evt); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func newTestVM(t *testing.T) (*ViewModel, *fakeDaemon) {
	t.Helper()
	d := &fakeDaemon{events: make(chan *structpb.Struct, 8)}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterChatServiceServer(srv, d)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewViewModel(c), d
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoadStatus(t *testing.T) {
	vm, _ := newTestVM(t)
	if err := vm.LoadStatus(testCtx(t)); err != nil {
		t.Fatal(err)
	}
	info := vm.Info()
	if info.Profile != "main" || info.SelfName != "bruno" || info.State != "IDLE" || info.Uptime != 90*time.Second {
		t.Errorf("info = %+v", info)
	}
	convs := vm.Conversations()
	if len(convs) != 1 || convs[0].ID != "3" || convs[0].MessageCount != 2 || convs[0].LastMessageAt.IsZero() {
		t.Errorf("conversations = %+v", convs)
	}
	select {
	case <-vm.RefreshCh():
	default:
		t.Error("no refresh signalled")
	}
}

func TestSnapshotWithoutConversation(t *testing.T) {
	vm, _ := newTestVM(t)
	if err := vm.LoadSnapshot(testCtx(t)); err != nil {
		t.Fatalf("LoadSnapshot() = %v, want nil for no open conversation", err)
	}
	if len(vm.Messages()) != 0 {
		t.Errorf("messages = %v", vm.Messages())
	}
}

func TestOpenSendDismiss(t *testing.T) {
	vm, _ := newTestVM(t)
	ctx := testCtx(t)

	if err := vm.Open(ctx, "3"); err != nil {
		t.Fatal(err)
	}
	if vm.Info().Conversation != "3" || len(vm.Messages()) != 1 {
		t.Fatalf("after open: %+v, %d messages", vm.Info(), len(vm.Messages()))
	}

	corr, err := vm.Send(ctx, "see you at the library")
	if err != nil || corr != "c_1" {
		t.Fatalf("Send() = %q, %v", corr, err)
	}
	failed, ok := vm.LastFailed()
	if !ok || failed.CorrelationID != "c_1" || failed.Error != "HTTP 500" {
		t.Fatalf("LastFailed() = %+v, %v", failed, ok)
	}

	if err := vm.Dismiss(ctx, "c_1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := vm.LastFailed(); ok {
		t.Error("failed entry survived dismiss")
	}
	if err := vm.Dismiss(ctx, "c_1"); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("second dismiss = %v", err)
	}

	if err := vm.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if vm.Info().Conversation != "" || len(vm.Messages()) != 0 {
		t.Errorf("after close: %+v", vm.Info())
	}
}

func TestSendFileUsesAbsolutePath(t *testing.T) {
	vm, d := newTestVM(t)
	if _, err := vm.SendFile(testCtx(t), "notes.pdf"); err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) != 1 || d.calls[0] == "sendfile notes.pdf" {
		t.Errorf("calls = %v", d.calls)
	}
}

func TestSearch(t *testing.T) {
	vm, _ := newTestVM(t)
	hits, err := vm.Search(testCtx(t), "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Snippet != "[hello]" || hits[0].Message.ConversationID != "3" {
		t.Errorf("hits = %+v", hits)
	}

	hits, err = vm.Search(testCtx(t), "hello", "9")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("scoped hits = %+v", hits)
	}
}

func TestWatchReloadsTranscript(t *testing.T) {
	vm, d := newTestVM(t)
	ctx, cancel := context.WithCancel(testCtx(t))
	defer cancel()

	if _, err := d.Open(ctx, rpc.Fields{"conversation": "3"}.Struct()); err != nil {
		t.Fatal(err)
	}
	go vm.Watch(ctx, 10*time.Millisecond)

	waitFor(t, func() bool { return len(vm.Messages()) == 1 })

	d.mu.Lock()
	d.msgs = append(d.msgs, transcript.Message{ServerID: "2", ConversationID: "3", SenderName: "ana", Content: transcript.Text("and another")})
	d.mu.Unlock()
	d.events <- rpc.Fields{"kind": "transcript.appended", "conversation": "3"}.Struct()

	waitFor(t, func() bool { return len(vm.Messages()) == 2 })

	d.events <- rpc.Fields{
		"kind":    "transcript.failed",
		"message": rpc.MessageStruct(transcript.Message{CorrelationID: "c_9", Status: transcript.StatusFailed, Error: "timeout"}),
	}.Struct()
	waitFor(t, func() bool { return vm.Flash.Get() == "send failed: timeout" })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
