package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/store"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

// mockBackend records calls. Each call blocks on gate (when set) so tests can
// observe the pending state.
type mockBackend struct {
	mu    sync.Mutex
	calls []call
	err   error
	gate  chan struct{}
	next  int
}

type call struct {
	Kind          string
	Conversation  string
	Payload       string
	CorrelationID string
}

func (m *mockBackend) respond(ctx context.Context, c call) (transcript.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.next++
	id := "s" + strconv.Itoa(m.next)
	err := m.err
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transcript.Message{}, ctx.Err()
		}
	}
	if err != nil {
		return transcript.Message{}, err
	}
	content := transcript.Text(c.Payload)
	if c.Kind == "upload" {
		content = transcript.Attachment(transcript.File{Filename: filepath.Base(c.Payload), URL: "/uploads/" + filepath.Base(c.Payload)})
	}
	return transcript.Message{
		ServerID:   id,
		SenderID:   1,
		SenderName: "me",
		Content:    content,
		CreatedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockBackend) PostMessage(ctx context.Context, conv, text, corr string) (transcript.Message, error) {
	return m.respond(ctx, call{"post", conv, text, corr})
}

func (m *mockBackend) UploadFile(ctx context.Context, conv, path, corr string) (transcript.Message, error) {
	return m.respond(ctx, call{"upload", conv, path, corr})
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockBackend) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTracker(t *testing.T, backend *mockBackend, journal Journal) (*Tracker, *reconcile.Reconciler) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	r := reconcile.New("g1", 1, nil, logger)
	tr := NewTracker(context.Background(), Config{
		ConversationID: "g1",
		Self:           transcript.Identity{UserID: 1, Name: "me"},
		Sink:           r,
		Backend:        backend,
		Journal:        journal,
		Logger:         logger,
		Timeout:        time.Second,
	})
	t.Cleanup(tr.Close)
	return tr, r
}

func TestSendIsVisibleBeforeConfirm(t *testing.T) {
	backend := &mockBackend{gate: make(chan struct{})}
	tr, r := newTracker(t, backend, nil)

	corr, err := tr.Send("  hi  ")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(corr, "c_") {
		t.Errorf("correlation id %q lacks prefix", corr)
	}

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d entries, want 1", len(snap))
	}
	if snap[0].Status != transcript.StatusPending || snap[0].CorrelationID != corr || snap[0].ServerID != "" {
		t.Errorf("got %+v", snap[0])
	}
	if snap[0].Content.Text != "hi" || !snap[0].FromMe {
		t.Errorf("got %+v", snap[0])
	}

	close(backend.gate)
	tr.Wait()

	snap = r.Snapshot()
	if len(snap) != 1 || snap[0].Status != transcript.StatusConfirmed || snap[0].ServerID != "s1" {
		t.Fatalf("after confirm: %+v", snap)
	}
	if snap[0].CorrelationID != corr {
		t.Errorf("correlation id lost: %q", snap[0].CorrelationID)
	}
	if backend.calls[0].CorrelationID != corr || backend.calls[0].Conversation != "g1" {
		t.Errorf("request not tagged: %+v", backend.calls[0])
	}
}

func TestSendRejectsEmpty(t *testing.T) {
	tr, r := newTracker(t, &mockBackend{}, nil)

	if _, err := tr.Send("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("got %v, want ErrEmptyMessage", err)
	}
	if len(r.Snapshot()) != 0 {
		t.Error("empty send created an entry")
	}
}

func TestSendFailureRetainsEntry(t *testing.T) {
	backend := &mockBackend{err: errors.New("502 bad gateway")}
	db := testDB(t)
	tr, r := newTracker(t, backend, db)

	corr, err := tr.Send("hello")
	if err != nil {
		t.Fatal(err)
	}
	tr.Wait()

	m, ok := r.Find(transcript.MatchKey{CorrelationID: corr})
	if !ok {
		t.Fatal("failed entry removed")
	}
	if m.Status != transcript.StatusFailed || m.Error != "502 bad gateway" {
		t.Errorf("got %s/%q", m.Status, m.Error)
	}

	entries, err := db.ListOutbox("g1", "failed", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].CorrelationID != corr {
		t.Errorf("journal: %+v", entries)
	}
}

func TestJournalRecordsSent(t *testing.T) {
	db := testDB(t)
	tr, _ := newTracker(t, &mockBackend{}, db)

	corr, err := tr.Send("hello")
	if err != nil {
		t.Fatal(err)
	}
	tr.Wait()

	entries, err := db.ListOutbox("g1", "sent", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].CorrelationID != corr || entries[0].ServerID != "s1" {
		t.Errorf("journal: %+v", entries)
	}
}

func TestRetryCreatesNewSend(t *testing.T) {
	backend := &mockBackend{err: errors.New("timeout")}
	tr, r := newTracker(t, backend, nil)

	old, _ := tr.Send("hello")
	tr.Wait()

	if _, err := tr.Retry("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	backend.setErr(nil)
	corr, err := tr.Retry(old)
	if err != nil {
		t.Fatal(err)
	}
	if corr == old {
		t.Fatal("retry reused the correlation id")
	}
	tr.Wait()

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d entries, want 1", len(snap))
	}
	if snap[0].CorrelationID != corr || snap[0].Status != transcript.StatusConfirmed {
		t.Errorf("got %+v", snap[0])
	}
	if _, err := tr.Retry(corr); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("retry of confirmed: got %v, want ErrNotRetryable", err)
	}
}

func TestSendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("some notes"), 0o600); err != nil {
		t.Fatal(err)
	}
	backend := &mockBackend{gate: make(chan struct{})}
	tr, r := newTracker(t, backend, nil)

	corr, err := tr.SendFile(path)
	if err != nil {
		t.Fatal(err)
	}
	m, _ := r.Find(transcript.MatchKey{CorrelationID: corr})
	if !m.Content.IsFile() {
		t.Fatalf("pending entry is not a file: %+v", m)
	}
	f := m.Content.File
	if f.Filename != "notes.txt" || f.Size != 10 || !strings.HasPrefix(f.Mime, "text/plain") {
		t.Errorf("got %+v", f)
	}

	close(backend.gate)
	tr.Wait()
	m, _ = r.Find(transcript.MatchKey{CorrelationID: corr})
	if m.Status != transcript.StatusConfirmed || m.Content.File.URL != "/uploads/notes.txt" {
		t.Errorf("got %+v", m)
	}
}

func TestSendFileMissing(t *testing.T) {
	tr, r := newTracker(t, &mockBackend{}, nil)
	if _, err := tr.SendFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(r.Snapshot()) != 0 {
		t.Error("missing file created an entry")
	}
}

func TestRetryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte{0, 1, 2}, 0o600); err != nil {
		t.Fatal(err)
	}
	backend := &mockBackend{err: errors.New("413 too large")}
	tr, r := newTracker(t, backend, nil)

	old, err := tr.SendFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tr.Wait()
	backend.setErr(nil)

	corr, err := tr.Retry(old)
	if err != nil {
		t.Fatal(err)
	}
	tr.Wait()
	if backend.calls[1].Kind != "upload" || backend.calls[1].Payload != path || backend.calls[1].CorrelationID != corr {
		t.Errorf("retry call: %+v", backend.calls[1])
	}
	if n := len(r.Snapshot()); n != 1 {
		t.Errorf("got %d entries, want 1", n)
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	backend := &mockBackend{gate: make(chan struct{})}
	tr, r := newTracker(t, backend, nil)

	corr, _ := tr.Send("hi")
	r.Close()
	tr.Close()

	if _, err := tr.Send("again"); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	m, _ := r.Find(transcript.MatchKey{CorrelationID: corr})
	if m.Status != transcript.StatusPending {
		t.Errorf("closed transcript mutated: %s", m.Status)
	}
	if backend.callCount() != 1 {
		t.Errorf("got %d calls, want 1", backend.callCount())
	}
}

func TestCorrelationIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := NewCorrelationID()
		if seen[id] {
			t.Fatalf("duplicate id %s after %d", id, i)
		}
		seen[id] = true
	}
}

func TestConcurrentSends(t *testing.T) {
	tr, r := newTracker(t, &mockBackend{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.Send("msg"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	tr.Wait()

	if n := len(r.Snapshot()); n != 20 {
		t.Errorf("got %d entries, want 20", n)
	}
}

// lateEchoSink confirms a failed entry just before the tracker claims it,
// like an echo arriving between the status check and the dismissal.
type lateEchoSink struct {
	*reconcile.Reconciler
}

func (s lateEchoSink) Dismiss(corr string) bool {
	s.OnConfirmed(corr, transcript.Message{
		ServerID:  "s-late",
		SenderID:  1,
		Content:   transcript.Text("hello"),
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	return s.Reconciler.Dismiss(corr)
}

func TestRetryAfterLateConfirmDoesNotResend(t *testing.T) {
	backend := &mockBackend{err: errors.New("timeout")}
	r := reconcile.New("g1", 1, nil, nil)
	tr := NewTracker(context.Background(), Config{
		ConversationID: "g1",
		Self:           transcript.Identity{UserID: 1, Name: "me"},
		Sink:           lateEchoSink{r},
		Backend:        backend,
		Timeout:        time.Second,
	})
	t.Cleanup(tr.Close)

	old, _ := tr.Send("hello")
	tr.Wait()
	backend.setErr(nil)

	if _, err := tr.Retry(old); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("got %v, want ErrNotRetryable", err)
	}
	tr.Wait()
	if n := backend.callCount(); n != 1 {
		t.Errorf("got %d backend calls, want 1", n)
	}
	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].ServerID != "s-late" {
		t.Errorf("got %v", snap)
	}
}

func TestDuplicateCorrelationIsNotClosed(t *testing.T) {
	r := reconcile.New("g1", 1, nil, nil)
	tr := NewTracker(context.Background(), Config{
		ConversationID: "g1",
		Self:           transcript.Identity{UserID: 1, Name: "me"},
		Sink:           r,
		Backend:        &mockBackend{},
		NewID: func() func() string {
			ids := []string{"c_fixed", "c_fixed", "c_after"}
			return func() string {
				id := ids[0]
				ids = ids[1:]
				return id
			}
		}(),
	})
	t.Cleanup(tr.Close)

	if _, err := tr.Send("one"); err != nil {
		t.Fatal(err)
	}
	_, err := tr.Send("two")
	if !errors.Is(err, ErrDuplicateCorrelation) {
		t.Fatalf("got %v, want ErrDuplicateCorrelation", err)
	}
	tr.Wait()
	if n := len(r.Snapshot()); n != 1 {
		t.Errorf("got %d entries, want 1", n)
	}

	r.Close()
	if _, err := tr.Send("three"); !errors.Is(err, ErrClosed) {
		t.Errorf("after close: got %v, want ErrClosed", err)
	}
}
