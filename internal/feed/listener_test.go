package feed

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/status"
	"github.com/matheus3301/sbc/internal/transcript"
)

// fakeConn delivers messages pushed on msgs and fails once dropped.
type fakeConn struct {
	msgs chan transcript.Message
	done chan struct{}
	once sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan transcript.Message, 16), done: make(chan struct{})}
}

func (c *fakeConn) Next() (transcript.Message, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.done:
		return transcript.Message{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// dialer hands out queued conns; an empty queue fails the dial.
type dialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *dialer) push(c *fakeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

func (d *dialer) dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

type resyncer struct {
	mu    sync.Mutex
	calls int
	err   error
	r     *reconcile.Reconciler
	hist  []transcript.Message
}

func (s *resyncer) resync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.r.Seed(s.hist)
	return nil
}

func (s *resyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func msg(id, body string) transcript.Message {
	return transcript.Message{
		ServerID:  id,
		SenderID:  42,
		Content:   transcript.Text(body),
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:    transcript.StatusConfirmed,
	}
}

func waitState(t *testing.T, ch <-chan bus.Event, want status.State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Payload.(status.StatusChange).To == want {
				return
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func waitLen(t *testing.T, r *reconcile.Reconciler, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.Snapshot()) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("transcript has %d entries, want %d", len(r.Snapshot()), n)
}

type harness struct {
	bus    *bus.Bus
	states <-chan bus.Event
	r      *reconcile.Reconciler
	d      *dialer
	rs     *resyncer
	l      *Listener
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, d *dialer, rs *resyncer) *harness {
	t.Helper()
	b := bus.New()
	states, unsub := b.Subscribe("conversation.", 64)
	t.Cleanup(unsub)
	r := reconcile.New("3", 1, b, nil)
	rs.r = r
	l := New(Config{
		ConversationID: "3",
		Dial:           d.dial,
		Resync:         rs.resync,
		Sink:           r,
		Status:         status.NewMachine(b, "3"),
		Bus:            b,
		Interval:       10 * time.Millisecond,
		Burst:          1,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{bus: b, states: states, r: r, d: d, rs: rs, l: l, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- l.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
	// Refill so repeated stops do not block.
	h.done <- context.Canceled
}

func TestListenerSeedsThenDelivers(t *testing.T) {
	d := &dialer{}
	conn := newFakeConn()
	d.push(conn)
	rs := &resyncer{hist: []transcript.Message{msg("s1", "a"), msg("s2", "b")}}
	h := start(t, d, rs)

	waitState(t, h.states, status.Live)
	select {
	case <-h.l.FirstSync():
	default:
		t.Fatal("first sync not signalled")
	}

	conn.msgs <- msg("s3", "c")
	conn.msgs <- msg("s2", "b") // overlap with history
	waitLen(t, h.r, 3)

	snap := h.r.Snapshot()
	for i, want := range []string{"s1", "s2", "s3"} {
		if snap[i].ServerID != want {
			t.Errorf("position %d: got %s, want %s", i, snap[i].ServerID, want)
		}
	}
}

func TestListenerReconnectResyncs(t *testing.T) {
	d := &dialer{}
	first, second := newFakeConn(), newFakeConn()
	d.push(first)
	d.push(second)
	rs := &resyncer{hist: []transcript.Message{msg("s1", "a")}}
	h := start(t, d, rs)

	waitState(t, h.states, status.Live)
	first.Close()
	waitState(t, h.states, status.Reconnecting)

	rs.mu.Lock()
	rs.hist = []transcript.Message{msg("s1", "a"), msg("s2", "sent during gap")}
	rs.mu.Unlock()

	waitState(t, h.states, status.Live)
	if n := rs.count(); n != 2 {
		t.Errorf("got %d resyncs, want 2", n)
	}
	waitLen(t, h.r, 2)
}

func TestListenerOfflineStartIsDegraded(t *testing.T) {
	d := &dialer{}
	rs := &resyncer{hist: []transcript.Message{msg("s1", "cached")}}
	h := start(t, d, rs)

	waitState(t, h.states, status.Degraded)
	<-h.l.FirstSync()
	if n := len(h.r.Snapshot()); n != 1 {
		t.Errorf("got %d entries, want 1", n)
	}

	conn := newFakeConn()
	d.push(conn)
	waitState(t, h.states, status.Live)
	conn.msgs <- msg("s2", "live")
	waitLen(t, h.r, 2)
}

func TestListenerResyncFailureIsDegraded(t *testing.T) {
	d := &dialer{}
	conn := newFakeConn()
	d.push(conn)
	rs := &resyncer{err: errors.New("history 502")}
	h := start(t, d, rs)

	waitState(t, h.states, status.Degraded)
	conn.msgs <- msg("s1", "still delivered")
	waitLen(t, h.r, 1)
}

func TestListenerStopClosesConn(t *testing.T) {
	d := &dialer{}
	conn := newFakeConn()
	d.push(conn)
	h := start(t, d, &resyncer{})

	waitState(t, h.states, status.Live)
	h.cancel()
	select {
	case err := <-h.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-conn.done:
	default:
		t.Error("conn left open")
	}
}
