package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/sbc/internal/metrics"
	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrClosed       = errors.New("conversation closed")
	ErrNotFound     = errors.New("no message with that correlation id")
	ErrNotRetryable = errors.New("message is not in failed state")
	// ErrDuplicateCorrelation means the transcript already holds an entry
	// with the generated correlation id.
	ErrDuplicateCorrelation = errors.New("correlation id already in use")
)

// Sink receives the optimistic entry and its resolution. *reconcile.Reconciler
// implements it.
type Sink interface {
	Track(m transcript.Message) bool
	OnConfirmed(correlationID string, m transcript.Message) reconcile.Outcome
	MarkFailed(correlationID string, reason string) bool
	Dismiss(correlationID string) bool
	Find(key transcript.MatchKey) (transcript.Message, bool)
}

// Backend issues confirm requests. The returned message is the server's view
// of the persisted send.
type Backend interface {
	PostMessage(ctx context.Context, conversationID, text, correlationID string) (transcript.Message, error)
	UploadFile(ctx context.Context, conversationID, path, correlationID string) (transcript.Message, error)
}

// Journal records send attempts. It is optional.
type Journal interface {
	QueueOutbox(correlationID, conversationID string, content transcript.Content) error
	MarkOutboxSent(correlationID, serverID string) error
	MarkOutboxFailed(correlationID, errMsg string) error
}

// Config wires a Tracker.
type Config struct {
	ConversationID string
	Self           transcript.Identity
	Sink           Sink
	Backend        Backend
	Journal        Journal
	Logger         *zap.Logger
	// Timeout bounds each confirm request. Zero means 30s.
	Timeout time.Duration
	// NewID generates correlation ids. Nil means NewCorrelationID.
	NewID func() string
}

// Tracker runs the optimistic send lifecycle for one conversation: the
// pending entry is visible before Send returns, the confirm request runs in
// the background and resolves it to confirmed or failed.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	files  map[string]string // correlation id -> local path, for retries
	wg     sync.WaitGroup
}

// NewTracker creates a tracker. In-flight requests are cancelled when ctx is
// done or Close is called.
func NewTracker(ctx context.Context, cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NewID == nil {
		cfg.NewID = NewCorrelationID
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Tracker{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("conversation", cfg.ConversationID)),
		files:  make(map[string]string),
	}
}

type confirmFunc func(ctx context.Context, correlationID string) (transcript.Message, error)

// Send posts text and returns the correlation id of the pending entry.
func (t *Tracker) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	return t.submit(transcript.Text(text), "", func(ctx context.Context, corr string) (transcript.Message, error) {
		return t.cfg.Backend.PostMessage(ctx, t.cfg.ConversationID, text, corr)
	})
}

// SendFile uploads the file at path as an attachment.
func (t *Tracker) SendFile(path string) (string, error) {
	f, err := describeFile(path)
	if err != nil {
		return "", err
	}
	return t.submit(transcript.Attachment(f), path, t.uploader(path))
}

func (t *Tracker) uploader(path string) confirmFunc {
	return func(ctx context.Context, corr string) (transcript.Message, error) {
		return t.cfg.Backend.UploadFile(ctx, t.cfg.ConversationID, path, corr)
	}
}

// Retry dismisses a failed entry and resends its content as a new send. It
// returns the new correlation id. The dismissal is the claim: an entry that
// stopped being failed in the meantime is not resent.
func (t *Tracker) Retry(correlationID string) (string, error) {
	m, ok := t.cfg.Sink.Find(transcript.MatchKey{CorrelationID: correlationID})
	if !ok {
		return "", ErrNotFound
	}
	if m.Status != transcript.StatusFailed {
		return "", ErrNotRetryable
	}

	var path string
	if m.Content.IsFile() {
		t.mu.Lock()
		path, ok = t.files[correlationID]
		t.mu.Unlock()
		if !ok {
			return "", fmt.Errorf("%w: attachment source unknown", ErrNotRetryable)
		}
	}
	if !t.Dismiss(correlationID) {
		return "", ErrNotRetryable
	}

	var (
		corr string
		err  error
	)
	if path != "" {
		corr, err = t.submit(m.Content, path, t.uploader(path))
	} else {
		corr, err = t.Send(m.Content.Text)
	}
	if err != nil {
		return "", err
	}
	t.logger.Info("send retried",
		zap.String("correlation_id", correlationID),
		zap.String("retry_correlation_id", corr))
	return corr, nil
}

// Dismiss removes a failed entry from the transcript.
func (t *Tracker) Dismiss(correlationID string) bool {
	if !t.cfg.Sink.Dismiss(correlationID) {
		return false
	}
	t.mu.Lock()
	delete(t.files, correlationID)
	t.mu.Unlock()
	return true
}

func (t *Tracker) submit(content transcript.Content, path string, confirm confirmFunc) (string, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrClosed
	}
	corr := t.cfg.NewID()
	start := time.Now()
	pending := transcript.Message{
		CorrelationID:  corr,
		ConversationID: t.cfg.ConversationID,
		SenderID:       t.cfg.Self.UserID,
		SenderName:     t.cfg.Self.Name,
		Content:        content,
		CreatedAt:      start,
		Status:         transcript.StatusPending,
	}
	if !t.cfg.Sink.Track(pending) {
		t.mu.Unlock()
		if _, taken := t.cfg.Sink.Find(transcript.MatchKey{CorrelationID: corr}); taken {
			t.logger.Error("correlation id collision", zap.String("correlation_id", corr))
			return "", ErrDuplicateCorrelation
		}
		return "", ErrClosed
	}
	if path != "" {
		t.files[corr] = path
	}
	t.wg.Add(1)
	t.mu.Unlock()

	if t.cfg.Journal != nil {
		if err := t.cfg.Journal.QueueOutbox(corr, t.cfg.ConversationID, content); err != nil {
			t.logger.Error("failed to journal send", zap.Error(err), zap.String("correlation_id", corr))
		}
	}

	go t.confirm(corr, start, confirm)
	return corr, nil
}

func (t *Tracker) confirm(corr string, start time.Time, confirm confirmFunc) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.Timeout)
	defer cancel()

	m, err := confirm(ctx, corr)
	if err != nil {
		reason := err.Error()
		if t.ctx.Err() != nil {
			reason = ErrClosed.Error()
		}
		t.cfg.Sink.MarkFailed(corr, reason)
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		t.logger.Warn("send failed", zap.Error(err), zap.String("correlation_id", corr))
		if t.cfg.Journal != nil {
			if err := t.cfg.Journal.MarkOutboxFailed(corr, reason); err != nil {
				t.logger.Error("failed to journal failure", zap.Error(err), zap.String("correlation_id", corr))
			}
		}
		return
	}

	out := t.cfg.Sink.OnConfirmed(corr, m)
	metrics.SendsTotal.WithLabelValues("confirmed").Inc()
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	t.logger.Info("send confirmed",
		zap.String("correlation_id", corr),
		zap.String("server_id", m.ServerID),
		zap.String("outcome", string(out)))
	if t.cfg.Journal != nil {
		if err := t.cfg.Journal.MarkOutboxSent(corr, m.ServerID); err != nil {
			t.logger.Error("failed to journal confirmation", zap.Error(err), zap.String("correlation_id", corr))
		}
	}
}

// Wait blocks until every in-flight confirm request has resolved.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close rejects new sends, cancels in-flight requests and waits for them.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}

// NewCorrelationID returns a fresh client-side id: a time-ordered UUIDv7
// with 74 random bits.
func NewCorrelationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "c_" + id.String()
}
