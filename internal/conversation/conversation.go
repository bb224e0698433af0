package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/sbc/internal/backend"
	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/feed"
	"github.com/matheus3301/sbc/internal/outbox"
	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/status"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

// ErrNoConversation is returned when no conversation is open.
var ErrNoConversation = errors.New("no conversation open")

// Backend is the remote side of a conversation. *backend.Client implements it.
type Backend interface {
	outbox.Backend
	History(ctx context.Context, conversationID string) ([]transcript.Message, error)
	OpenFeed(ctx context.Context, conversationID string) (*backend.Feed, error)
}

// Cache is the local store. *store.DB implements it.
type Cache interface {
	outbox.Journal
	CachedTranscript(conversationID string, limit int) ([]transcript.Message, error)
	SetCheckpoint(conversationID string, at time.Time) error
	MarkOpened(conversationID string) error
}

// Deps carries what every conversation needs.
type Deps struct {
	Backend Backend
	// Cache may be nil; the conversation then runs without offline
	// fallback or send journal.
	Cache  Cache
	Bus    *bus.Bus
	Logger *zap.Logger
	Self   transcript.Identity

	SendTimeout       time.Duration
	SyncTimeout       time.Duration
	ReconnectInterval time.Duration
	ReconnectBurst    int
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SyncTimeout <= 0 {
		d.SyncTimeout = 10 * time.Second
	}
	return d
}

// Conversation is one open group chat: its transcript, the send tracker
// and the live feed listener feeding it.
type Conversation struct {
	id     string
	deps   Deps
	logger *zap.Logger

	reconciler *reconcile.Reconciler
	tracker    *outbox.Tracker
	listener   *feed.Listener
	status     *status.Machine

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open starts a conversation and waits until the first history sync has
// been attempted or SyncTimeout elapses. The conversation keeps running
// after ctx is done; call Close to stop it.
func Open(ctx context.Context, id string, deps Deps) (*Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation id is empty")
	}
	if deps.Backend == nil {
		return nil, errors.New("backend is required")
	}
	deps = deps.withDefaults()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Conversation{
		id:     id,
		deps:   deps,
		logger: deps.Logger.With(zap.String("conversation", id)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.reconciler = reconcile.New(id, deps.Self.UserID, deps.Bus, deps.Logger)
	c.status = status.NewMachine(deps.Bus, id)

	var journal outbox.Journal
	if deps.Cache != nil {
		journal = deps.Cache
	}
	c.tracker = outbox.NewTracker(runCtx, outbox.Config{
		ConversationID: id,
		Self:           deps.Self,
		Sink:           c.reconciler,
		Backend:        deps.Backend,
		Journal:        journal,
		Logger:         deps.Logger,
		Timeout:        deps.SendTimeout,
	})
	c.listener = feed.New(feed.Config{
		ConversationID: id,
		Dial:           c.dial,
		Resync:         c.resync,
		Sink:           c.reconciler,
		Status:         c.status,
		Bus:            deps.Bus,
		Logger:         deps.Logger,
		Interval:       deps.ReconnectInterval,
		Burst:          deps.ReconnectBurst,
	})

	if deps.Cache != nil {
		if err := deps.Cache.MarkOpened(id); err != nil {
			c.logger.Warn("failed to record conversation", zap.Error(err))
		}
	}

	go func() {
		defer close(c.done)
		_ = c.listener.Run(runCtx)
	}()

	timer := time.NewTimer(deps.SyncTimeout)
	defer timer.Stop()
	select {
	case <-c.listener.FirstSync():
	case <-timer.C:
		c.logger.Warn("first sync still running", zap.Duration("waited", deps.SyncTimeout))
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}

	c.publish(bus.ConversationOpened)
	c.logger.Info("conversation opened",
		zap.String("status", string(c.status.Current())),
		zap.Int("messages", len(c.reconciler.Snapshot())))
	return c, nil
}

func (c *Conversation) dial(ctx context.Context) (feed.Conn, error) {
	f, err := c.deps.Backend.OpenFeed(ctx, c.id)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// resync reseeds the transcript from history. When history cannot be
// fetched and the transcript is still empty, the cached copy is shown.
func (c *Conversation) resync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.deps.SyncTimeout)
	defer cancel()

	history, err := c.deps.Backend.History(ctx, c.id)
	if err != nil {
		c.seedFromCache()
		return fmt.Errorf("fetch history: %w", err)
	}
	c.reconciler.Seed(history)
	if c.deps.Cache != nil {
		if err := c.deps.Cache.SetCheckpoint(c.id, time.Now()); err != nil {
			c.logger.Warn("failed to save checkpoint", zap.Error(err))
		}
	}
	return nil
}

func (c *Conversation) seedFromCache() {
	if c.deps.Cache == nil || len(c.reconciler.Snapshot()) > 0 {
		return
	}
	cached, err := c.deps.Cache.CachedTranscript(c.id, 0)
	if err != nil {
		c.logger.Warn("failed to read cache", zap.Error(err))
		return
	}
	if len(cached) == 0 {
		return
	}
	c.reconciler.Seed(cached)
	c.logger.Info("transcript seeded from cache", zap.Int("messages", len(cached)))
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.id
}

// Send posts text optimistically and returns its correlation id.
func (c *Conversation) Send(text string) (string, error) {
	return c.tracker.Send(text)
}

// SendFile uploads a local file optimistically.
func (c *Conversation) SendFile(path string) (string, error) {
	return c.tracker.SendFile(path)
}

// Retry resends a failed entry.
func (c *Conversation) Retry(correlationID string) (string, error) {
	return c.tracker.Retry(correlationID)
}

// Dismiss removes a failed entry.
func (c *Conversation) Dismiss(correlationID string) error {
	if c.tracker.Dismiss(correlationID) {
		return nil
	}
	if _, ok := c.reconciler.Find(transcript.MatchKey{CorrelationID: correlationID}); !ok {
		return outbox.ErrNotFound
	}
	return outbox.ErrNotRetryable
}

// Find returns the entry selected by key.
func (c *Conversation) Find(key transcript.MatchKey) (transcript.Message, bool) {
	return c.reconciler.Find(key)
}

// Snapshot returns the ordered transcript.
func (c *Conversation) Snapshot() []transcript.Message {
	return c.reconciler.Snapshot()
}

// Status returns the connection state and when it was entered.
func (c *Conversation) Status() (status.State, time.Time) {
	return c.status.Current(), c.status.Since()
}

// Close stops sending, then delivery, then the feed. It is safe to call
// more than once.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.tracker.Close()
		c.reconciler.Close()
		c.cancel()
		<-c.done
		if err := c.status.Transition(status.Closed); err != nil {
			c.logger.Debug("status transition skipped", zap.Error(err))
		}
		c.publish(bus.ConversationClosed)
		c.logger.Info("conversation closed")
	})
}

func (c *Conversation) publish(kind string) {
	c.deps.Bus.Emit(kind, map[string]string{"conversation": c.id})
}
