package feed

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/metrics"
	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/status"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Conn is one live feed connection. Next returns messages in server
// broadcast order; Close unblocks a pending Next and may be called twice.
type Conn interface {
	Next() (transcript.Message, error)
	Close() error
}

// DialFunc opens a feed connection.
type DialFunc func(ctx context.Context) (Conn, error)

// ResyncFunc fetches history and reseeds the transcript.
type ResyncFunc func(ctx context.Context) error

// Sink receives every delivered message.
type Sink interface {
	OnIncoming(m transcript.Message) reconcile.Outcome
}

// Config wires a Listener.
type Config struct {
	ConversationID string
	Dial           DialFunc
	Resync         ResyncFunc
	Sink           Sink
	Status         *status.Machine
	Bus            *bus.Bus
	Logger         *zap.Logger
	// Interval and Burst pace connection attempts. Defaults: 2s, 3.
	Interval time.Duration
	Burst    int
}

// Listener owns the live feed of one conversation. It connects, reseeds
// the transcript from history after every (re)connect and forwards feed
// messages to the sink, reconnecting until its context is cancelled.
type Listener struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter

	synced    bool
	firstOnce sync.Once
	first     chan struct{}
}

// New creates a listener.
func New(cfg Config) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	return &Listener{
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("conversation", cfg.ConversationID)),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst),
		first:   make(chan struct{}),
	}
}

// FirstSync is closed once the first resync attempt has finished, whether
// it succeeded or not.
func (l *Listener) FirstSync() <-chan struct{} {
	return l.first
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		l.transition(status.Connecting)

		conn, err := l.cfg.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("feed dial failed", zap.Error(err))
			metrics.FeedReconnects.Inc()
			if !l.synced {
				// Offline start: show what history or the cache has.
				l.resync(ctx)
				l.transition(status.Degraded)
				continue
			}
			l.transition(status.Reconnecting)
			continue
		}

		l.publish(bus.FeedConnected)
		l.transition(status.Syncing)
		if l.resync(ctx) {
			l.transition(status.Live)
		} else {
			l.transition(status.Degraded)
		}

		err = l.pump(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Info("feed disconnected", zap.Error(err))
		l.publish(bus.FeedDisconnected)
		metrics.FeedReconnects.Inc()
		l.transition(status.Reconnecting)
	}
}

func (l *Listener) resync(ctx context.Context) bool {
	defer l.firstOnce.Do(func() { close(l.first) })
	if err := l.cfg.Resync(ctx); err != nil {
		l.logger.Warn("resync failed", zap.Error(err))
		return false
	}
	l.synced = true
	return true
}

func (l *Listener) pump(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	for {
		m, err := conn.Next()
		if err != nil {
			return err
		}
		out := l.cfg.Sink.OnIncoming(m)
		l.logger.Debug("feed message",
			zap.String("server_id", m.ServerID),
			zap.String("correlation_id", m.CorrelationID),
			zap.String("outcome", string(out)))
	}
}

func (l *Listener) transition(to status.State) {
	if l.cfg.Status == nil || l.cfg.Status.Current() == to {
		return
	}
	if err := l.cfg.Status.Transition(to); err != nil {
		l.logger.Debug("status transition skipped", zap.Error(err))
	}
}

func (l *Listener) publish(kind string) {
	l.cfg.Bus.Emit(kind, map[string]string{"conversation": l.cfg.ConversationID})
}
