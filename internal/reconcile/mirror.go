package reconcile

import (
	"context"

	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

// Cache persists confirmed messages.
type Cache interface {
	UpsertMessages(msgs []transcript.Message) error
}

// Mirror copies confirmed transcript entries into the local cache. It
// subscribes to "transcript.*" events; a dropped event only delays the
// cache until the next seed.
type Mirror struct {
	cache  Cache
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMirror creates a new mirror.
func NewMirror(cache Cache, b *bus.Bus, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		cache:  cache,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to transcript events on the bus.
func (m *Mirror) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	ch, unsub := m.bus.Subscribe("transcript.", 256)

	go func() {
		defer close(m.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				m.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the mirror and waits for the loop to exit.
func (m *Mirror) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Mirror) handleEvent(evt bus.Event) {
	c, ok := evt.Payload.(Change)
	if !ok {
		return
	}
	var msgs []transcript.Message
	switch evt.Kind {
	case bus.TranscriptAppended, bus.TranscriptReplaced:
		msgs = confirmedOnly([]transcript.Message{c.Message})
	case bus.TranscriptSeeded:
		msgs = confirmedOnly(c.Messages)
	default:
		return
	}
	if len(msgs) == 0 {
		return
	}
	if err := m.cache.UpsertMessages(msgs); err != nil {
		m.logger.Error("failed to mirror messages",
			zap.Error(err),
			zap.String("conversation", c.ConversationID),
			zap.Int("count", len(msgs)))
	}
}

func confirmedOnly(msgs []transcript.Message) []transcript.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Status == transcript.StatusConfirmed && m.ServerID != "" {
			out = append(out, m)
		}
	}
	return out
}
