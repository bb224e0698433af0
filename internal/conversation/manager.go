package conversation

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager holds the single open conversation of a daemon. Opening another
// conversation tears the current one down first.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	active *Conversation
}

// NewManager creates a manager.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps.withDefaults()}
}

// Open switches to conversation id. Reopening the active conversation
// returns it unchanged.
func (m *Manager) Open(ctx context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if m.active.ID() == id {
			return m.active, nil
		}
		m.deps.Logger.Info("switching conversation",
			zap.String("from", m.active.ID()),
			zap.String("to", id))
		m.active.Close()
		m.active = nil
	}

	c, err := Open(ctx, id, m.deps)
	if err != nil {
		return nil, err
	}
	m.active = c
	return c, nil
}

// Active returns the open conversation.
func (m *Manager) Active() (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoConversation
	}
	return m.active, nil
}

// Close closes the open conversation, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoConversation
	}
	m.active.Close()
	m.active = nil
	return nil
}

// Shutdown closes the open conversation without reporting its absence.
func (m *Manager) Shutdown() {
	_ = m.Close()
}
