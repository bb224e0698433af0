package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/sbc/internal/bus"
)

// State is the connection state of an open conversation.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Live         State = "LIVE"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Closed       State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Syncing, Reconnecting, Degraded, Closed},
	Syncing:      {Live, Reconnecting, Degraded, Closed},
	Live:         {Reconnecting, Closed},
	Reconnecting: {Connecting, Degraded, Closed},
	Degraded:     {Connecting, Reconnecting, Live, Closed},
	Closed:       {Idle},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu             sync.RWMutex
	current        State
	since          time.Time
	conversationID string
	bus            *bus.Bus
}

// NewMachine creates a state machine in Idle for one conversation.
func NewMachine(b *bus.Bus, conversationID string) *Machine {
	return &Machine{
		current:        Idle,
		since:          time.Now(),
		conversationID: conversationID,
		bus:            b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Publish(bus.Event{
		Kind:      bus.ConversationStatusChanged,
		Timestamp: m.since,
		Payload: StatusChange{
			ConversationID: m.conversationID,
			From:           from,
			To:             to,
		},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	ConversationID string
	From           State
	To             State
}
