package status

import (
	"testing"
	"time"

	"github.com/matheus3301/sbc/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil, "3")
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Connecting},
		{Connecting, Syncing},
		{Connecting, Degraded},
		{Connecting, Reconnecting},
		{Syncing, Live},
		{Syncing, Degraded},
		{Live, Reconnecting},
		{Reconnecting, Connecting},
		{Degraded, Live},
		{Degraded, Connecting},
		{Live, Closed},
		{Closed, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil, "3")
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil, "3")
	if err := m.Transition(Live); err == nil {
		t.Error("Transition(IDLE -> LIVE) should fail")
	}
	if m.Current() != Idle {
		t.Errorf("state = %s, want IDLE (should not have changed)", m.Current())
	}
}

// TestLiveCannotSkipResync verifies that a dropped feed must go through
// CONNECTING and SYNCING again before being LIVE: a reconnect without a
// history reseed could hide messages sent during the gap.
func TestLiveCannotSkipResync(t *testing.T) {
	m := NewMachine(nil, "3")
	walkTo(t, m, Reconnecting)

	if err := m.Transition(Live); err == nil {
		t.Fatal("Transition(RECONNECTING -> LIVE) should fail")
	}
	for _, s := range []State{Connecting, Syncing, Live} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	m := NewMachine(b, "3")
	before := m.Since()
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if m.Since().Before(before) {
		t.Error("Since() went backwards")
	}

	select {
	case evt := <-ch:
		if evt.Kind != "conversation.status_changed" {
			t.Errorf("event kind = %q, want conversation.status_changed", evt.Kind)
		}
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Idle || change.To != Connecting || change.ConversationID != "3" {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:         {},
		Connecting:   {Connecting},
		Syncing:      {Connecting, Syncing},
		Live:         {Connecting, Syncing, Live},
		Reconnecting: {Connecting, Syncing, Live, Reconnecting},
		Degraded:     {Connecting, Degraded},
		Closed:       {Closed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
