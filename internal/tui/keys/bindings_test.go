package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHandleEventPrefersViewBinding(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.AddView("Help", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "view" }})

	if !r.HandleEvent("Help", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)) || got != "view" {
		t.Errorf("Help view: handled by %q", got)
	}
	if !r.HandleEvent("Transcript", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)) || got != "global" {
		t.Errorf("Transcript view: handled by %q", got)
	}
}

func TestHandleEventSpecialKeys(t *testing.T) {
	r := NewRegistry()
	up := 0
	r.AddView("Transcript", "up", &Action{Key: tcell.KeyUp, Handler: func() { up++ }})

	r.HandleEvent("Transcript", tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	if r.HandleEvent("Transcript", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound rune reported as handled")
	}
	if up != 1 {
		t.Errorf("up handler ran %d times", up)
	}
}

func TestHintsOrdered(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true})
	r.AddGlobal("help", &Action{Key: tcell.KeyRune, Rune: '?', Description: "?:help", Visible: true})
	r.AddView("Conversations", "filter", &Action{Key: tcell.KeyRune, Rune: '/', Description: "/:filter", Visible: true})
	r.AddView("Conversations", "jump1", &Action{Key: tcell.KeyRune, Rune: '1', Description: "1:jump"})

	want := []string{"/:filter", "q:quit", "?:help"}
	for i := 0; i < 5; i++ {
		hints := r.Hints("Conversations")
		if len(hints) != len(want) {
			t.Fatalf("hints = %v", hints)
		}
		for j := range want {
			if hints[j] != want[j] {
				t.Fatalf("hints = %v, want %v", hints, want)
			}
		}
	}
}

func TestAddReplacesByName(t *testing.T) {
	r := NewRegistry()
	var got int
	r.AddGlobal("act", &Action{Key: tcell.KeyRune, Rune: 'a', Handler: func() { got = 1 }})
	r.AddGlobal("act", &Action{Key: tcell.KeyRune, Rune: 'b', Handler: func() { got = 2 }})

	if r.HandleEvent("", tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone)) {
		t.Error("replaced binding still fires")
	}
	r.HandleEvent("", tcell.NewEventKey(tcell.KeyRune, 'b', tcell.ModNone))
	if got != 2 {
		t.Errorf("got = %d", got)
	}
}
