package ui

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"Conversations", "Transcript", "Details"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	var crumbs []string
	p.SetOnChange(func(stack []string) { crumbs = stack })

	p.Reset("Conversations")
	p.Push("Transcript")
	p.Push("Details")
	if p.Current() != "Details" || p.Depth() != 3 {
		t.Fatalf("current = %q depth = %d", p.Current(), p.Depth())
	}
	if len(crumbs) != 3 || crumbs[1] != "Transcript" {
		t.Errorf("crumbs = %v", crumbs)
	}

	if got := p.Pop(); got != "Details" {
		t.Errorf("Pop() = %q", got)
	}
	if p.Current() != "Transcript" {
		t.Errorf("current after pop = %q", p.Current())
	}

	p.Reset("Conversations")
	if p.Depth() != 1 || p.Current() != "Conversations" {
		t.Errorf("after reset: %v", p.Stack())
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlashModel()
	f.Set("sent", 0)
	if f.Get() != "" {
		t.Error("expired flash still visible")
	}
	f.Warn("send failed")
	msg := f.GetMessage()
	if msg == nil || msg.Level != FlashWarn || msg.Text != "send failed" {
		t.Errorf("message = %+v", msg)
	}
	select {
	case got := <-f.Watch():
		if got.Text != "sent" {
			t.Errorf("first watched = %q", got.Text)
		}
	default:
		t.Error("watch channel empty")
	}
}

func TestPagesPushExistingUnwinds(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"Conversations", "Transcript", "Details", "Help"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	p.Reset("Conversations")
	p.Push("Transcript")
	p.Push("Details")
	p.Push("Help")

	p.Push("Transcript")
	if got := p.Stack(); len(got) != 2 || got[1] != "Transcript" {
		t.Errorf("stack = %v", got)
	}
}

func TestMenuColumns(t *testing.T) {
	m := NewMenu(DefaultTheme())
	m.Rows = 3
	hints := []MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "j/k", Description: "Select"},
		{Key: "r", Description: "Retry"},
		{Key: "x", Description: "Dismiss"},
		{Key: "Esc", Description: "Back"},
	}
	lines := strings.Split(m.layout(hints), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "Compose") || !strings.Contains(lines[0], "Dismiss") {
		t.Errorf("first row = %q", lines[0])
	}
	if strings.Contains(lines[2], "Back") {
		t.Errorf("third row = %q", lines[2])
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptCommand)
	p.remember("open 3")
	p.remember("search exam")
	p.remember("search exam")

	p.browse(-1)
	if p.GetText() != "search exam" {
		t.Errorf("first step back = %q", p.GetText())
	}
	p.browse(-1)
	p.browse(-1)
	if p.GetText() != "open 3" {
		t.Errorf("oldest = %q", p.GetText())
	}
	p.browse(1)
	p.browse(1)
	if p.GetText() != "" {
		t.Errorf("past newest = %q", p.GetText())
	}
}

func TestFlashCountsRepeats(t *testing.T) {
	f := NewFlashModel()
	f.Warn("send failed: HTTP 500")
	f.Warn("send failed: HTTP 500")
	f.Warn("send failed: HTTP 500")
	if msg := f.GetMessage(); msg == nil || msg.Repeats != 2 {
		t.Errorf("message = %+v", msg)
	}
	f.Info("sent")
	if msg := f.GetMessage(); msg == nil || msg.Repeats != 0 {
		t.Errorf("after different message = %+v", msg)
	}
	f.Clear()
	if f.GetMessage() != nil {
		t.Error("cleared flash still visible")
	}
}

func TestCrumbsTrail(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	c.SetLabeler(func(page string) string {
		if page == "Transcript" {
			return "algebra-1"
		}
		return ""
	})
	got := c.trail([]string{"Conversations", "Transcript"})
	if !strings.Contains(got, "algebra-1") || strings.Contains(got, "Transcript") {
		t.Errorf("trail = %q", got)
	}

	long := c.trail([]string{"Conversations", "Transcript", "Search", "Details", "Help"})
	if !strings.Contains(long, "...") || strings.Contains(long, "algebra-1") || !strings.Contains(long, "Help") {
		t.Errorf("long trail = %q", long)
	}
}

func TestThemeFromEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if got := ThemeFromEnv(); got.FgColor != tcell.ColorDefault {
		t.Errorf("NO_COLOR theme fg = %v", got.FgColor)
	}
	if ColorTag(tcell.ColorDefault) != "-" {
		t.Errorf("ColorTag(default) = %q", ColorTag(tcell.ColorDefault))
	}

	t.Setenv("NO_COLOR", "")
	if got := ThemeFromEnv(); got.FgColor != DefaultTheme().FgColor {
		t.Errorf("default theme fg = %v", got.FgColor)
	}
}
