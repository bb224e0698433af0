package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/sbc/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.ColorTag(hv.theme.MenuKeyColor)
	key := func(k string) string { return fmt.Sprintf("[%s]%s[-:-:-]", kc, k) }

	var b strings.Builder
	section := func(title string, rows [][2]string) {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", title)
		for _, r := range rows {
			fmt.Fprintf(&b, "  %-28s %s\n", key(r[0]), r[1])
		}
	}

	section("Global Keys", [][2]string{
		{":", "Command mode"},
		{"Esc", "Cancel / go back"},
		{"?", "Help"},
		{"s", "Search messages"},
		{"q", "Quit / back"},
		{"Ctrl-C", "Quit immediately"},
	})
	section("Conversations", [][2]string{
		{"Enter", "Open conversation"},
		{"/", "Filter"},
		{"0", "Clear filter"},
		{"1-9", "Jump to Nth conversation"},
		{"t", "Go to open transcript"},
	})
	section("Transcript", [][2]string{
		{"i", "Focus composer (Enter sends)"},
		{"k/Up j/Down", "Select previous / next message"},
		{"G", "Follow newest messages"},
		{"r", "Retry selected (or last) failed message"},
		{"x", "Dismiss selected (or last) failed message"},
		{"a", "Show selected attachment as QR code"},
		{"d", "Conversation details"},
	})
	section("Commands (: mode)", [][2]string{
		{":open <group>", "Open a group conversation"},
		{":close", "Close the open conversation"},
		{":attach <path>", "Upload a file to the open conversation"},
		{":search <query>", "Search cached messages"},
		{":retry / :dismiss", "Act on the last failed message"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
	})

	_, _ = fmt.Fprint(hv, b.String())
}
