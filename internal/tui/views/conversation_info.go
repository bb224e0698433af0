package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/sbc/internal/tui/model"
	"github.com/matheus3301/sbc/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays the daemon's view of the open conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Init implements Component.
func (ci *ConversationInfo) Init() {}

// Start implements Component.
func (ci *ConversationInfo) Start() {}

// Stop implements Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(info model.Info) {
	ci.Clear()
	if info.Conversation == "" {
		_, _ = fmt.Fprint(ci, "\n No conversation open.")
		return
	}

	fg := ui.ColorTag(ci.theme.FgColor)
	ct := ui.ColorTag(ci.theme.CounterColor)

	since := "-"
	if !info.StateSince.IsZero() {
		since = fmt.Sprintf("%s (%s ago)", info.StateSince.Format("15:04:05"), time.Since(info.StateSince).Truncate(time.Second))
	}
	self := info.SelfName
	if info.SelfID != 0 {
		self = fmt.Sprintf("%s (#%d)", self, info.SelfID)
	}

	_, _ = fmt.Fprintf(ci,
		"\n [%s::b]Group:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]State:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Since:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Messages:[-:-:-]    [%s]%d[-]\n"+
			" [%s::b]Pending:[-:-:-]     [%s]%d[-]\n"+
			" [%s::b]Failed:[-:-:-]      [%s]%d[-]\n"+
			" [%s::b]Signed in as:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]Backend:[-:-:-]     [%s]%s[-]",
		fg, ct, tview.Escape(info.Conversation),
		fg, ui.StateColor(ci.theme, info.State), info.State,
		fg, ct, since,
		fg, ct, info.Messages,
		fg, ct, info.Pending,
		fg, ct, info.Failed,
		fg, ct, tview.Escape(self),
		fg, ct, tview.Escape(info.Backend),
	)
	ci.SetTitle(fmt.Sprintf(" %s Details ", info.Conversation))
}
