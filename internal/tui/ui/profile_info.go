package ui

import (
	"fmt"
	"time"

	"github.com/matheus3301/sbc/internal/status"
	"github.com/rivo/tview"
)

// ProfileData holds the daemon state shown in the header.
type ProfileData struct {
	Profile      string
	Self         string
	Conversation string
	State        string
	Messages     int64
	Pending      int64
	Failed       int64
	Uptime       time.Duration
}

// ProfileInfo displays profile and conversation metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data *ProfileData) {
	pi.Clear()
	if data == nil {
		return
	}

	fg := colorName(pi.theme.FgColor)
	counter := colorName(pi.theme.CounterColor)

	conv := data.Conversation
	if conv == "" {
		conv = "-"
	}
	failed := fmt.Sprintf("[%s]%d[-]", counter, data.Failed)
	if data.Failed > 0 {
		failed = fmt.Sprintf("[%s::b]%d[-:-:-]", colorName(pi.theme.FailedColor), data.Failed)
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Group:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]State:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Msgs:[-:-:-]    [%s]%d[-] (%d pending, %s failed)\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, counter, data.Profile,
		fg, counter, data.Self,
		fg, counter, conv,
		fg, StateColor(pi.theme, data.State), data.State,
		fg, counter, data.Messages, data.Pending, failed,
		fg, counter, formatDuration(data.Uptime),
	)
}

// StateColor returns the tview color tag name for a conversation state.
func StateColor(theme *Theme, state string) string {
	switch status.State(state) {
	case status.Live:
		return colorName(theme.ConfirmedColor)
	case status.Degraded, status.Reconnecting:
		return colorName(theme.FailedColor)
	case status.Connecting, status.Syncing:
		return colorName(theme.PendingColor)
	}
	return colorName(theme.CounterColor)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
