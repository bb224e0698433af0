package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sbc/internal/transcript"
	"github.com/matheus3301/sbc/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the transcript and a composer for the open
// conversation. One entry can be selected for retry, dismiss or attachment
// preview; with no selection the view follows the tail.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	conv     string
	state    string
	msgs     []transcript.Message
	selected int
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		selected: -1,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if strings.TrimSpace(text) != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.conv != "" {
		return mt.conv
	}
	return "Messages"
}

// Init implements Component.
func (mt *MessageThread) Init() {}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component.
func (mt *MessageThread) Stop() {}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "j/k", Description: "Select"},
		{Key: "r", Description: "Retry"},
		{Key: "x", Description: "Dismiss"},
		{Key: "a", Description: "Attachment"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
	}
}

// SetConversation updates the title with the conversation id and state.
func (mt *MessageThread) SetConversation(id, state string) {
	if id != mt.conv {
		mt.selected = -1
	}
	mt.conv = id
	mt.state = state
	mt.messages.SetTitle(fmt.Sprintf(" %s [%s]%s[-] ", id, ui.StateColor(mt.theme, state), state))
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update re-renders the transcript. The selection stays on the same entry
// when it is still present.
func (mt *MessageThread) Update(msgs []transcript.Message) {
	var keep transcript.Message
	hadSelection := mt.selected >= 0 && mt.selected < len(mt.msgs)
	if hadSelection {
		keep = mt.msgs[mt.selected]
	}
	mt.msgs = msgs
	mt.selected = -1
	if hadSelection {
		for i, m := range msgs {
			if sameEntry(m, keep) {
				mt.selected = i
				break
			}
		}
	}
	mt.render()
}

func sameEntry(a, b transcript.Message) bool {
	if a.CorrelationID != "" && a.CorrelationID == b.CorrelationID {
		return true
	}
	return a.ServerID != "" && a.ServerID == b.ServerID
}

func (mt *MessageThread) render() {
	mt.messages.Clear()
	own := ui.ColorTag(mt.theme.OwnSenderColor)
	pending := ui.ColorTag(mt.theme.PendingColor)
	failed := ui.ColorTag(mt.theme.FailedColor)

	var b strings.Builder
	for i, m := range mt.msgs {
		sender := m.SenderName
		if sender == "" {
			sender = strconv.FormatInt(m.SenderID, 10)
		}
		header := fmt.Sprintf("[::b]%s[-:-:-]", tview.Escape(sanitizeForTerminal(sender)))
		if m.FromMe {
			header = fmt.Sprintf("[%s::b]You[-:-:-]", own)
		}

		fmt.Fprintf(&b, "[\"m%d\"]%s [::d]%s[-:-:-]", i, header, formatTimestamp(m.CreatedAt))
		switch m.Status {
		case transcript.StatusPending:
			fmt.Fprintf(&b, " [%s]sending...[-]", pending)
		case transcript.StatusFailed:
			reason := m.Error
			if reason == "" {
				reason = "not delivered"
			}
			fmt.Fprintf(&b, " [%s::b]failed: %s[-:-:-]", failed, tview.Escape(reason))
		}
		b.WriteString("\n")
		b.WriteString(renderContent(m.Content))
		b.WriteString("[\"\"]\n\n")
	}
	_, _ = fmt.Fprint(mt.messages, b.String())

	if mt.selected >= 0 {
		mt.messages.Highlight("m" + strconv.Itoa(mt.selected))
		mt.messages.ScrollToHighlight()
		return
	}
	mt.messages.Highlight()
	mt.messages.ScrollToEnd()
}

func renderContent(c transcript.Content) string {
	if c.IsFile() {
		return fmt.Sprintf("[::u]%s[-:-:-] [::d](%s, %s)[-:-:-]",
			tview.Escape(sanitizeForTerminal(c.File.Filename)), c.File.Mime, formatSize(c.File.Size))
	}
	return tview.Escape(sanitizeForTerminal(c.Text))
}

// SelectPrev moves the selection one entry up, starting from the tail.
func (mt *MessageThread) SelectPrev() {
	if len(mt.msgs) == 0 {
		return
	}
	switch {
	case mt.selected < 0:
		mt.selected = len(mt.msgs) - 1
	case mt.selected > 0:
		mt.selected--
	}
	mt.render()
}

// SelectNext moves the selection one entry down. Moving past the last
// entry clears the selection.
func (mt *MessageThread) SelectNext() {
	if mt.selected < 0 {
		return
	}
	mt.selected++
	if mt.selected >= len(mt.msgs) {
		mt.selected = -1
	}
	mt.render()
}

// ClearSelection returns to tail-follow mode.
func (mt *MessageThread) ClearSelection() {
	mt.selected = -1
	mt.render()
}

// Selected returns the selected entry.
func (mt *MessageThread) Selected() (transcript.Message, bool) {
	if mt.selected < 0 || mt.selected >= len(mt.msgs) {
		return transcript.Message{}, false
	}
	return mt.msgs[mt.selected], true
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
