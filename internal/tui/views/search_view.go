package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/sbc/internal/tui/model"
	"github.com/matheus3301/sbc/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView runs full-text queries against the message cache.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []model.SearchHit
	scope   string
}

// NewSearchView creates a new search view.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}

	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Init implements Component.
func (sv *SearchView) Init() {}

// Start implements Component.
func (sv *SearchView) Start() {}

// Stop implements Component.
func (sv *SearchView) Stop() {}

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
	}
}

// SetScope limits the search to one conversation. Empty searches every
// cached conversation.
func (sv *SearchView) SetScope(conversation string) {
	sv.scope = conversation
	if conversation == "" {
		sv.input.SetLabel(" Search: ")
		return
	}
	sv.input.SetLabel(fmt.Sprintf(" Search in %s: ", conversation))
}

// Scope returns the conversation the search is limited to.
func (sv *SearchView) Scope() string {
	return sv.scope
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
	sv.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(sv.input.GetText())
		}
	})
}

// Update refreshes search results.
func (sv *SearchView) Update(hits []model.SearchHit) {
	sv.data = hits
	sv.results.Clear()

	headers := []string{" GROUP", " FROM", " SNIPPET", " TIME"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, h := range hits {
		row := i + 1
		m := h.Message
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(m.ConversationID)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(m.SenderName))).SetMaxWidth(20).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+sv.highlight(h.Snippet)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(m.CreatedAt)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(hits)))
}

// highlight renders the cache's <<match>> markers in the key color.
func (sv *SearchView) highlight(snippet string) string {
	color := ui.ColorTag(sv.theme.MenuKeyColor)
	var b strings.Builder
	rest := sanitizeForTerminal(strings.ReplaceAll(snippet, "\n", " "))
	for {
		open := strings.Index(rest, "<<")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+2:], ">>")
		if end < 0 {
			break
		}
		b.WriteString(tview.Escape(rest[:open]))
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-]", color, tview.Escape(rest[open+2:open+2+end]))
		rest = rest[open+2+end+2:]
	}
	b.WriteString(tview.Escape(rest))
	return b.String()
}

// SelectedResult returns the conversation and server id of the selected
// result.
func (sv *SearchView) SelectedResult() (string, string) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		m := sv.data[idx].Message
		return m.ConversationID, m.ServerID
	}
	return "", ""
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
