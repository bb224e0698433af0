package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// MenuHint is one key shortcut shown in the header.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // digit shortcuts get their own color
}

// Menu displays keyboard shortcut hints in columns of at most Rows lines.
type Menu struct {
	*tview.TextView
	theme *Theme
	// Rows is the column height; it matches the header height.
	Rows int
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		Rows:     6,
	}
}

// Update renders menu hints column by column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.layout(hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	rows := m.Rows
	if rows < 1 {
		rows = 1
	}
	keyColor := colorName(m.theme.MenuKeyColor)
	numColor := colorName(m.theme.NumericKeyColor)

	// Pad cells to the widest plain-text hint so columns line up.
	width := 0
	for _, h := range hints {
		if w := len(h.Key) + len(h.Description) + 3; w > width {
			width = w
		}
	}

	lines := make([]strings.Builder, rows)
	for i, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		plain := len(h.Key) + len(h.Description) + 3
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", kc, h.Key, h.Description)
		lines[i%rows].WriteString(cell + strings.Repeat(" ", width-plain+2))
	}

	var out []string
	for i := range lines {
		if s := strings.TrimRight(lines[i].String(), " "); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
