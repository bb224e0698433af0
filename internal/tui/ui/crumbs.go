package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// maxCrumbs is how many trail entries are drawn before the middle of the
// trail is elided.
const maxCrumbs = 4

// Crumbs is the navigation trail under the main pages.
type Crumbs struct {
	*tview.TextView
	theme *Theme
	label func(page string) string
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// SetLabeler sets how page names are shown, e.g. the transcript page as the
// open conversation's id.
func (c *Crumbs) SetLabeler(fn func(page string) string) {
	c.label = fn
}

// Update renders the trail for the page stack.
func (c *Crumbs) Update(stack []string) {
	c.Clear()
	_, _ = fmt.Fprint(c, c.trail(stack))
}

func (c *Crumbs) trail(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	names := make([]string, len(stack))
	for i, page := range stack {
		names[i] = page
		if c.label != nil {
			if l := c.label(page); l != "" {
				names[i] = l
			}
		}
	}
	if len(names) > maxCrumbs {
		names = append([]string{names[0], "..."}, names[len(names)-maxCrumbs+2:]...)
	}

	parts := make([]string, 0, len(names))
	for i, name := range names {
		name = tview.Escape(name)
		if i == len(names)-1 {
			parts = append(parts, fmt.Sprintf("[%s:%s:b] %s [-:-:-]",
				colorName(c.theme.CrumbActiveFg), colorName(c.theme.CrumbActiveBg), name))
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:] %s [-:-:-]",
			colorName(c.theme.CrumbInactiveFg), colorName(c.theme.CrumbInactiveBg), name))
	}
	return strings.Join(parts, " > ")
}

func colorName(c tcell.Color) string {
	if c == tcell.ColorDefault {
		return "-"
	}
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
