package ui

import (
	"os"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	PendingColor      tcell.Color
	ConfirmedColor    tcell.Color
	FailedColor       tcell.Color
	OwnSenderColor    tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme. Transcript entries are
// tinted by reconciliation status.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		NumericKeyColor:   tcell.ColorFuchsia,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
		PendingColor:      tcell.ColorGray,
		ConfirmedColor:    tcell.ColorLimeGreen,
		FailedColor:       tcell.ColorOrangeRed,
		OwnSenderColor:    tcell.ColorAqua,
	}
}

// MonoTheme draws everything in the terminal's default colors. Status is
// still readable from the transcript markers.
func MonoTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorDefault,
		FgColor:           tcell.ColorDefault,
		BorderColor:       tcell.ColorDefault,
		BorderFocusColor:  tcell.ColorDefault,
		TableHeaderFg:     tcell.ColorDefault,
		TableHeaderBg:     tcell.ColorDefault,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorWhite,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorWhite,
		CrumbInactiveFg:   tcell.ColorDefault,
		CrumbInactiveBg:   tcell.ColorDefault,
		MenuKeyColor:      tcell.ColorDefault,
		NumericKeyColor:   tcell.ColorDefault,
		TitleColor:        tcell.ColorDefault,
		CounterColor:      tcell.ColorDefault,
		FlashInfoColor:    tcell.ColorDefault,
		FlashWarnColor:    tcell.ColorDefault,
		FlashErrColor:     tcell.ColorDefault,
		PromptBorderColor: tcell.ColorDefault,
		PendingColor:      tcell.ColorDefault,
		ConfirmedColor:    tcell.ColorDefault,
		FailedColor:       tcell.ColorDefault,
		OwnSenderColor:    tcell.ColorDefault,
	}
}

// ThemeFromEnv returns MonoTheme when NO_COLOR is set, DefaultTheme
// otherwise.
func ThemeFromEnv() *Theme {
	if v, ok := os.LookupEnv("NO_COLOR"); ok && v != "" {
		return MonoTheme()
	}
	return DefaultTheme()
}

// ColorTag returns c as a tview color tag name.
func ColorTag(c tcell.Color) string {
	return colorName(c)
}
