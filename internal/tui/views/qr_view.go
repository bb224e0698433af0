package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/sbc/internal/transcript"
	"github.com/matheus3301/sbc/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// QRView shows an attachment's download link as a scannable QR code, so a
// file posted to the group can be opened on a phone.
type QRView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewQRView creates a new attachment QR view.
func NewQRView(theme *ui.Theme) *QRView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Attachment ")
	tv.SetTitleColor(theme.TitleColor)

	return &QRView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (qv *QRView) Name() string { return "Attachment" }

// Init implements Component.
func (qv *QRView) Init() {}

// Start implements Component.
func (qv *QRView) Start() {}

// Stop implements Component.
func (qv *QRView) Stop() {}

// Hints implements Component.
func (qv *QRView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Show renders f with link, the absolute download URL.
func (qv *QRView) Show(f transcript.File, link string) {
	qv.Clear()
	_, _ = fmt.Fprintf(qv, "\n  [::b]%s[-:-:-]  [::d]%s, %s[-:-:-]\n\n%s\n  %s",
		tview.Escape(sanitizeForTerminal(f.Filename)), f.Mime, formatSize(f.Size),
		RenderQR(link), tview.Escape(link))
}

// ShowMessage displays a status message.
func (qv *QRView) ShowMessage(msg string) {
	qv.Clear()
	_, _ = fmt.Fprintf(qv, "\n\n%s", tview.Escape(msg))
}

// RenderQR converts content to a compact QR code drawn with Unicode
// half-block characters, two modules per character row.
func RenderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top && !bot:
				sb.WriteRune('▀')
			case !top && bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
