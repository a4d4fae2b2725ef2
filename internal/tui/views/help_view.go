package views

import (
	"fmt"
	"strings"

	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView lists keys and commands.
type HelpView struct {
	*tview.TextView
}

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

	_, _ = fmt.Fprint(tv, helpText(ui.Tag(theme.MenuKeyColor)))
	return &HelpView{TextView: tv}
}

func (hv *HelpView) Name() string { return "Help" }

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "command mode"},
		{"/", "filter the inbox"},
		{"?", "this help"},
		{"Esc", "back"},
		{"q", "quit (from the inbox)"},
		{"Ctrl-R", "refresh now"},
	}},
	{"Inbox", [][2]string{
		{"Enter", "open conversation"},
		{"1-9", "open the Nth conversation"},
		{"m", "mark read"},
		{"d", "details and listing QR"},
		{"s", "search"},
	}},
	{"Thread", [][2]string{
		{"i", "focus the composer"},
		{"Enter", "send (in the composer)"},
		{"d", "details and listing QR"},
	}},
	{"Commands", [][2]string{
		{":search <query>", "search cached messages"},
		{":name <name>", "send the held draft as a guest"},
		{":retry", "resend after a failed send"},
		{":refresh", "poll the message service now"},
		{":qr", "details and listing QR"},
		{":clear-local", "forget read state, guest name and cache"},
		{":quit", "quit"},
	}},
}

func helpText(keyColor string) string {
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-18s[-] %s\n", keyColor, tview.Escape(r[0]), r[1])
		}
	}
	return b.String()
}
