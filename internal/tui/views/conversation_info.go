package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo shows details of one conversation and a QR code for its
// listing page.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
	now   func() time.Time
}

func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitleColor(theme.TitleColor)
	return &ConversationInfo{TextView: tv, theme: theme, now: time.Now}
}

func (ci *ConversationInfo) Name() string { return "Details" }

// Update renders c. link is the listing URL; empty skips the QR code.
func (ci *ConversationInfo) Update(c api.Conversation, link string) {
	ci.Clear()
	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(c.DisplayName))))
	_, _ = fmt.Fprint(ci, ci.render(c, link))
	ci.ScrollToBeginning()
}

func (ci *ConversationInfo) render(c api.Conversation, link string) string {
	key, val := ui.Tag(ci.theme.FgColor), ui.Tag(ci.theme.CounterColor)
	last := formatTimestamp(c.Latest.TimestampMs, ci.now())
	if last == "" {
		last = "-"
	}
	rows := [][2]string{
		{"With", c.DisplayName},
		{"Identity", c.Counterparty},
		{"Listing", c.ListingID},
		{"Unread", fmt.Sprint(c.Unread)},
		{"Last active", last},
		{"Last message", preview(c.Latest.Content, 60)},
	}
	if c.Latest.Anonymous {
		rows = append(rows, [2]string{"Note", "messages from this guest cannot be listed again"})
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", key, r[0]+":", val, tview.Escape(sanitizeForTerminal(r[1])))
	}
	if link == "" {
		return b.String()
	}
	fmt.Fprintf(&b, "\n [%s::b]%-13s[-:-:-] %s\n\n", key, "Link:", tview.Escape(link))
	qr, err := renderQR(link)
	if err != nil {
		fmt.Fprintf(&b, " [%s]QR unavailable: %s[-]\n", ui.Tag(ci.theme.FlashErrColor), tview.Escape(err.Error()))
		return b.String()
	}
	b.WriteString(qr)
	return b.String()
}
