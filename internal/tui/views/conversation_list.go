package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ConversationList is the inbox table, one row per (listing, counterparty).
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []api.Conversation
	visible []api.Conversation
	filter  string
	stale   bool
	now     func() time.Time
}

func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{Table: table, theme: theme, now: time.Now}
	cl.render()
	return cl
}

func (cl *ConversationList) Name() string { return "Inbox" }

// Update replaces the rows, keeping the cursor on the same conversation
// when it is still listed.
func (cl *ConversationList) Update(convs []api.Conversation, stale bool) {
	selected, hadSelection := cl.Selected()
	cl.convs = convs
	cl.stale = stale
	cl.render()
	if hadSelection {
		cl.selectRef(selected)
	}
}

// SetFilter keeps only conversations whose name, listing or last message
// contain text, ignoring case. An empty filter shows everything.
func (cl *ConversationList) SetFilter(text string) {
	cl.filter = strings.TrimSpace(text)
	cl.render()
	cl.Select(1, 0)
}

func (cl *ConversationList) Filter() string { return cl.filter }

func (cl *ConversationList) matches(c api.Conversation) bool {
	if cl.filter == "" {
		return true
	}
	needle := strings.ToLower(cl.filter)
	for _, hay := range []string{c.DisplayName, c.ListingID, c.Counterparty, c.Latest.Content} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" WITH", 1},
		{" LISTING", 1},
		{" LAST MESSAGE", 3},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := cl.now()
	cl.visible = cl.visible[:0]
	for _, c := range cl.convs {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		badge := ""
		if c.Badge != "" {
			badge = " " + c.Badge
		}
		attr := tcell.AttrNone
		if c.Unread > 0 {
			attr = tcell.AttrBold
		}
		last := sanitizeForTerminal(preview(c.Latest.Content, 80))
		if c.Latest.FromMe {
			last = "You: " + last
		}

		cl.SetCell(row, 0, tview.NewTableCell(badge).SetTextColor(cl.theme.BadgeColor).SetAttributes(tcell.AttrBold))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(c.DisplayName))).SetExpansion(1).SetTextColor(cl.theme.FgColor).SetAttributes(attr))
		cl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(c.ListingID)).SetExpansion(1).SetTextColor(cl.theme.DimColor))
		cl.SetCell(row, 3, tview.NewTableCell(" "+tview.Escape(last)).SetExpansion(3).SetTextColor(cl.theme.FgColor).SetAttributes(attr))
		cl.SetCell(row, 4, tview.NewTableCell(" "+formatTimestamp(c.Latest.TimestampMs, now)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	title := fmt.Sprintf(" Inbox [%s](%d)[-] ", ui.Tag(cl.theme.CounterColor), len(cl.convs))
	if cl.filter != "" {
		title = fmt.Sprintf(" Inbox [%s](%d/%d)[-] /%s ", ui.Tag(cl.theme.CounterColor), len(cl.visible), len(cl.convs), tview.Escape(cl.filter))
	}
	if cl.stale {
		title += fmt.Sprintf("[%s]stale[-] ", ui.Tag(cl.theme.StaleColor))
	}
	cl.SetTitle(title)
	if len(cl.visible) == 0 {
		cl.SetCell(1, 1, tview.NewTableCell(" no conversations").SetSelectable(false).SetTextColor(cl.theme.DimColor))
	}
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() (api.ThreadRef, bool) {
	c, ok := cl.SelectedConversation()
	return api.ThreadRef{ListingID: c.ListingID, Counterparty: c.Counterparty}, ok
}

func (cl *ConversationList) SelectedConversation() (api.Conversation, bool) {
	row, _ := cl.GetSelection()
	return cl.ByIndex(row)
}

// ByIndex returns the Nth visible conversation, 1-based.
func (cl *ConversationList) ByIndex(n int) (api.Conversation, bool) {
	if n < 1 || n > len(cl.visible) {
		return api.Conversation{}, false
	}
	return cl.visible[n-1], true
}

func (cl *ConversationList) selectRef(ref api.ThreadRef) {
	for i, c := range cl.visible {
		if c.ListingID == ref.ListingID && c.Counterparty == ref.Counterparty {
			cl.Select(i+1, 0)
			return
		}
	}
}
