package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/tui/model"
	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// MessageThread shows one conversation oldest first with a composer below.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	onSend   func(text string)
	now      func() time.Time

	// Composer bookkeeping for the thread last shown.
	ref      api.ThreadRef
	state    compose.State
	sentID   string
	disabled bool
}

func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
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
	composer.SetTitleColor(theme.TitleColor)
	composer.SetTitle(" Compose (i) ")
	composer.SetFocusFunc(func() { composer.SetBorderColor(theme.BorderFocusColor) })
	composer.SetBlurFunc(func() { composer.SetBorderColor(theme.BorderColor) })

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		// The text stays until the send is confirmed.
		if text := composer.GetText(); strings.TrimSpace(text) != "" {
			mt.onSend(text)
		}
	})
	return mt
}

func (mt *MessageThread) Name() string { return "Thread" }

// SetOnSend sets the callback for a submitted composer line.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update renders th. A nil thread clears the view.
func (mt *MessageThread) Update(th *model.Thread) {
	mt.messages.Clear()
	if th == nil {
		mt.messages.SetTitle("")
		mt.ref, mt.state, mt.sentID = api.ThreadRef{}, "", ""
		mt.setDisabled(false)
		mt.composer.SetText("")
		return
	}
	title := fmt.Sprintf(" %s [%s]· %s[-] ", tview.Escape(sanitizeForTerminal(th.Name)), ui.Tag(mt.theme.DimColor), tview.Escape(th.Ref.ListingID))
	if th.Stale {
		title += fmt.Sprintf("[%s]stale[-] ", ui.Tag(mt.theme.StaleColor))
	}
	mt.messages.SetTitle(title)
	_, _ = fmt.Fprint(mt.messages, mt.render(th))
	mt.messages.ScrollToEnd()
	mt.composer.SetTitle(composeTitle(th))
	mt.syncComposer(th)
}

// syncComposer locks the composer while a send is in flight, clears it once a
// new message is accepted and puts a held draft back after a failure.
func (mt *MessageThread) syncComposer(th *model.Thread) {
	state := compose.State(th.Compose.State)
	if th.Ref != mt.ref {
		mt.ref, mt.state, mt.sentID = th.Ref, "", th.Compose.LastMessageID
		mt.composer.SetText("")
	}
	mt.setDisabled(state == compose.Sending)

	switch state {
	case compose.Sent:
		if th.Compose.LastMessageID != mt.sentID {
			mt.sentID = th.Compose.LastMessageID
			mt.composer.SetText("")
		}
	case compose.Failed, compose.AwaitingName:
		if state != mt.state && mt.composer.GetText() == "" {
			mt.composer.SetText(th.Compose.Draft)
		}
	}
	mt.state = state
}

func (mt *MessageThread) setDisabled(disabled bool) {
	mt.disabled = disabled
	mt.composer.SetDisabled(disabled)
}

func (mt *MessageThread) render(th *model.Thread) string {
	if len(th.Messages) == 0 {
		return fmt.Sprintf("[%s]No messages yet.[-]\n", ui.Tag(mt.theme.DimColor))
	}
	now := mt.now()
	dim := ui.Tag(mt.theme.DimColor)
	var b strings.Builder
	for _, m := range th.Messages {
		name := ui.Tag(mt.theme.FgColor)
		if m.FromMe {
			name = ui.Tag(mt.theme.OwnMessageColor)
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [%s]%s", name, tview.Escape(sanitizeForTerminal(senderLabel(m))), dim, formatTimestamp(m.TimestampMs, now))
		if m.Edited && !m.Deleted {
			b.WriteString(" (edited)")
		}
		b.WriteString("[-]\n")
		body := tview.Escape(sanitizeForTerminal(m.Content))
		if m.Deleted {
			body = fmt.Sprintf("[%s::i]%s[-:-:-]", dim, body)
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	return b.String()
}

// composeTitle reflects the composer state for the open thread.
func composeTitle(th *model.Thread) string {
	switch compose.State(th.Compose.State) {
	case compose.AwaitingName:
		return " Compose · waiting for your name (:name) "
	case compose.Sending:
		return " Compose · sending… "
	case compose.Sent:
		return " Compose · sent "
	case compose.Failed:
		msg := " Compose · failed"
		if th.Compose.LastError != "" {
			msg += ": " + tview.Escape(th.Compose.LastError)
		}
		return msg + " (:retry) "
	}
	return " Compose (i) "
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
