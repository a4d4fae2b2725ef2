package views

import (
	"strings"
	"testing"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/tui/model"
	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestSanitizeForTerminal(t *testing.T) {
	assert.Equal(t, "\U0001F44D", sanitizeForTerminal("\U0001F44D\U0001F3FB"))
	assert.Equal(t, "\U0001F468\U0001F469", sanitizeForTerminal("\U0001F468\u200d\U0001F469"))
	assert.Equal(t, "\u2764", sanitizeForTerminal("\u2764\ufe0f"))
	assert.Equal(t, "plain", sanitizeForTerminal("plain"))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Empty(t, formatTimestamp(0, fixedNow))
	assert.Equal(t, "17:30", formatTimestamp(fixedNow.Add(-30*time.Minute).UnixMilli(), fixedNow))
	assert.Equal(t, "Mar 10", formatTimestamp(fixedNow.AddDate(0, 0, -4).UnixMilli(), fixedNow))
	assert.Equal(t, "2025-12-01", formatTimestamp(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), fixedNow))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\tc", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

func TestSenderLabel(t *testing.T) {
	assert.Equal(t, "You", senderLabel(api.Message{SenderID: "A", FromMe: true}))
	assert.Equal(t, "Fatou (guest)", senderLabel(api.Message{SenderName: "Fatou", Anonymous: true}))
	assert.Equal(t, "Guest", senderLabel(api.Message{Anonymous: true}))
	assert.Equal(t, "B", senderLabel(api.Message{SenderID: "B"}))
}

func TestRenderQR(t *testing.T) {
	qr, err := renderQR("https://bazaar.example/listings/L1")
	require.NoError(t, err)
	assert.Contains(t, qr, "█")
}

func conversations() []api.Conversation {
	return []api.Conversation{
		{ListingID: "L1", Counterparty: "B", DisplayName: "Bob", Unread: 2, Badge: "2", Latest: api.Message{Content: "still available?", TimestampMs: fixedNow.UnixMilli()}},
		{ListingID: "L2", Counterparty: "C", DisplayName: "Cleo", Latest: api.Message{Content: "thanks", FromMe: true}},
	}
}

func TestConversationListFilterAndIndex(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.now = func() time.Time { return fixedNow }
	cl.Update(conversations(), false)

	c, ok := cl.ByIndex(2)
	require.True(t, ok)
	assert.Equal(t, "C", c.Counterparty)

	cl.SetFilter("AVAILABLE")
	c, ok = cl.ByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "B", c.Counterparty)
	_, ok = cl.ByIndex(2)
	assert.False(t, ok)

	cl.SetFilter("l2")
	c, _ = cl.ByIndex(1)
	assert.Equal(t, "L2", c.ListingID)

	cl.SetFilter("")
	_, ok = cl.ByIndex(2)
	assert.True(t, ok)
}

func TestConversationListKeepsSelection(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update(conversations(), false)
	cl.Select(2, 0)

	reordered := conversations()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	cl.Update(reordered, true)

	ref, ok := cl.Selected()
	require.True(t, ok)
	assert.Equal(t, api.ThreadRef{ListingID: "L2", Counterparty: "C"}, ref)
	assert.Contains(t, cl.GetTitle(), "stale")
}

func TestMessageThreadMarksDeletedAndEdited(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.now = func() time.Time { return fixedNow }
	th := &model.Thread{
		Ref:  api.ThreadRef{ListingID: "L1", Counterparty: "B"},
		Name: "Bob",
		Messages: []api.Message{
			{ID: "1", SenderID: "B", SenderName: "Bob", Content: "This message was deleted", Deleted: true, Edited: true},
			{ID: "2", SenderID: "A", FromMe: true, Content: "ok", Edited: true},
		},
	}
	out := mt.render(th)
	assert.Contains(t, out, "This message was deleted")
	assert.Contains(t, out, "You")
	assert.Equal(t, 1, strings.Count(out, "(edited)"), "deleted messages are not marked edited")

	assert.Contains(t, mt.render(&model.Thread{}), "No messages yet.")
}

func TestComposeTitle(t *testing.T) {
	tests := []struct {
		state, lastErr, want string
	}{
		{"IDLE", "", " Compose (i) "},
		{"AWAITING_NAME", "", " Compose · waiting for your name (:name) "},
		{"FAILED", "unavailable", " Compose · failed: unavailable (:retry) "},
		{"SENT", "", " Compose · sent "},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			th := &model.Thread{Compose: api.ComposeStatus{State: tt.state, LastError: tt.lastErr}}
			assert.Equal(t, tt.want, composeTitle(th))
		})
	}
}

func TestComposerFollowsSendState(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	ref := api.ThreadRef{ListingID: "L1", Counterparty: "B"}
	update := func(st api.ComposeStatus) { mt.Update(&model.Thread{Ref: ref, Compose: st}) }

	update(api.ComposeStatus{State: "IDLE"})
	mt.Composer().SetText("still for sale?")

	update(api.ComposeStatus{State: "SENDING", Draft: "still for sale?"})
	assert.True(t, mt.disabled, "composer is locked while sending")
	assert.Equal(t, "still for sale?", mt.Composer().GetText())

	update(api.ComposeStatus{State: "FAILED", Draft: "still for sale?", LastError: "unavailable"})
	assert.False(t, mt.disabled)
	assert.Equal(t, "still for sale?", mt.Composer().GetText(), "text survives a failed send")

	mt.Composer().SetText("")
	update(api.ComposeStatus{State: "SENDING", Draft: "still for sale?"})
	update(api.ComposeStatus{State: "FAILED", Draft: "still for sale?"})
	assert.Equal(t, "still for sale?", mt.Composer().GetText(), "held draft is restored")

	update(api.ComposeStatus{State: "SENT", LastMessageID: "m1"})
	assert.Empty(t, mt.Composer().GetText())

	mt.Composer().SetText("next one")
	update(api.ComposeStatus{State: "SENT", LastMessageID: "m1"})
	assert.Equal(t, "next one", mt.Composer().GetText(), "a repeated SENT does not wipe new text")
}

func TestStatusBarLine(t *testing.T) {
	sb := NewStatusBar(ui.DefaultTheme(), "work")
	sb.now = func() time.Time { return fixedNow }

	assert.Contains(t, sb.line(), "offline")

	sb.SetConnected(true)
	sb.SetIdentity("", "Fatou")
	sb.SetSync(3, false)
	line := sb.line()
	assert.Contains(t, line, "work")
	assert.Contains(t, line, "guest:Fatou")
	assert.Contains(t, line, "3 unread")
	assert.Contains(t, line, "live")
	assert.Contains(t, line, "18:00")

	sb.SetSync(0, true)
	assert.Contains(t, sb.line(), "stale")
}

func TestConversationInfoShowsListingQR(t *testing.T) {
	ci := NewConversationInfo(ui.DefaultTheme())
	out := ci.render(conversations()[0], "https://bazaar.example/listings/L1")
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "https://bazaar.example/listings/L1")
	assert.Contains(t, out, "█")

	out = ci.render(conversations()[0], "")
	assert.NotContains(t, out, "Link:")
}
