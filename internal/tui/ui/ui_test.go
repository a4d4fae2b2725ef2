package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	*tview.Box
	name string
}

func (p *page) Name() string { return p.name }

func newPage(name string) *page { return &page{Box: tview.NewBox(), name: name} }

func TestPagesStack(t *testing.T) {
	p := NewPages()
	var crumbs []string
	p.SetOnChange(func(stack []string) { crumbs = stack })

	inbox, thread, details := newPage("Inbox"), newPage("Thread"), newPage("Details")
	p.Push(inbox)
	p.Push(thread)
	p.Push(details)
	assert.Equal(t, []string{"Inbox", "Thread", "Details"}, crumbs)
	assert.Equal(t, details, p.Top())

	assert.Equal(t, thread, p.Pop())
	assert.False(t, p.HasPage("Details"))
	assert.Equal(t, inbox, p.Pop())
	assert.Equal(t, inbox, p.Pop(), "root is never popped")
	assert.Equal(t, 1, p.Depth())
}

func TestPagesPushExistingMovesToTop(t *testing.T) {
	p := NewPages()
	inbox, search := newPage("Inbox"), newPage("Search")
	p.Push(inbox)
	p.Push(search)
	p.Push(search)
	assert.Equal(t, []string{"Inbox", "Search"}, p.Names())
}

func TestFlashExpires(t *testing.T) {
	now := time.Unix(100, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	assert.Nil(t, f.Current())

	f.Info("sent %d", 1)
	require.NotNil(t, f.Current())
	assert.Equal(t, "sent 1", f.Current().Text)
	assert.Equal(t, FlashInfo, f.Current().Level)

	f.Err(errors.New("daemon unavailable"))
	assert.Equal(t, FlashErr, f.Current().Level)

	now = now.Add(11 * time.Second)
	assert.Nil(t, f.Current())
}

func TestPromptSubmit(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var gotMode PromptMode
	var gotText string
	calls := 0
	p.SetOnSubmit(func(mode PromptMode, text string) {
		gotMode, gotText = mode, text
		calls++
	})

	p.Activate(PromptName, "Fatou")
	p.Submit()
	assert.Equal(t, PromptName, gotMode)
	assert.Equal(t, "Fatou", gotText)
	assert.Empty(t, p.GetText())

	p.Activate(PromptCommand, "")
	p.Submit()
	assert.Equal(t, 1, calls, "empty command is ignored")

	p.Activate(PromptFilter, "")
	p.Submit()
	assert.Equal(t, 2, calls, "empty filter clears")
}

func TestPromptCancelReportsMode(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var cancelled PromptMode = -1
	p.SetOnCancel(func(mode PromptMode) { cancelled = mode })
	p.Activate(PromptName, "x")
	p.Cancel()
	assert.Equal(t, PromptName, cancelled)
	assert.Empty(t, p.GetText())
}

func TestCrumbsHighlightLast(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	out := c.render([]string{"Inbox", "Thread"})
	assert.Contains(t, out, "<inbox>")
	assert.Contains(t, out, "[black:orange:b] <thread>")
}

func TestProfileInfoGuest(t *testing.T) {
	pi := NewProfileInfo(DefaultTheme())
	out := pi.render(&ProfileData{Profile: "main", Guest: true, GuestName: "Fatou", Scope: "listing", Stale: true, LastError: "timeout"})
	assert.Contains(t, out, "guest (Fatou)")
	assert.Contains(t, out, "stale")
	assert.Contains(t, out, "timeout")

	out = pi.render(&ProfileData{Profile: "main", Identity: "A", State: "WARM"})
	assert.Contains(t, out, "warm")
	assert.NotContains(t, out, "live")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "3m", FormatUptime(3*time.Minute))
	assert.Equal(t, "2h5m", FormatUptime(2*time.Hour+5*time.Minute))
	assert.Equal(t, "1d4h", FormatUptime(28*time.Hour))
}
