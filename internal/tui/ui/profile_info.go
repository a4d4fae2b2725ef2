package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// ProfileData is what the header shows about the daemon.
type ProfileData struct {
	Profile       string
	Identity      string
	Guest         bool
	GuestName     string
	Scope         string
	Conversations int
	Unread        int
	Uptime        time.Duration
	State         string
	Stale         bool
	LastError     string
}

// ProfileInfo renders ProfileData as a key/value block.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &ProfileInfo{TextView: tv, theme: theme}
}

func (pi *ProfileInfo) Update(d *ProfileData) {
	pi.Clear()
	if d == nil {
		return
	}
	_, _ = fmt.Fprint(pi, pi.render(d))
}

func (pi *ProfileInfo) render(d *ProfileData) string {
	who := d.Identity
	if d.Guest {
		who = "guest"
		if d.GuestName != "" {
			who += " (" + d.GuestName + ")"
		}
	}
	sync := "live"
	if d.State != "" && d.State != "READY" {
		sync = strings.ToLower(d.State)
	}
	if d.Stale {
		sync = fmt.Sprintf("[%s]stale[-]", Tag(pi.theme.StaleColor))
		if d.LastError != "" {
			sync += " " + tview.Escape(d.LastError)
		}
	}
	rows := [][2]string{
		{"Profile", tview.Escape(d.Profile)},
		{"User", tview.Escape(who)},
		{"Scope", d.Scope},
		{"Inbox", fmt.Sprintf("%d convs, %d unread", d.Conversations, d.Unread)},
		{"Sync", sync},
		{"Uptime", FormatUptime(d.Uptime)},
	}
	key, val := Tag(pi.theme.FgColor), Tag(pi.theme.CounterColor)
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s::b]%-8s[-:-:-] [%s]%s[-]", key, r[0]+":", val, r[1])
	}
	return b.String()
}

// FormatUptime renders d as 3m, 2h5m or 1d4h.
func FormatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h >= 24:
		return fmt.Sprintf("%dd%dh", h/24, h%24)
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
