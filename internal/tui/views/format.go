package views

import (
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
)

// formatTimestamp shows today's times as 15:04 and older ones as a date.
func formatTimestamp(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}

// preview flattens content to one line of at most n runes.
func preview(content string, n int) string {
	s := strings.Join(strings.Fields(content), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// senderLabel names who wrote m as seen by the viewer.
func senderLabel(m api.Message) string {
	switch {
	case m.FromMe:
		return "You"
	case m.Anonymous && m.SenderName != "":
		return m.SenderName + " (guest)"
	case m.Anonymous:
		return "Guest"
	case m.SenderName != "":
		return m.SenderName
	}
	return m.SenderID
}
