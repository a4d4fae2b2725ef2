package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar is the bottom line: profile, who is signed in, sync state and
// the clock.
type StatusBar struct {
	*tview.TextView
	theme     *ui.Theme
	profile   string
	who       string
	unread    int
	stale     bool
	connected bool
	now       func() time.Time
}

func NewStatusBar(theme *ui.Theme, profile string) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	sb := &StatusBar{TextView: tv, theme: theme, profile: profile, now: time.Now}
	sb.render()
	return sb
}

// SetIdentity shows who the daemon acts as. An empty identity is a guest.
func (sb *StatusBar) SetIdentity(identity, guestName string) {
	switch {
	case identity != "":
		sb.who = identity
	case guestName != "":
		sb.who = "guest:" + guestName
	default:
		sb.who = "guest"
	}
	sb.render()
}

func (sb *StatusBar) SetSync(unread int, stale bool) {
	sb.unread, sb.stale = unread, stale
	sb.render()
}

// SetConnected records whether the event stream to the daemon is up.
func (sb *StatusBar) SetConnected(ok bool) {
	sb.connected = ok
	sb.render()
}

// Tick redraws the clock.
func (sb *StatusBar) Tick() { sb.render() }

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	parts := []string{fmt.Sprintf("[::b]%s[-:-:-]", tview.Escape(sb.profile))}
	if sb.who != "" {
		parts = append(parts, tview.Escape(sb.who))
	}
	if sb.unread > 0 {
		parts = append(parts, fmt.Sprintf("[%s]%d unread[-]", ui.Tag(sb.theme.BadgeColor), sb.unread))
	}
	switch {
	case !sb.connected:
		parts = append(parts, fmt.Sprintf("[%s]offline[-]", ui.Tag(sb.theme.FlashErrColor)))
	case sb.stale:
		parts = append(parts, fmt.Sprintf("[%s]stale[-]", ui.Tag(sb.theme.StaleColor)))
	default:
		parts = append(parts, "live")
	}
	parts = append(parts, sb.now().Format("15:04"))
	return " " + strings.Join(parts, " | ")
}
