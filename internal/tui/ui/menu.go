package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

const menuColumnWidth = 24

// Menu lists the key hints for the current page in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a menu that wraps into a new column every rows hints.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme, rows: max(rows, 1)}
}

// Update renders hints column-major.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	keyColor := Tag(m.theme.MenuKeyColor)
	for r := range m.rows {
		for i := r; i < len(hints); i += m.rows {
			h := hints[i]
			cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", keyColor, tview.Escape(h.Key), h.Description)
			pad := max(menuColumnWidth-tview.TaggedStringWidth(cell), 1)
			_, _ = fmt.Fprint(m, cell+strings.Repeat(" ", pad))
		}
		_, _ = fmt.Fprintln(m)
	}
}
