package ui

import "github.com/rivo/tview"

// Pages is a stack of named pages over tview.Pages. The bottom page is the
// root and is never popped.
type Pages struct {
	*tview.Pages
	stack    []Component
	onChange func(stack []string)
}

func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires with the breadcrumb names whenever
// the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows c on top of the stack. A component already on the stack is
// moved to the top instead of being added twice.
func (p *Pages) Push(c Component) {
	for i, existing := range p.stack {
		if existing == c {
			p.stack = append(p.stack[:i], p.stack[i+1:]...)
			break
		}
	}
	if !p.HasPage(c.Name()) {
		p.AddPage(c.Name(), c, true, false)
	}
	p.stack = append(p.stack, c)
	p.SwitchToPage(c.Name())
	p.notify()
}

// Pop removes the top page and returns the one now showing. The root stays.
func (p *Pages) Pop() Component {
	if len(p.stack) > 1 {
		top := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		p.RemovePage(top.Name())
		p.SwitchToPage(p.Top().Name())
		p.notify()
	}
	return p.Top()
}

// Top returns the visible component, or nil for an empty stack.
func (p *Pages) Top() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

// Names returns the breadcrumb names bottom to top.
func (p *Pages) Names() []string {
	names := make([]string, len(p.stack))
	for i, c := range p.stack {
		names[i] = c.Name()
	}
	return names
}

func (p *Pages) Depth() int {
	return len(p.stack)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Names())
	}
}
