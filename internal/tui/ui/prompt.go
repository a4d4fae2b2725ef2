package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted prompt means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	// PromptName asks a guest for the display name to send under.
	PromptName
)

// Prompt is the single-line input bar shared by commands, filtering and the
// guest name question.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	onSubmit func(mode PromptMode, text string)
	onCancel func(mode PromptMode)
}

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			p.Submit()
		case tcell.KeyEscape:
			p.Cancel()
		}
	})
	return p
}

func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

func (p *Prompt) SetOnCancel(fn func(mode PromptMode)) {
	p.onCancel = fn
}

// Activate clears the prompt and labels it for mode. For PromptName, text
// prefills the field.
func (p *Prompt) Activate(mode PromptMode, text string) {
	p.mode = mode
	p.SetText(text)
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	case PromptName:
		p.SetLabel("name> ")
		p.SetTitle(" Your name (Esc keeps the draft) ")
	}
}

// Submit hands non-empty text to the submit callback and clears the field.
// A filter may be submitted empty to clear it.
func (p *Prompt) Submit() {
	text := p.GetText()
	if p.onSubmit != nil && (text != "" || p.mode == PromptFilter) {
		p.onSubmit(p.mode, text)
	}
	p.SetText("")
}

func (p *Prompt) Cancel() {
	p.SetText("")
	if p.onCancel != nil {
		p.onCancel(p.mode)
	}
}

func (p *Prompt) Mode() PromptMode {
	return p.mode
}
