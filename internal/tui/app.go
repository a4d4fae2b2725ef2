// Package tui is the terminal client. It talks to the profile's daemon and
// redraws whenever the daemon reports a change.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/config"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/tui/keys"
	"github.com/bazaarhq/inbox/internal/tui/model"
	"github.com/bazaarhq/inbox/internal/tui/ui"
	"github.com/bazaarhq/inbox/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	callTimeout  = 10 * time.Second
	watchBackoff = 2 * time.Second
	promptHeight = 3
	headerHeight = 4
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	vm       *model.ViewModel
	cfg      *config.Config
	registry *keys.Registry
	flash    *ui.FlashModel

	layout   *tview.Flex
	pages    *ui.Pages
	prompt   *ui.Prompt
	info     *ui.ProfileInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flashBar *ui.FlashBar

	statusBar *views.StatusBar
	list      *views.ConversationList
	thread    *views.MessageThread
	details   *views.ConversationInfo
	search    *views.SearchView
	help      *views.HelpView

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI for profile. cfg supplies listing links.
func NewApp(d model.Daemon, profileName string, cfg *config.Config) *App {
	theme := ui.DefaultTheme()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		vm:        model.NewViewModel(d),
		cfg:       cfg,
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		pages:     ui.NewPages(),
		prompt:    ui.NewPrompt(theme),
		info:      ui.NewProfileInfo(theme),
		menu:      ui.NewMenu(theme, headerHeight),
		crumbs:    ui.NewCrumbs(theme),
		flashBar:  ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(theme, profileName),
		list:      views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		details:   views.NewConversationInfo(theme),
		search:    views.NewSearchView(theme),
		help:      views.NewHelpView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout(theme)
	return a
}

func (a *App) setupBindings() {
	global := []struct {
		name   string
		action *keys.Action
	}{
		{"command", &keys.Action{Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true, Handler: func() { a.showPrompt(ui.PromptCommand, "") }}},
		{"help", &keys.Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true, Handler: func() { a.push(a.help) }}},
		{"refresh", &keys.Action{Key: tcell.KeyCtrlR, Label: "ctrl-r", Description: "Refresh", Visible: true, Handler: a.refresh}},
		{"back", &keys.Action{Key: tcell.KeyEscape, Label: "esc", Description: "Back", Visible: true, Handler: a.back}},
	}
	for _, g := range global {
		a.registry.AddGlobal(g.name, g.action)
	}

	inboxView := a.list.Name()
	a.registry.AddView(inboxView, "open", &keys.Action{Key: tcell.KeyEnter, Description: "Open", Visible: true, Handler: a.openSelected})
	a.registry.AddView(inboxView, "read", &keys.Action{Key: tcell.KeyRune, Rune: 'm', Description: "Mark read", Visible: true, Handler: a.markSelected})
	a.registry.AddView(inboxView, "details", &keys.Action{Key: tcell.KeyRune, Rune: 'd', Description: "Details", Visible: true, Handler: a.showSelectedDetails})
	a.registry.AddView(inboxView, "filter", &keys.Action{Key: tcell.KeyRune, Rune: '/', Description: "Filter", Visible: true, Handler: func() { a.showPrompt(ui.PromptFilter, a.list.Filter()) }})
	a.registry.AddView(inboxView, "search", &keys.Action{Key: tcell.KeyRune, Rune: 's', Description: "Search", Visible: true, Handler: func() { a.showSearch("") }})
	a.registry.AddView(inboxView, "quit", &keys.Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true, Handler: a.Stop})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(inboxView, fmt.Sprintf("jump%d", n), &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Label: "1-9", Description: "Jump", Visible: n == 1,
			Handler: func() { a.openIndex(n) },
		})
	}

	threadView := a.thread.Name()
	a.registry.AddView(threadView, "compose", &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true, Handler: func() { a.app.SetFocus(a.thread.Composer()) }})
	a.registry.AddView(threadView, "details", &keys.Action{Key: tcell.KeyRune, Rune: 'd', Description: "Details", Visible: true, Handler: a.showThreadDetails})
	a.registry.AddView(threadView, "quit", &keys.Action{Key: tcell.KeyRune, Rune: 'q', Description: "Back", Handler: a.back})
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.updateMenu()
	})

	a.list.SetSelectedFunc(func(int, int) { a.openSelected() })

	a.thread.SetOnSend(func(text string) {
		a.do(func(ctx context.Context) error {
			needName, err := a.vm.Send(ctx, text)
			if err != nil {
				return err
			}
			if needName {
				a.app.QueueUpdateDraw(func() { a.showPrompt(ui.PromptName, "") })
			}
			return nil
		})
	})

	a.search.SetOnQuery(func(query string) {
		a.do(func(ctx context.Context) error {
			results, err := a.vm.Search(ctx, query)
			if err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() {
				a.search.Update(results)
				a.app.SetFocus(a.search.Results())
			})
			return nil
		})
	})
	a.search.Results().SetSelectedFunc(func(int, int) { a.openSearchResult() })

	a.prompt.SetOnSubmit(a.onPrompt)
	a.prompt.SetOnCancel(func(mode ui.PromptMode) {
		if mode == ui.PromptName {
			a.flash.Warn("draft kept; use :name <your name> to send it")
		}
		a.hidePrompt()
	})
}

func (a *App) setupLayout(theme *ui.Theme) {
	header := tview.NewFlex().
		AddItem(a.info, 42, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(theme), 14, 0, false)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.layout, true)
	a.app.SetInputCapture(a.capture)
	a.push(a.list)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()
	if focused == a.thread.Composer() && event.Key() == tcell.KeyEscape {
		a.app.SetFocus(a.thread.Messages())
		return nil
	}
	if focused == a.search.Input() && event.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if _, ok := focused.(*tview.InputField); ok || a.prompt.HasFocus() {
		return event
	}
	top := a.pages.Top()
	if top != nil && a.registry.HandleEvent(top.Name(), event) {
		return nil
	}
	return event
}

func (a *App) updateMenu() {
	top := a.pages.Top()
	if top == nil {
		return
	}
	var hints []ui.MenuHint
	for _, act := range a.registry.Hints(top.Name()) {
		hints = append(hints, ui.MenuHint{Key: act.KeyLabel(), Description: act.Description})
	}
	a.menu.Update(hints)
}

func (a *App) push(c ui.Component) {
	a.pages.Push(c)
	a.app.SetFocus(c)
}

// back pops one page. Leaving the thread stops the daemon following it.
func (a *App) back() {
	top := a.pages.Top()
	if top == ui.Component(a.thread) {
		a.do(a.vm.CloseThread)
	}
	a.app.SetFocus(a.pages.Pop())
	a.sync()
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode, text)
	a.layout.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top)
	}
}

func (a *App) onPrompt(mode ui.PromptMode, text string) {
	a.hidePrompt()
	switch mode {
	case ui.PromptFilter:
		a.list.SetFilter(text)
	case ui.PromptName:
		a.confirmName(text)
	case ui.PromptCommand:
		a.runCommand(ParseCommand(text))
	}
}

func (a *App) runCommand(raw Command) {
	cmd, err := raw.Canonical()
	if err != nil {
		a.flash.Err(err)
		a.sync()
		return
	}
	switch cmd.Name {
	case "search":
		a.showSearch(cmd.Args)
	case "name":
		a.confirmName(cmd.Args)
	case "retry":
		a.do(a.vm.Retry)
	case "refresh":
		a.refresh()
	case "qr":
		if a.pages.Top() == ui.Component(a.thread) {
			a.showThreadDetails()
		} else {
			a.showSelectedDetails()
		}
	case "clear-local":
		a.do(func(ctx context.Context) error {
			if err := a.vm.ClearLocalData(ctx); err != nil {
				return err
			}
			a.flash.Info("local data cleared")
			return nil
		})
	case "help":
		a.push(a.help)
	case "quit":
		a.Stop()
	}
}

func (a *App) confirmName(name string) {
	a.do(func(ctx context.Context) error {
		if err := a.vm.ConfirmName(ctx, name); err != nil {
			return err
		}
		a.flash.Info("sending as %s", name)
		return nil
	})
}

func (a *App) refresh() {
	a.do(func(ctx context.Context) error {
		if err := a.vm.Refresh(ctx); err != nil {
			return err
		}
		a.flash.Info("refreshing")
		return nil
	})
}

func (a *App) openSelected() {
	c, ok := a.list.SelectedConversation()
	if ok {
		a.openConversation(c)
	}
}

func (a *App) openIndex(n int) {
	c, ok := a.list.ByIndex(n)
	if ok {
		a.list.Select(n, 0)
		a.openConversation(c)
	}
}

func (a *App) openConversation(c api.Conversation) {
	ref := api.ThreadRef{ListingID: c.ListingID, Counterparty: c.Counterparty}
	a.do(func(ctx context.Context) error {
		if err := a.vm.OpenThread(ctx, ref, c.DisplayName); err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(a.vm.Thread())
			a.push(a.thread)
			a.app.SetFocus(a.thread.Messages())
		})
		return nil
	})
}

func (a *App) markSelected() {
	ref, ok := a.list.Selected()
	if !ok {
		return
	}
	a.do(func(ctx context.Context) error {
		return a.vm.MarkViewed(ctx, ref)
	})
}

func (a *App) showSelectedDetails() {
	if c, ok := a.list.SelectedConversation(); ok {
		a.showDetails(c)
	}
}

func (a *App) showThreadDetails() {
	th := a.vm.Thread()
	if th == nil {
		return
	}
	c := api.Conversation{ListingID: th.Ref.ListingID, Counterparty: th.Ref.Counterparty, DisplayName: th.Name}
	if n := len(th.Messages); n > 0 {
		c.Latest = th.Messages[n-1]
	}
	a.showDetails(c)
}

func (a *App) showDetails(c api.Conversation) {
	link := ""
	if a.cfg != nil {
		link = a.cfg.ListingLink(inbox.ListingID(c.ListingID))
	}
	a.details.Update(c, link)
	a.push(a.details)
}

func (a *App) showSearch(query string) {
	a.search.SetQuery(query)
	a.push(a.search)
	a.app.SetFocus(a.search.Input())
	if query != "" {
		a.do(func(ctx context.Context) error {
			results, err := a.vm.Search(ctx, query)
			if err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() { a.search.Update(results) })
			return nil
		})
	}
}

// openSearchResult opens the conversation the selected hit belongs to.
func (a *App) openSearchResult() {
	r, ok := a.search.Selected()
	if !ok {
		return
	}
	convs, _ := a.vm.Conversations()
	for _, c := range convs {
		if c.ListingID != r.Message.ListingID {
			continue
		}
		if c.Counterparty == r.Message.SenderID || c.Counterparty == r.Message.ReceiverID {
			a.openConversation(c)
			return
		}
	}
	a.flash.Warn("conversation for %s is not in the inbox", r.Message.ListingID)
	a.sync()
}

// do runs fn off the UI goroutine and reports its error as a flash.
func (a *App) do(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && a.ctx.Err() == nil {
			a.flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.sync)
	}()
}

// sync copies view model state into the widgets. UI goroutine only.
func (a *App) sync() {
	convs, stale := a.vm.Conversations()
	a.list.Update(convs, stale)

	unread := 0
	for _, c := range convs {
		unread += c.Unread
	}
	if st := a.vm.Status(); st != nil {
		a.info.Update(&ui.ProfileData{
			Profile:       st.Profile,
			Identity:      st.Identity,
			Guest:         st.Guest,
			GuestName:     st.GuestName,
			Scope:         st.ThreadScope,
			Conversations: len(convs),
			Unread:        unread,
			Uptime:        time.Duration(st.UptimeMs) * time.Millisecond,
			State:         st.State,
			Stale:         stale,
			LastError:     st.LastError,
		})
		a.statusBar.SetIdentity(st.Identity, st.GuestName)
	}
	a.statusBar.SetSync(unread, stale)

	if a.pages.Top() == ui.Component(a.thread) {
		a.thread.Update(a.vm.Thread())
	}
	a.flashBar.Update(a.flash.Current())
}

// Run loads the initial state, starts following daemon events and blocks
// until the user quits.
func (a *App) Run() error {
	go a.loadInitial()
	go a.vm.Watch(a.ctx, watchBackoff, func(err error) {
		a.flash.Warn("lost daemon events: %v", err)
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetConnected(false)
			a.sync()
		})
	})
	go a.redrawLoop()
	return a.app.Run()
}

func (a *App) loadInitial() {
	ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
	defer cancel()
	err := a.vm.LoadStatus(ctx)
	if err == nil {
		err = a.vm.LoadConversations(ctx)
	}
	if err != nil {
		a.flash.Err(err)
	}
	a.app.QueueUpdateDraw(a.sync)
}

// redrawLoop redraws on view model changes and once a second for the clock
// and flash expiry.
func (a *App) redrawLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetConnected(true)
				a.sync()
			})
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.flash.Current())
				a.statusBar.Tick()
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
