package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if key and ch select this action. ch only matters
// for tcell.KeyRune.
func (a *Action) Matches(key tcell.Key, ch rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && ch == a.Rune
}

// KeyLabel is what the menu shows for the key.
func (a *Action) KeyLabel() string {
	if a.Label != "" {
		return a.Label
	}
	if a.Key == tcell.KeyRune {
		return string(a.Rune)
	}
	return tcell.KeyNames[a.Key]
}

// Registry holds keybindings organized by scope. Bindings keep their
// registration order, and re-adding a name replaces it in place.
type Registry struct {
	global []named
	views  map[string][]named
}

type named struct {
	name   string
	action *Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]named)}
}

// AddGlobal registers a global keybinding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

func upsert(list []named, name string, action *Action) []named {
	for i := range list {
		if list[i].name == name {
			list[i].action = action
			return list
		}
	}
	return append(list, named{name: name, action: action})
}

// Hints returns the visible bindings for view, view bindings first.
func (r *Registry) Hints(view string) []*Action {
	var hints []*Action
	for _, n := range r.views[view] {
		if n.action.Visible {
			hints = append(hints, n.action)
		}
	}
	for _, n := range r.global {
		if n.action.Visible {
			hints = append(hints, n.action)
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action, checking
// view bindings before global ones. Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.Handle(view, ev.Key(), ev.Rune())
}

// Handle is HandleEvent for a decoded key.
func (r *Registry) Handle(view string, key tcell.Key, ch rune) bool {
	for _, n := range r.views[view] {
		if n.action.Matches(key, ch) {
			n.action.Handler()
			return true
		}
	}
	for _, n := range r.global {
		if n.action.Matches(key, ch) {
			n.action.Handler()
			return true
		}
	}
	return false
}
