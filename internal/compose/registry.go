package compose

import (
	"sync"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/guest"
	"github.com/bazaarhq/inbox/internal/inbox"
	"go.uber.org/zap"
)

// Registry holds one composer per thread for the daemon's identity.
type Registry struct {
	mu        sync.Mutex
	composers map[ThreadKey]*Composer

	me      inbox.Identity
	guests  *guest.Resolver
	sender  Sender
	refresh func()
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewRegistry builds composers that send as me (empty for a guest) and call
// refresh after each successful send.
func NewRegistry(me inbox.Identity, guests *guest.Resolver, sender Sender, refresh func(), b *bus.Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		composers: make(map[ThreadKey]*Composer),
		me:        me,
		guests:    guests,
		sender:    sender,
		refresh:   refresh,
		bus:       b,
		logger:    logger,
	}
}

// Get returns the composer for key, creating an idle one on first use.
func (r *Registry) Get(key ThreadKey) *Composer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.composers[key]; ok {
		return c
	}
	c := &Composer{
		key:     key,
		me:      r.me,
		machine: NewMachine(key, r.bus),
		guests:  r.guests,
		sender:  r.sender,
		refresh: r.refresh,
		logger:  r.logger.Named("compose"),
	}
	r.composers[key] = c
	return c
}

// Lookup returns the composer for key without creating one.
func (r *Registry) Lookup(key ThreadKey) (*Composer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.composers[key]
	return c, ok
}

// Statuses reports every composer the registry has created.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	all := make([]*Composer, 0, len(r.composers))
	for _, c := range r.composers {
		all = append(all, c)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(all))
	for _, c := range all {
		out = append(out, c.Status())
	}
	return out
}
