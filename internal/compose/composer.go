// Package compose drives message sends for a thread, including the guest
// path where a display name must be chosen before the first anonymous send.
package compose

import (
	"context"
	"strings"
	"sync"

	"github.com/bazaarhq/inbox/internal/apperr"
	"github.com/bazaarhq/inbox/internal/guest"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSendInProgress rejects a second send while one is in flight.
	ErrSendInProgress = apperr.FailedPrecondition("a send is already in progress")
	// ErrNameRequired is returned when the composer waits for a guest name.
	ErrNameRequired = guest.ErrNameRequired
	// ErrEmptyContent rejects blank messages before any network call.
	ErrEmptyContent = apperr.Validation("content", "must not be empty")
)

// ThreadKey names the thread a composer writes into.
type ThreadKey struct {
	ListingID inbox.ListingID
	Receiver  inbox.Identity
}

// Sender is the write side of the message service.
type Sender interface {
	SendMessage(ctx context.Context, listing inbox.ListingID, receiver inbox.Identity, content string) (string, error)
	SendMessageAnon(ctx context.Context, senderName, content string, listing inbox.ListingID, receiver inbox.Identity) (string, error)
}

// Status is a point-in-time view of a composer.
type Status struct {
	Thread        ThreadKey
	State         State
	Draft         string
	LastError     string
	LastMessageID string
}

// Composer owns the draft and send state for one thread. At most one send is
// in flight at a time.
type Composer struct {
	mu      sync.Mutex
	key     ThreadKey
	me      inbox.Identity
	machine *Machine
	guests  *guest.Resolver
	sender  Sender
	refresh func()
	logger  *zap.Logger

	draft   string
	lastErr error
	lastID  string
}

// Submit sends content. Guests without a confirmed name land in
// AwaitingName with the draft kept and get ErrNameRequired.
func (c *Composer) Submit(ctx context.Context, content string) (Status, error) {
	c.mu.Lock()
	if c.machine.Current() == Sending {
		c.mu.Unlock()
		return c.Status(), ErrSendInProgress
	}
	if strings.TrimSpace(content) == "" {
		c.mu.Unlock()
		return c.Status(), ErrEmptyContent
	}
	c.draft = content

	switch c.machine.Current() {
	case Sent, Failed:
		_ = c.machine.Transition(Idle)
	}

	name, err := c.senderName()
	if err != nil {
		if c.machine.Current() == Idle {
			_ = c.machine.Transition(AwaitingName)
		}
		c.mu.Unlock()
		return c.Status(), err
	}
	return c.sendLocked(ctx, name)
}

// ConfirmName records the guest name and sends the pending draft. An invalid
// name leaves the composer waiting.
func (c *Composer) ConfirmName(ctx context.Context, name string) (Status, error) {
	c.mu.Lock()
	if c.machine.Current() != AwaitingName {
		c.mu.Unlock()
		return c.Status(), apperr.FailedPrecondition("no message is waiting for a name")
	}
	clean, err := c.guests.Confirm(name)
	if err != nil {
		c.mu.Unlock()
		return c.Status(), err
	}
	return c.sendLocked(ctx, clean)
}

// Retry resends the preserved draft after a failure.
func (c *Composer) Retry(ctx context.Context) (Status, error) {
	c.mu.Lock()
	if c.machine.Current() != Failed {
		c.mu.Unlock()
		return c.Status(), apperr.FailedPrecondition("nothing to retry")
	}
	name, err := c.senderName()
	if err != nil {
		_ = c.machine.Transition(Idle)
		_ = c.machine.Transition(AwaitingName)
		c.mu.Unlock()
		return c.Status(), err
	}
	return c.sendLocked(ctx, name)
}

// Cancel abandons a pending name prompt. The draft is kept.
func (c *Composer) Cancel() Status {
	c.mu.Lock()
	if c.machine.Current() == AwaitingName {
		_ = c.machine.Transition(Idle)
	}
	c.mu.Unlock()
	return c.Status()
}

// Status reports the current state and draft.
func (c *Composer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Thread:        c.key,
		State:         c.machine.Current(),
		Draft:         c.draft,
		LastMessageID: c.lastID,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// senderName returns "" for registered users, the session guest name for
// guests, or ErrNameRequired. Caller holds c.mu.
func (c *Composer) senderName() (string, error) {
	if c.me != "" {
		return "", nil
	}
	return c.guests.Resolve()
}

// sendLocked enters Sending, releases c.mu for the network call and records
// the outcome. Caller holds c.mu.
func (c *Composer) sendLocked(ctx context.Context, guestName string) (Status, error) {
	if err := c.machine.Transition(Sending); err != nil {
		c.mu.Unlock()
		return c.Status(), apperr.Wrap(apperr.CodeInternal, "enter sending", err)
	}
	content := strings.TrimSpace(c.draft)
	attempt := uuid.NewString()
	c.mu.Unlock()

	log := c.logger.With(
		zap.String("attempt", attempt),
		zap.String("listing", string(c.key.ListingID)),
		zap.Bool("anonymous", c.me == ""),
	)
	log.Debug("sending message")

	var (
		id  string
		err error
	)
	if c.me != "" {
		id, err = c.sender.SendMessage(ctx, c.key.ListingID, c.key.Receiver, content)
	} else {
		id, err = c.sender.SendMessageAnon(ctx, guestName, content, c.key.ListingID, c.key.Receiver)
	}

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		_ = c.machine.Transition(Failed)
		c.mu.Unlock()
		log.Warn("send failed", zap.Error(err))
		return c.Status(), apperr.Unavailable("send failed", err)
	}
	c.draft = ""
	c.lastErr = nil
	c.lastID = id
	_ = c.machine.Transition(Sent)
	c.mu.Unlock()

	log.Info("message sent", zap.String("message_id", id))
	if c.refresh != nil {
		c.refresh()
	}
	return c.Status(), nil
}
