package model

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/guest"
	"google.golang.org/grpc"
)

// Daemon is the part of the daemon client the TUI uses.
type Daemon interface {
	GetStatus(ctx context.Context) (*api.GetStatusResponse, error)
	ListConversations(ctx context.Context) (*api.ListConversationsResponse, error)
	GetThread(ctx context.Context, req *api.GetThreadRequest) (*api.GetThreadResponse, error)
	CloseThread(ctx context.Context) error
	MarkViewed(ctx context.Context, req *api.MarkViewedRequest) (*api.MarkViewedResponse, error)
	Compose(ctx context.Context, req *api.ComposeRequest) (*api.ComposeStatus, error)
	ConfirmGuestName(ctx context.Context, req *api.ConfirmGuestNameRequest) (*api.ComposeStatus, error)
	RetrySend(ctx context.Context, req *api.RetrySendRequest) (*api.ComposeStatus, error)
	SearchMessages(ctx context.Context, req *api.SearchMessagesRequest) (*api.SearchMessagesResponse, error)
	Refresh(ctx context.Context) error
	ClearLocalData(ctx context.Context) error
	WatchInbox(ctx context.Context, kinds ...string) (grpc.ServerStreamingClient[api.Event], error)
}

var _ Daemon = (*api.Client)(nil)

// ErrNoThread is returned by thread actions when nothing is open.
var ErrNoThread = errors.New("no conversation open")

// Thread is the conversation currently on screen.
type Thread struct {
	Ref      api.ThreadRef
	Name     string
	Messages []api.Message
	Compose  api.ComposeStatus
	Stale    bool
	Err      string
}

// ViewModel caches daemon state for the views and signals when it changed.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	status        *api.GetStatusResponse
	conversations []api.Conversation
	stale         bool
	thread        *Thread

	refreshCh chan struct{}
}

// NewViewModel creates a view model backed by d.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh fires after any cached state changed.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadConversations fetches the inbox, newest first.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	resp, err := vm.daemon.ListConversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = resp.Conversations
	vm.stale = resp.Stale
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// OpenThread follows a conversation and marks it viewed.
func (vm *ViewModel) OpenThread(ctx context.Context, ref api.ThreadRef, name string) error {
	resp, err := vm.daemon.GetThread(ctx, &api.GetThreadRequest{
		ListingID:    ref.ListingID,
		Counterparty: ref.Counterparty,
		Follow:       true,
		Mark:         true,
	})
	if err != nil {
		return err
	}
	if name == "" {
		name = ref.Counterparty
	}
	vm.mu.Lock()
	vm.thread = threadFrom(ref, name, resp)
	vm.clearUnreadLocked(ref)
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ReloadThread re-reads the open thread. New messages arriving while it is
// on screen count as seen.
func (vm *ViewModel) ReloadThread(ctx context.Context) error {
	vm.mu.RLock()
	t := vm.thread
	vm.mu.RUnlock()
	if t == nil {
		return nil
	}
	resp, err := vm.daemon.GetThread(ctx, &api.GetThreadRequest{
		ListingID:    t.Ref.ListingID,
		Counterparty: t.Ref.Counterparty,
		Follow:       true,
		Mark:         true,
	})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.thread != nil && vm.thread.Ref == t.Ref {
		vm.thread = threadFrom(t.Ref, t.Name, resp)
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// MarkViewed marks a conversation read without opening it.
func (vm *ViewModel) MarkViewed(ctx context.Context, ref api.ThreadRef) error {
	if _, err := vm.daemon.MarkViewed(ctx, &api.MarkViewedRequest{
		ListingID:    ref.ListingID,
		Counterparty: ref.Counterparty,
	}); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.clearUnreadLocked(ref)
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// CloseThread stops following the open thread.
func (vm *ViewModel) CloseThread(ctx context.Context) error {
	vm.mu.Lock()
	vm.thread = nil
	vm.mu.Unlock()
	vm.signalRefresh()
	return vm.daemon.CloseThread(ctx)
}

// Send submits content to the open thread. needName reports that the
// daemon is holding the draft until a guest name is confirmed.
func (vm *ViewModel) Send(ctx context.Context, content string) (needName bool, err error) {
	ref, err := vm.openRef()
	if err != nil {
		return false, err
	}
	vm.setCompose(ref, api.ComposeStatus{ListingID: ref.ListingID, Receiver: ref.Counterparty, State: string(compose.Sending), Draft: content})
	st, err := vm.daemon.Compose(ctx, &api.ComposeRequest{
		ListingID: ref.ListingID,
		Receiver:  ref.Counterparty,
		Content:   content,
	})
	if errors.Is(err, guest.ErrNameRequired) {
		vm.setCompose(ref, api.ComposeStatus{ListingID: ref.ListingID, Receiver: ref.Counterparty, State: string(compose.AwaitingName), Draft: content})
		return true, nil
	}
	if err != nil {
		// The daemon's composer holds the outcome and the preserved draft.
		if rerr := vm.ReloadThread(ctx); rerr != nil {
			vm.setCompose(ref, api.ComposeStatus{ListingID: ref.ListingID, Receiver: ref.Counterparty, State: string(compose.Failed), Draft: content, LastError: err.Error()})
		}
		return false, err
	}
	vm.setCompose(ref, *st)
	return false, nil
}

// ConfirmName supplies the guest name and sends the held draft.
func (vm *ViewModel) ConfirmName(ctx context.Context, name string) error {
	ref, err := vm.openRef()
	if err != nil {
		return err
	}
	st, err := vm.daemon.ConfirmGuestName(ctx, &api.ConfirmGuestNameRequest{
		ListingID: ref.ListingID,
		Receiver:  ref.Counterparty,
		Name:      name,
	})
	if err != nil {
		return err
	}
	vm.setCompose(ref, *st)
	return nil
}

// Retry resends the draft of a failed send.
func (vm *ViewModel) Retry(ctx context.Context) error {
	ref, err := vm.openRef()
	if err != nil {
		return err
	}
	st, err := vm.daemon.RetrySend(ctx, &api.RetrySendRequest{ListingID: ref.ListingID, Receiver: ref.Counterparty})
	if err != nil {
		return err
	}
	vm.setCompose(ref, *st)
	return nil
}

// Search runs a full-text query over cached messages.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]api.SearchResult, error) {
	resp, err := vm.daemon.SearchMessages(ctx, &api.SearchMessagesRequest{Query: query, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Refresh asks the daemon to poll now.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	return vm.daemon.Refresh(ctx)
}

// ClearLocalData wipes the daemon's watermarks, guest name and cache.
func (vm *ViewModel) ClearLocalData(ctx context.Context) error {
	if err := vm.daemon.ClearLocalData(ctx); err != nil {
		return err
	}
	return vm.LoadConversations(ctx)
}

// Watch reloads state on daemon events until ctx ends. A broken stream is
// reopened after backoff. onErr, if set, sees each stream failure.
func (vm *ViewModel) Watch(ctx context.Context, backoff time.Duration, onErr func(error)) {
	for ctx.Err() == nil {
		err := vm.watchOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && onErr != nil {
			onErr(err)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (vm *ViewModel) watchOnce(ctx context.Context) error {
	stream, err := vm.daemon.WatchInbox(ctx)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		vm.Apply(ctx, evt)
	}
}

// Apply reloads whatever evt may have changed.
func (vm *ViewModel) Apply(ctx context.Context, evt *api.Event) {
	switch {
	case evt.Kind == bus.KindThreadSnapshot, strings.HasPrefix(evt.Kind, "compose."):
		_ = vm.ReloadThread(ctx)
	case evt.Kind == bus.KindInboxSnapshot, evt.Kind == bus.KindPollFailed, evt.Kind == bus.KindLocalCleared:
		_ = vm.LoadConversations(ctx)
		_ = vm.LoadStatus(ctx)
	case strings.HasPrefix(evt.Kind, "watermark."):
		_ = vm.LoadConversations(ctx)
	case evt.Kind == bus.KindDaemonState:
		_ = vm.LoadStatus(ctx)
	}
}

func (vm *ViewModel) openRef() (api.ThreadRef, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.thread == nil {
		return api.ThreadRef{}, ErrNoThread
	}
	return vm.thread.Ref, nil
}

func (vm *ViewModel) setCompose(ref api.ThreadRef, st api.ComposeStatus) {
	vm.mu.Lock()
	if vm.thread != nil && vm.thread.Ref == ref {
		vm.thread.Compose = st
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// clearUnreadLocked zeroes the badge of ref until the next inbox load
// confirms it.
func (vm *ViewModel) clearUnreadLocked(ref api.ThreadRef) {
	i := slices.IndexFunc(vm.conversations, func(c api.Conversation) bool {
		return c.ListingID == ref.ListingID && c.Counterparty == ref.Counterparty
	})
	if i < 0 {
		return
	}
	convs := slices.Clone(vm.conversations)
	convs[i].Unread = 0
	convs[i].Badge = ""
	vm.conversations = convs
}

func threadFrom(ref api.ThreadRef, name string, resp *api.GetThreadResponse) *Thread {
	return &Thread{
		Ref:      ref,
		Name:     name,
		Messages: resp.Messages,
		Compose:  resp.Compose,
		Stale:    resp.Stale,
		Err:      resp.LastError,
	}
}

// Status returns the last loaded daemon status, or nil.
func (vm *ViewModel) Status() *api.GetStatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Conversations returns the cached inbox and whether it is stale.
func (vm *ViewModel) Conversations() ([]api.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations, vm.stale
}

// Thread returns a copy of the open thread, or nil.
func (vm *ViewModel) Thread() *Thread {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.thread == nil {
		return nil
	}
	t := *vm.thread
	return &t
}
