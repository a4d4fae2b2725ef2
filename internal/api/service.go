package api

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/apperr"
	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/guest"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/bazaarhq/inbox/internal/status"
	"github.com/bazaarhq/inbox/internal/store"
	"github.com/bazaarhq/inbox/internal/watermark"
	"go.uber.org/zap"
)

// Deps are the daemon components the service reads from and drives.
type Deps struct {
	Profile    string
	Poller     *poll.Poller
	Watermarks *watermark.Store
	Composers  *compose.Registry
	Guests     *guest.Resolver
	// Health reports daemon state. Nil derives it from the inbox snapshot.
	Health *status.Machine
	// DB backs search and local data clearing. Nil disables both.
	DB     *store.DB
	Bus    *bus.Bus
	Logger *zap.Logger
}

// Service implements Server on top of the daemon's in-memory snapshots.
type Service struct {
	d         Deps
	me        inbox.Identity
	startedAt time.Time
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		d:         d,
		me:        d.Poller.Identity(),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

func (s *Service) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	snap := s.d.Poller.Inbox()
	resp := &GetStatusResponse{
		Profile:       s.d.Profile,
		Identity:      string(s.me),
		Guest:         s.me == "",
		ThreadScope:   string(s.d.Poller.Scope()),
		Stale:         snap.Stale,
		LastError:     snap.Err,
		FetchedAtMs:   unixMs(snap.FetchedAt),
		Conversations: len(inbox.Reduce(snap.Messages, s.me)),
		Unread:        inbox.CountUnread(snap.Messages, s.me, s.d.Watermarks),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
	}
	resp.State, resp.StateReason = s.health(snap)
	if s.me == "" {
		if name, err := s.d.Guests.Resolve(); err == nil {
			resp.GuestName = name
		}
	}
	if t, ok := s.d.Poller.Thread(); ok {
		resp.OpenThread = &ThreadRef{ListingID: string(t.Thread.ListingID), Counterparty: string(t.Thread.Counterparty)}
	}
	for _, st := range s.d.Composers.Statuses() {
		resp.Composers = append(resp.Composers, composeView(st))
	}
	sort.Slice(resp.Composers, func(i, j int) bool {
		a, b := resp.Composers[i], resp.Composers[j]
		if a.ListingID != b.ListingID {
			return a.ListingID < b.ListingID
		}
		return a.Receiver < b.Receiver
	})
	return resp, nil
}

func (s *Service) health(snap poll.Snapshot) (string, string) {
	if s.d.Health != nil {
		st, reason := s.d.Health.Current()
		return string(st), reason
	}
	if snap.Stale {
		return string(status.Degraded), snap.Err
	}
	return string(status.Ready), ""
}

// Conversations derives the annotated conversation list from the current
// inbox snapshot.
func (s *Service) Conversations() ([]Conversation, poll.Snapshot) {
	snap := s.d.Poller.Inbox()
	convs := inbox.Annotate(inbox.Reduce(snap.Messages, s.me), snap.Messages, s.me, s.d.Watermarks)
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, Conversation{
			ListingID:    string(c.Key.ListingID),
			Counterparty: string(c.Key.Counterparty),
			DisplayName:  counterpartyName(c, s.me),
			Latest:       messageView(c.LatestMessage, s.me),
			Unread:       c.UnreadCount,
			Badge:        inbox.FormatBadge(c.UnreadCount),
		})
	}
	return out, snap
}

func (s *Service) ListConversations(_ context.Context, _ *ListConversationsRequest) (*ListConversationsResponse, error) {
	convs, snap := s.Conversations()
	return &ListConversationsResponse{
		Conversations: convs,
		Stale:         snap.Stale,
		FetchedAtMs:   unixMs(snap.FetchedAt),
	}, nil
}

func (s *Service) GetThread(ctx context.Context, req *GetThreadRequest) (*GetThreadResponse, error) {
	listing, other, err := threadArgs(req.ListingID, req.Counterparty, "counterparty")
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	key := inbox.ConversationKey{ListingID: listing, Counterparty: other}

	resp := &GetThreadResponse{}
	var shown []inbox.Message
	if req.Follow {
		ref := poll.ThreadRef{ListingID: listing, Counterparty: other}
		s.d.Poller.OpenThread(ref)
		snap, _ := s.d.Poller.Thread()
		if snap.Seq == 0 {
			s.d.Poller.PollThread(ctx)
			snap, _ = s.d.Poller.Thread()
		}
		shown = snap.Messages
		resp.Messages = messageViews(shown, s.me)
		resp.Stale = snap.Stale
		resp.LastError = snap.Err
		resp.FetchedAtMs = unixMs(snap.FetchedAt)
	} else {
		snap := s.d.Poller.Inbox()
		shown = inbox.Thread(s.d.Poller.Scope(), snap.Messages, s.me, other, listing)
		resp.Messages = messageViews(shown, s.me)
		resp.Stale = snap.Stale
		resp.LastError = snap.Err
		resp.FetchedAtMs = unixMs(snap.FetchedAt)
	}

	if req.Mark {
		resp.WatermarkMs = s.markShown(key, shown)
	} else {
		resp.WatermarkMs = s.d.Watermarks.Watermark(key)
	}
	thread := compose.ThreadKey{ListingID: listing, Receiver: other}
	if c, ok := s.d.Composers.Lookup(thread); ok {
		resp.Compose = composeView(c.Status())
	} else {
		resp.Compose = composeView(compose.Status{Thread: thread, State: compose.Idle})
	}
	return resp, nil
}

// markShown marks key and every other conversation with the same counterparty
// that has a message in shown. No watermark is set earlier than the newest
// shown message of its conversation, whatever the local clock says.
func (s *Service) markShown(key inbox.ConversationKey, shown []inbox.Message) int64 {
	now := s.now().UnixMilli()
	at := map[inbox.ConversationKey]int64{key: now}
	for _, m := range shown {
		k := inbox.ConversationKey{ListingID: m.ListingID, Counterparty: key.Counterparty}
		at[k] = max(at[k], now, m.TimestampMs())
	}
	var marked int64
	for k, ms := range at {
		got := s.d.Watermarks.MarkViewed(k, time.UnixMilli(ms))
		if k == key {
			marked = got
		}
	}
	return marked
}

func (s *Service) CloseThread(_ context.Context, _ *CloseThreadRequest) (*CloseThreadResponse, error) {
	s.d.Poller.CloseThread()
	return &CloseThreadResponse{}, nil
}

func (s *Service) UnreadCount(_ context.Context, _ *UnreadCountRequest) (*UnreadCountResponse, error) {
	snap := s.d.Poller.Inbox()
	byConv := inbox.UnreadByConversation(snap.Messages, s.me, s.d.Watermarks)
	resp := &UnreadCountResponse{}
	for key, n := range byConv {
		resp.Total += n
		resp.Entries = append(resp.Entries, UnreadEntry{
			ListingID:    string(key.ListingID),
			Counterparty: string(key.Counterparty),
			Count:        n,
		})
	}
	sort.Slice(resp.Entries, func(i, j int) bool {
		a, b := resp.Entries[i], resp.Entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.ListingID != b.ListingID {
			return a.ListingID < b.ListingID
		}
		return a.Counterparty < b.Counterparty
	})
	resp.Badge = inbox.FormatBadge(resp.Total)
	return resp, nil
}

// Unread is the total unread count for the current snapshot.
func (s *Service) Unread() int {
	snap := s.d.Poller.Inbox()
	return inbox.CountUnread(snap.Messages, s.me, s.d.Watermarks)
}

func (s *Service) MarkViewed(_ context.Context, req *MarkViewedRequest) (*MarkViewedResponse, error) {
	listing, other, err := threadArgs(req.ListingID, req.Counterparty, "counterparty")
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	if req.AtMs < 0 {
		return nil, apperr.ToStatus(apperr.Validation("at_ms", "must not be negative"))
	}
	at := s.now()
	if req.AtMs > 0 {
		at = time.UnixMilli(req.AtMs)
	}
	ms := s.d.Watermarks.MarkViewed(inbox.ConversationKey{ListingID: listing, Counterparty: other}, at)
	return &MarkViewedResponse{WatermarkMs: ms}, nil
}

func (s *Service) Compose(ctx context.Context, req *ComposeRequest) (*ComposeStatus, error) {
	c, err := s.composer(req.ListingID, req.Receiver)
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	st, err := c.Submit(ctx, req.Content)
	return s.composeResult(st, err)
}

func (s *Service) ConfirmGuestName(ctx context.Context, req *ConfirmGuestNameRequest) (*ComposeStatus, error) {
	c, err := s.composer(req.ListingID, req.Receiver)
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	st, err := c.ConfirmName(ctx, req.Name)
	return s.composeResult(st, err)
}

func (s *Service) RetrySend(ctx context.Context, req *RetrySendRequest) (*ComposeStatus, error) {
	c, err := s.composer(req.ListingID, req.Receiver)
	if err != nil {
		return nil, apperr.ToStatus(err)
	}
	st, err := c.Retry(ctx)
	return s.composeResult(st, err)
}

func (s *Service) composer(listing, receiver string) (*compose.Composer, error) {
	l, r, err := threadArgs(listing, receiver, "receiver")
	if err != nil {
		return nil, err
	}
	return s.d.Composers.Get(compose.ThreadKey{ListingID: l, Receiver: r}), nil
}

func (s *Service) composeResult(st compose.Status, err error) (*ComposeStatus, error) {
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnknown {
			s.d.Logger.Error("compose failed", zap.Error(err))
		}
		return nil, apperr.ToStatus(err)
	}
	v := composeView(st)
	return &v, nil
}

func (s *Service) SearchMessages(_ context.Context, req *SearchMessagesRequest) (*SearchMessagesResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.ToStatus(apperr.Validation("query", "must not be empty"))
	}
	if s.d.DB == nil {
		return nil, apperr.ToStatus(apperr.FailedPrecondition("search is not available"))
	}
	results, err := s.d.DB.SearchMessages(s.me, query, inbox.ListingID(req.ListingID), req.Limit)
	if err != nil {
		s.d.Logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		return nil, apperr.ToStatus(apperr.Validation("query", err.Error()))
	}
	resp := &SearchMessagesResponse{Results: make([]SearchResult, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, SearchResult{Message: messageView(r.Message, s.me), Snippet: r.Snippet})
	}
	return resp, nil
}

func (s *Service) Refresh(_ context.Context, _ *RefreshRequest) (*RefreshResponse, error) {
	s.d.Poller.Refresh()
	return &RefreshResponse{}, nil
}

// ClearLocalData forgets everything the profile keeps on disk: watermarks,
// the guest name and the message cache.
func (s *Service) ClearLocalData(_ context.Context, _ *ClearLocalDataRequest) (*ClearLocalDataResponse, error) {
	var errs []error
	if err := s.d.Watermarks.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := s.d.Guests.Forget(); err != nil {
		errs = append(errs, err)
	}
	if s.d.DB != nil {
		if err := s.d.DB.Wipe(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.d.Logger.Error("clear local data", zap.Error(err))
		return nil, apperr.ToStatus(apperr.Wrap(apperr.CodeInternal, "clear local data", err))
	}
	s.d.Logger.Info("local data cleared")
	s.d.Bus.Emit(bus.KindLocalCleared, nil)
	return &ClearLocalDataResponse{}, nil
}

func threadArgs(listing, other, otherField string) (inbox.ListingID, inbox.Identity, error) {
	listing = strings.TrimSpace(listing)
	other = strings.TrimSpace(other)
	if listing == "" {
		return "", "", apperr.Validation("listing_id", "is required")
	}
	if other == "" {
		return "", "", apperr.Validation(otherField, "is required")
	}
	return inbox.ListingID(listing), inbox.Identity(other), nil
}

// counterpartyName prefers the guest's chosen name when the other side is
// anonymous.
func counterpartyName(c inbox.Conversation, me inbox.Identity) string {
	latest := c.LatestMessage
	if latest.Sender.IsAnonymous() && latest.Receiver == me {
		return latest.Sender.DisplayName()
	}
	return string(c.Key.Counterparty)
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
