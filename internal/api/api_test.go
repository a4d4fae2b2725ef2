package api

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bazaarhq/inbox/internal/apperr"
	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/guest"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/localstate"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/bazaarhq/inbox/internal/store"
	"github.com/bazaarhq/inbox/internal/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type fakeRemote struct {
	mu      sync.Mutex
	msgs    []inbox.Message
	sendErr error
	sent    []string
}

func (f *fakeRemote) GetMyConversations(context.Context) ([]inbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs, nil
}

func (f *fakeRemote) GetMessagesForListing(_ context.Context, l inbox.ListingID) ([]inbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []inbox.Message
	for _, m := range f.msgs {
		if m.ListingID == l {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRemote) SendMessage(_ context.Context, _ inbox.ListingID, _ inbox.Identity, content string) (string, error) {
	return f.send(content)
}

func (f *fakeRemote) SendMessageAnon(_ context.Context, name, content string, _ inbox.ListingID, _ inbox.Identity) (string, error) {
	return f.send(name + ": " + content)
}

func (f *fakeRemote) send(content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, content)
	return "m-sent", nil
}

func msg(id string, from, to inbox.Identity, listing inbox.ListingID, tsMs int64) inbox.Message {
	return inbox.Message{ID: id, ListingID: listing, Sender: inbox.Registered(from), Receiver: to, Content: "text " + id, Timestamp: tsMs * 1_000_000}
}

func scenario() []inbox.Message {
	return []inbox.Message{
		msg("1", "A", "B", "L1", 100),
		msg("2", "B", "A", "L1", 200),
		msg("3", "A", "C", "L2", 150),
	}
}

type harness struct {
	client *Client
	svc    *Service
	remote *fakeRemote
	poller *poll.Poller
	bus    *bus.Bus
}

func newHarness(t *testing.T, me inbox.Identity, msgs []inbox.Message) *harness {
	t.Helper()
	return newHarnessWith(t, me, msgs, poll.Config{})
}

func newHarnessWith(t *testing.T, me inbox.Identity, msgs []inbox.Message, cfg poll.Config) *harness {
	t.Helper()
	remote := &fakeRemote{msgs: msgs}
	b := bus.New()
	poller := poll.New(remote, me, cfg, b, nil)
	poller.PollInbox(context.Background())

	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	guests := guest.NewResolver(localstate.NewMemory(), nil)
	svc := NewService(Deps{
		Profile:    "test",
		Poller:     poller,
		Watermarks: watermark.New(store.NewStateBackend(db), b, nil),
		Composers:  compose.NewRegistry(me, guests, remote, poller.Refresh, b, nil),
		Guests:     guests,
		DB:         db,
		Bus:        b,
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	client := NewClient(conn)
	t.Cleanup(func() { _ = client.Close() })

	return &harness{client: client, svc: svc, remote: remote, poller: poller, bus: b}
}

func TestListConversationsScenario(t *testing.T) {
	h := newHarness(t, "A", scenario())
	ctx := context.Background()

	resp, err := h.client.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 2)

	first, second := resp.Conversations[0], resp.Conversations[1]
	assert.Equal(t, "L1", first.ListingID)
	assert.Equal(t, "B", first.Counterparty)
	assert.Equal(t, "2", first.Latest.ID)
	assert.Equal(t, 1, first.Unread)
	assert.Equal(t, "1", first.Badge)
	assert.Equal(t, "L2", second.ListingID)
	assert.Equal(t, "3", second.Latest.ID)
	assert.True(t, second.Latest.FromMe)
	assert.Zero(t, second.Unread)
	assert.False(t, resp.Stale)
}

func TestMarkViewedClearsUnread(t *testing.T) {
	h := newHarness(t, "A", scenario())
	ctx := context.Background()

	unread, err := h.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread.Total)
	require.Len(t, unread.Entries, 1)
	assert.Equal(t, UnreadEntry{ListingID: "L1", Counterparty: "B", Count: 1}, unread.Entries[0])

	mark, err := h.client.MarkViewed(ctx, &MarkViewedRequest{ListingID: "L1", Counterparty: "B", AtMs: 250})
	require.NoError(t, err)
	assert.Equal(t, int64(250), mark.WatermarkMs)

	unread, err = h.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread.Total)
	assert.Empty(t, unread.Badge)
}

func TestMarkViewedValidation(t *testing.T) {
	h := newHarness(t, "A", nil)

	_, err := h.client.MarkViewed(context.Background(), &MarkViewedRequest{ListingID: "L1"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "counterparty")
}

func TestGetThreadFollowsAndMarks(t *testing.T) {
	h := newHarness(t, "A", append(scenario(), inbox.Message{
		ID: "4", ListingID: "L1", Sender: inbox.Registered("B"), Receiver: "A",
		Content: "secret", Timestamp: 300 * 1_000_000, IsDeleted: true,
	}))
	ctx := context.Background()

	resp, err := h.client.GetThread(ctx, &GetThreadRequest{ListingID: "L1", Counterparty: "B", Follow: true, Mark: true})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, []string{"1", "2", "4"}, []string{resp.Messages[0].ID, resp.Messages[1].ID, resp.Messages[2].ID})
	assert.Equal(t, inbox.DeletedPlaceholder, resp.Messages[2].Content)
	assert.True(t, resp.Messages[2].Deleted)
	assert.NotZero(t, resp.WatermarkMs)
	assert.Equal(t, string(compose.Idle), resp.Compose.State)

	status, err := h.client.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.OpenThread)
	assert.Equal(t, "L1", status.OpenThread.ListingID)
	assert.Zero(t, status.Unread)
	assert.Empty(t, status.Composers, "viewing a thread does not create a composer")

	require.NoError(t, h.client.CloseThread(ctx))
	status, err = h.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.OpenThread)
}

func TestGetThreadMarksNoEarlierThanNewestMessage(t *testing.T) {
	ahead := time.Now().Add(time.Minute).UnixMilli()
	h := newHarness(t, "A", []inbox.Message{msg("1", "B", "A", "L1", ahead)})
	ctx := context.Background()

	resp, err := h.client.GetThread(ctx, &GetThreadRequest{ListingID: "L1", Counterparty: "B", Follow: true, Mark: true})
	require.NoError(t, err)
	assert.Equal(t, ahead, resp.WatermarkMs)

	unread, err := h.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread.Total)
}

func TestGetThreadCounterpartyScopeMarksEveryListing(t *testing.T) {
	h := newHarnessWith(t, "A", []inbox.Message{
		msg("1", "B", "A", "L1", 100),
		msg("2", "B", "A", "L2", 200),
		msg("3", "C", "A", "L3", 300),
	}, poll.Config{Scope: inbox.ScopeCounterparty})
	ctx := context.Background()

	resp, err := h.client.GetThread(ctx, &GetThreadRequest{ListingID: "L1", Counterparty: "B", Mark: true})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)

	unread, err := h.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread.Total)
	require.Len(t, unread.Entries, 1)
	assert.Equal(t, "C", unread.Entries[0].Counterparty)
}

func TestGetThreadFromSnapshotWithoutFollow(t *testing.T) {
	h := newHarness(t, "A", scenario())

	resp, err := h.client.GetThread(context.Background(), &GetThreadRequest{ListingID: "L1", Counterparty: "B"})
	require.NoError(t, err)
	assert.Len(t, resp.Messages, 2)
	assert.Zero(t, resp.WatermarkMs)
	_, open := h.poller.Thread()
	assert.False(t, open)
}

func TestGuestStatusAndThread(t *testing.T) {
	h := newHarness(t, "", scenario())
	ctx := context.Background()

	status, err := h.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Guest)
	assert.Zero(t, status.Unread)
	assert.Zero(t, status.Conversations)

	resp, err := h.client.GetThread(ctx, &GetThreadRequest{ListingID: "L1", Counterparty: "B", Follow: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
}

func TestGuestComposeFlow(t *testing.T) {
	h := newHarness(t, "", nil)
	ctx := context.Background()

	_, err := h.client.Compose(ctx, &ComposeRequest{ListingID: "L1", Receiver: "S", Content: "Is it available?"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, guest.ErrNameRequired), "err = %v", err)

	_, err = h.client.ConfirmGuestName(ctx, &ConfirmGuestNameRequest{ListingID: "L1", Receiver: "S", Name: "   "})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	st, err := h.client.ConfirmGuestName(ctx, &ConfirmGuestNameRequest{ListingID: "L1", Receiver: "S", Name: " Fatou "})
	require.NoError(t, err)
	assert.Equal(t, string(compose.Sent), st.State)
	assert.Equal(t, "m-sent", st.LastMessageID)

	st, err = h.client.Compose(ctx, &ComposeRequest{ListingID: "L2", Receiver: "S", Content: "Second"})
	require.NoError(t, err)
	assert.Equal(t, string(compose.Sent), st.State)
	assert.Equal(t, []string{"Fatou: Is it available?", "Fatou: Second"}, h.remote.sent)

	status, err := h.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fatou", status.GuestName)
}

func TestComposeFailureThenRetry(t *testing.T) {
	h := newHarness(t, "A", nil)
	ctx := context.Background()
	h.remote.sendErr = errors.New("service down")

	_, err := h.client.Compose(ctx, &ComposeRequest{ListingID: "L1", Receiver: "B", Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnavailable, apperr.CodeOf(err))

	status, err := h.client.GetStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status.Composers, 1)
	assert.Equal(t, string(compose.Failed), status.Composers[0].State)
	assert.Equal(t, "hello", status.Composers[0].Draft)

	h.remote.mu.Lock()
	h.remote.sendErr = nil
	h.remote.mu.Unlock()
	st, err := h.client.RetrySend(ctx, &RetrySendRequest{ListingID: "L1", Receiver: "B"})
	require.NoError(t, err)
	assert.Equal(t, string(compose.Sent), st.State)
	assert.Empty(t, st.Draft)
}

func TestComposeRejectsEmptyContent(t *testing.T) {
	h := newHarness(t, "A", nil)

	_, err := h.client.Compose(context.Background(), &ComposeRequest{ListingID: "L1", Receiver: "B", Content: "  "})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.Empty(t, h.remote.sent)
}

func TestSearchMessages(t *testing.T) {
	h := newHarness(t, "A", scenario())
	snap := h.poller.Inbox()
	require.NoError(t, h.svc.d.DB.ReplaceSnapshot("A", snap.Messages, snap.FetchedAt))
	ctx := context.Background()

	resp, err := h.client.SearchMessages(ctx, &SearchMessagesRequest{Query: "text", ListingID: "L2"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "3", resp.Results[0].Message.ID)

	_, err = h.client.SearchMessages(ctx, &SearchMessagesRequest{Query: " "})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestClearLocalData(t *testing.T) {
	h := newHarness(t, "A", scenario())
	ctx := context.Background()

	_, err := h.client.MarkViewed(ctx, &MarkViewedRequest{ListingID: "L1", Counterparty: "B", AtMs: 250})
	require.NoError(t, err)
	require.NoError(t, h.client.ClearLocalData(ctx))

	unread, err := h.client.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread.Total)
}

func TestWatchInboxStreamsEvents(t *testing.T) {
	h := newHarness(t, "A", scenario())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := h.client.WatchInbox(ctx, "watermark.")
	require.NoError(t, err)

	// The subscription is registered once the handler runs; keep emitting
	// until the first event arrives.
	got := make(chan *Event, 1)
	go func() {
		evt, err := stream.Recv()
		if err == nil {
			got <- evt
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		h.bus.Emit(bus.KindInboxSnapshot, poll.Snapshot{})
		h.svc.d.Watermarks.MarkViewed(inbox.ConversationKey{ListingID: "L1", Counterparty: "B"}, time.UnixMilli(42))
		select {
		case evt := <-got:
			assert.Equal(t, bus.KindWatermarkUpdated, evt.Kind)
			assert.NotEmpty(t, evt.ID)
			assert.Equal(t, "L1-B at 42", evt.Summary)
			return
		case <-deadline:
			t.Fatal("no event received")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMessageViewBySenderKind(t *testing.T) {
	guestMsg := messageView(inbox.Message{ID: "1", ListingID: "L1", Sender: inbox.Anonymous("Fatou", "r1"), Receiver: "A"}, "A")
	assert.True(t, guestMsg.Anonymous)
	assert.Equal(t, "Fatou", guestMsg.SenderName)
	assert.Equal(t, "r1", guestMsg.SenderRef)
	assert.Empty(t, guestMsg.SenderID)

	own := messageView(msg("2", "A", "B", "L1", 10), "A")
	assert.Equal(t, "A", own.SenderID)
	assert.True(t, own.FromMe)
	assert.Empty(t, own.SenderRef)
}
