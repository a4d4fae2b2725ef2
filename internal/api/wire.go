// Package api serves the daemon's InboxService to local clients over the
// profile socket.
package api

import (
	"context"

	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/rpc"
	"google.golang.org/grpc"
)

// ServiceName is the gRPC service path.
const ServiceName = "inbox.v1.InboxService"

// Message is a message as shown to a client. Content is already replaced by
// the placeholder for deleted messages.
type Message struct {
	ID          string `json:"id"`
	ListingID   string `json:"listing_id"`
	SenderID    string `json:"sender_id,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`
	Anonymous   bool   `json:"anonymous,omitempty"`
	SenderRef   string `json:"sender_ref,omitempty"`
	ReceiverID  string `json:"receiver_id"`
	Content     string `json:"content"`
	TimestampMs int64  `json:"timestamp_ms"`
	Deleted     bool   `json:"deleted,omitempty"`
	Edited      bool   `json:"edited,omitempty"`
	FromMe      bool   `json:"from_me,omitempty"`
}

type Conversation struct {
	ListingID    string  `json:"listing_id"`
	Counterparty string  `json:"counterparty"`
	DisplayName  string  `json:"display_name"`
	Latest       Message `json:"latest"`
	Unread       int     `json:"unread"`
	Badge        string  `json:"badge,omitempty"`
}

// ComposeStatus mirrors compose.Status.
type ComposeStatus struct {
	ListingID     string `json:"listing_id"`
	Receiver      string `json:"receiver"`
	State         string `json:"state"`
	Draft         string `json:"draft,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	LastMessageID string `json:"last_message_id,omitempty"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile       string          `json:"profile"`
	State         string          `json:"state"`
	StateReason   string          `json:"state_reason,omitempty"`
	Identity      string          `json:"identity,omitempty"`
	Guest         bool            `json:"guest"`
	GuestName     string          `json:"guest_name,omitempty"`
	ThreadScope   string          `json:"thread_scope"`
	Stale         bool            `json:"stale"`
	LastError     string          `json:"last_error,omitempty"`
	FetchedAtMs   int64           `json:"fetched_at_ms,omitempty"`
	Conversations int             `json:"conversations"`
	Unread        int             `json:"unread"`
	UptimeMs      int64           `json:"uptime_ms"`
	OpenThread    *ThreadRef      `json:"open_thread,omitempty"`
	Composers     []ComposeStatus `json:"composers,omitempty"`
}

type ThreadRef struct {
	ListingID    string `json:"listing_id"`
	Counterparty string `json:"counterparty"`
}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Stale         bool           `json:"stale"`
	FetchedAtMs   int64          `json:"fetched_at_ms,omitempty"`
}

// GetThreadRequest reads one thread. Follow keeps the daemon polling it at
// the thread interval until CloseThread or another thread is followed. Mark
// records the thread as viewed now.
type GetThreadRequest struct {
	ListingID    string `json:"listing_id"`
	Counterparty string `json:"counterparty"`
	Follow       bool   `json:"follow,omitempty"`
	Mark         bool   `json:"mark,omitempty"`
}

type GetThreadResponse struct {
	Messages    []Message     `json:"messages"`
	Stale       bool          `json:"stale"`
	LastError   string        `json:"last_error,omitempty"`
	FetchedAtMs int64         `json:"fetched_at_ms,omitempty"`
	WatermarkMs int64         `json:"watermark_ms"`
	Compose     ComposeStatus `json:"compose"`
}

type CloseThreadRequest struct{}

type CloseThreadResponse struct{}

type UnreadCountRequest struct{}

type UnreadEntry struct {
	ListingID    string `json:"listing_id"`
	Counterparty string `json:"counterparty"`
	Count        int    `json:"count"`
}

type UnreadCountResponse struct {
	Total   int           `json:"total"`
	Badge   string        `json:"badge,omitempty"`
	Entries []UnreadEntry `json:"entries,omitempty"`
}

// MarkViewedRequest sets a watermark. AtMs defaults to now.
type MarkViewedRequest struct {
	ListingID    string `json:"listing_id"`
	Counterparty string `json:"counterparty"`
	AtMs         int64  `json:"at_ms,omitempty"`
}

type MarkViewedResponse struct {
	WatermarkMs int64 `json:"watermark_ms"`
}

type ComposeRequest struct {
	ListingID string `json:"listing_id"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
}

type ConfirmGuestNameRequest struct {
	ListingID string `json:"listing_id"`
	Receiver  string `json:"receiver"`
	Name      string `json:"name"`
}

type RetrySendRequest struct {
	ListingID string `json:"listing_id"`
	Receiver  string `json:"receiver"`
}

type SearchMessagesRequest struct {
	Query     string `json:"query"`
	ListingID string `json:"listing_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type SearchResult struct {
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
}

type SearchMessagesResponse struct {
	Results []SearchResult `json:"results"`
}

type RefreshRequest struct{}

type RefreshResponse struct{}

type ClearLocalDataRequest struct{}

type ClearLocalDataResponse struct{}

type WatchInboxRequest struct {
	// Kinds restricts the stream to event kinds with these prefixes. Empty
	// means poll., compose., watermark., local. and daemon. events.
	Kinds []string `json:"kinds,omitempty"`
}

// Event is one bus event forwarded to a watcher.
type Event struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	OccurredAtMs int64  `json:"occurred_at_ms"`
	Summary      string `json:"summary,omitempty"`
}

// Server is implemented by *Service.
type Server interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetThread(context.Context, *GetThreadRequest) (*GetThreadResponse, error)
	CloseThread(context.Context, *CloseThreadRequest) (*CloseThreadResponse, error)
	UnreadCount(context.Context, *UnreadCountRequest) (*UnreadCountResponse, error)
	MarkViewed(context.Context, *MarkViewedRequest) (*MarkViewedResponse, error)
	Compose(context.Context, *ComposeRequest) (*ComposeStatus, error)
	ConfirmGuestName(context.Context, *ConfirmGuestNameRequest) (*ComposeStatus, error)
	RetrySend(context.Context, *RetrySendRequest) (*ComposeStatus, error)
	SearchMessages(context.Context, *SearchMessagesRequest) (*SearchMessagesResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
	ClearLocalData(context.Context, *ClearLocalDataRequest) (*ClearLocalDataResponse, error)
	WatchInbox(*WatchInboxRequest, grpc.ServerStreamingServer[Event]) error
}

var watchInboxDesc = rpc.ServerStream("WatchInbox", Server.WatchInbox)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetStatus", Server.GetStatus),
		rpc.Unary(ServiceName, "ListConversations", Server.ListConversations),
		rpc.Unary(ServiceName, "GetThread", Server.GetThread),
		rpc.Unary(ServiceName, "CloseThread", Server.CloseThread),
		rpc.Unary(ServiceName, "UnreadCount", Server.UnreadCount),
		rpc.Unary(ServiceName, "MarkViewed", Server.MarkViewed),
		rpc.Unary(ServiceName, "Compose", Server.Compose),
		rpc.Unary(ServiceName, "ConfirmGuestName", Server.ConfirmGuestName),
		rpc.Unary(ServiceName, "RetrySend", Server.RetrySend),
		rpc.Unary(ServiceName, "SearchMessages", Server.SearchMessages),
		rpc.Unary(ServiceName, "Refresh", Server.Refresh),
		rpc.Unary(ServiceName, "ClearLocalData", Server.ClearLocalData),
	},
	Streams: []grpc.StreamDesc{watchInboxDesc},
}

// Register adds impl to a gRPC server.
func Register(s grpc.ServiceRegistrar, impl Server) {
	s.RegisterService(&serviceDesc, impl)
}

func messageView(m inbox.Message, me inbox.Identity) Message {
	out := Message{
		ID:          m.ID,
		ListingID:   string(m.ListingID),
		SenderName:  m.Sender.DisplayName(),
		Anonymous:   m.Sender.IsAnonymous(),
		ReceiverID:  string(m.Receiver),
		Content:     inbox.DisplayContent(m),
		TimestampMs: m.TimestampMs(),
		Deleted:     m.IsDeleted,
		Edited:      m.IsEdited,
	}
	switch m.Sender.Kind() {
	case inbox.SenderRegistered:
		id, _ := m.Sender.Identity()
		out.SenderID = string(id)
		out.FromMe = me != "" && id == me
	case inbox.SenderAnonymous:
		out.SenderRef = m.Sender.Ref()
	}
	return out
}

func messageViews(msgs []inbox.Message, me inbox.Identity) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(m, me))
	}
	return out
}

func composeView(st compose.Status) ComposeStatus {
	return ComposeStatus{
		ListingID:     string(st.Thread.ListingID),
		Receiver:      string(st.Thread.Receiver),
		State:         string(st.State),
		Draft:         st.Draft,
		LastError:     st.LastError,
		LastMessageID: st.LastMessageID,
	}
}
