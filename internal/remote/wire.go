package remote

import (
	"context"

	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/rpc"
	"google.golang.org/grpc"
)

// ServiceName is the gRPC service exposed by the marketplace message service.
const ServiceName = "bazaar.messages.v1.MessageService"

// Message is the wire form of a message. A nil SenderID marks a guest
// sender, identified by SenderName and, when available, SenderRef.
type Message struct {
	ID          string  `json:"id"`
	ListingID   string  `json:"listing_id"`
	SenderID    *string `json:"sender_id,omitempty"`
	SenderName  string  `json:"sender_name,omitempty"`
	SenderRef   string  `json:"sender_ref,omitempty"`
	ReceiverID  string  `json:"receiver_id"`
	Content     string  `json:"content"`
	TimestampNs int64   `json:"timestamp_ns"`
	IsDeleted   bool    `json:"is_deleted,omitempty"`
	IsEdited    bool    `json:"is_edited,omitempty"`
}

type GetMessagesForListingRequest struct {
	ListingID string `json:"listing_id"`
}

type GetMyConversationsRequest struct{}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendMessageRequest struct {
	ListingID  string `json:"listing_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

type SendMessageAnonRequest struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	ListingID  string `json:"listing_id"`
	ReceiverID string `json:"receiver_id"`
}

type SendMessageResponse struct {
	MessageID string `json:"message_id"`
}

// Server is implemented by message service backends.
type Server interface {
	GetMessagesForListing(context.Context, *GetMessagesForListingRequest) (*MessagesResponse, error)
	GetMyConversations(context.Context, *GetMyConversationsRequest) (*MessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	SendMessageAnon(context.Context, *SendMessageAnonRequest) (*SendMessageResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetMessagesForListing", Server.GetMessagesForListing),
		rpc.Unary(ServiceName, "GetMyConversations", Server.GetMyConversations),
		rpc.Unary(ServiceName, "SendMessage", Server.SendMessage),
		rpc.Unary(ServiceName, "SendMessageAnon", Server.SendMessageAnon),
	},
}

// Register exposes impl on s.
func Register(s grpc.ServiceRegistrar, impl Server) {
	s.RegisterService(&serviceDesc, impl)
}

// ToDomain converts a wire message.
func ToDomain(m Message) inbox.Message {
	sender := inbox.Anonymous(m.SenderName, m.SenderRef)
	if m.SenderID != nil {
		sender = inbox.Registered(inbox.Identity(*m.SenderID))
	}
	return inbox.Message{
		ID:        m.ID,
		ListingID: inbox.ListingID(m.ListingID),
		Sender:    sender,
		Receiver:  inbox.Identity(m.ReceiverID),
		Content:   m.Content,
		Timestamp: m.TimestampNs,
		IsDeleted: m.IsDeleted,
		IsEdited:  m.IsEdited,
	}
}

// FromDomain converts a domain message to its wire form.
func FromDomain(m inbox.Message) Message {
	out := Message{
		ID:          m.ID,
		ListingID:   string(m.ListingID),
		ReceiverID:  string(m.Receiver),
		Content:     m.Content,
		TimestampNs: m.Timestamp,
		IsDeleted:   m.IsDeleted,
		IsEdited:    m.IsEdited,
	}
	if id, ok := m.Sender.Identity(); ok {
		s := string(id)
		out.SenderID = &s
	} else {
		out.SenderName = m.Sender.DisplayName()
		out.SenderRef = m.Sender.Ref()
	}
	return out
}

// mapMessages converts wire messages, dropping any whose registered sender or
// receiver id lies in the synthetic guest namespace: such ids would merge
// with guest conversations.
func mapMessages(in []Message) []inbox.Message {
	out := make([]inbox.Message, 0, len(in))
	for _, m := range in {
		if m.SenderID != nil && inbox.Reserved(inbox.Identity(*m.SenderID)) {
			continue
		}
		if inbox.Reserved(inbox.Identity(m.ReceiverID)) {
			continue
		}
		out = append(out, ToDomain(m))
	}
	return out
}
