// Package remotetest runs an in-memory message service for tests and local
// development.
package remotetest

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bazaarhq/inbox/internal/identity"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Service keeps messages in memory. Callers are identified by the sub claim
// of their bearer token; when Secret is set the token must verify against it.
type Service struct {
	Secret []byte

	mu       sync.Mutex
	messages []remote.Message
	nextID   int
	clock    int64
	failWith error
	calls    map[string]int
}

func New() *Service {
	return &Service{clock: time.Now().UnixNano(), calls: make(map[string]int)}
}

// Seed appends messages as if they had been sent earlier.
func (s *Service) Seed(msgs ...inbox.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages = append(s.messages, remote.FromDomain(m))
		if n, err := strconv.Atoi(m.ID); err == nil && n > s.nextID {
			s.nextID = n
		}
	}
}

// Fail makes every call return err until called again with nil.
func (s *Service) Fail(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

// Calls reports how many times method was invoked.
func (s *Service) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Messages returns everything stored, in send order.
func (s *Service) Messages() []inbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inbox.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, remote.ToDomain(m))
	}
	return out
}

func (s *Service) GetMessagesForListing(ctx context.Context, req *remote.GetMessagesForListingRequest) (*remote.MessagesResponse, error) {
	caller, err := s.begin(ctx, "GetMessagesForListing")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &remote.MessagesResponse{}
	if caller == "" {
		return resp, nil
	}
	for _, m := range s.messages {
		if m.ListingID == req.ListingID && involves(m, caller) {
			resp.Messages = append(resp.Messages, m)
		}
	}
	return resp, nil
}

func (s *Service) GetMyConversations(ctx context.Context, _ *remote.GetMyConversationsRequest) (*remote.MessagesResponse, error) {
	caller, err := s.begin(ctx, "GetMyConversations")
	if err != nil {
		return nil, err
	}
	if caller == "" {
		return nil, status.Error(codes.Unauthenticated, "sign in to list conversations")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &remote.MessagesResponse{}
	for _, m := range s.messages {
		if involves(m, caller) {
			resp.Messages = append(resp.Messages, m)
		}
	}
	return resp, nil
}

func (s *Service) SendMessage(ctx context.Context, req *remote.SendMessageRequest) (*remote.SendMessageResponse, error) {
	caller, err := s.begin(ctx, "SendMessage")
	if err != nil {
		return nil, err
	}
	if caller == "" {
		return nil, status.Error(codes.Unauthenticated, "sign in to send as a user")
	}
	if err := validateSend(req.ListingID, req.ReceiverID, req.Content); err != nil {
		return nil, err
	}
	sender := string(caller)
	id := s.append(remote.Message{SenderID: &sender, ListingID: req.ListingID, ReceiverID: req.ReceiverID, Content: req.Content})
	return &remote.SendMessageResponse{MessageID: id}, nil
}

func (s *Service) SendMessageAnon(ctx context.Context, req *remote.SendMessageAnonRequest) (*remote.SendMessageResponse, error) {
	if _, err := s.begin(ctx, "SendMessageAnon"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SenderName) == "" {
		return nil, status.Error(codes.InvalidArgument, "sender_name required")
	}
	if err := validateSend(req.ListingID, req.ReceiverID, req.Content); err != nil {
		return nil, err
	}
	id := s.append(remote.Message{SenderName: req.SenderName, ListingID: req.ListingID, ReceiverID: req.ReceiverID, Content: req.Content})
	return &remote.SendMessageResponse{MessageID: id}, nil
}

// begin counts the call, applies injected failures and resolves the caller.
// A missing token is a guest; a bad one is rejected.
func (s *Service) begin(ctx context.Context, method string) (inbox.Identity, error) {
	s.mu.Lock()
	s.calls[method]++
	failWith := s.failWith
	s.mu.Unlock()
	if failWith != nil {
		return "", failWith
	}

	token, err := identity.TokenFromIncoming(ctx)
	if errors.Is(err, identity.ErrMissingToken) {
		return "", nil
	}
	if err != nil {
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	var caller inbox.Identity
	if len(s.Secret) > 0 {
		caller, err = identity.Verify(token, s.Secret)
	} else {
		caller, err = identity.FromToken(token)
	}
	if err != nil {
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	return caller, nil
}

func (s *Service) append(m remote.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.clock += int64(time.Millisecond)
	m.ID = strconv.Itoa(s.nextID)
	m.TimestampNs = s.clock
	s.messages = append(s.messages, m)
	return m.ID
}

func validateSend(listing, receiver, content string) error {
	switch {
	case listing == "":
		return status.Error(codes.InvalidArgument, "listing_id required")
	case receiver == "":
		return status.Error(codes.InvalidArgument, "receiver_id required")
	case strings.TrimSpace(content) == "":
		return status.Error(codes.InvalidArgument, "content required")
	}
	return nil
}

func involves(m remote.Message, who inbox.Identity) bool {
	if m.ReceiverID == string(who) {
		return true
	}
	return m.SenderID != nil && *m.SenderID == string(who)
}

// Serve listens on a loopback port and serves svc until the returned stop
// func is called.
func Serve(svc *Service) (addr string, stop func(), err error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := grpc.NewServer()
	remote.Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	return lis.Addr().String(), srv.Stop, nil
}
