// Package remote talks to the marketplace message service.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bazaarhq/inbox/internal/identity"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultTimeout = 5 * time.Second

// Config defines gRPC client settings.
type Config struct {
	Addr        string
	DialTimeout time.Duration
	CallTimeout time.Duration
	// AccessToken is sent as a bearer token. Empty means guest.
	AccessToken string
}

// Client wraps the message service API.
type Client struct {
	conn        *grpc.ClientConn
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewClient prepares a connection to the message service. Connecting is
// lazy; the first call dials.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("remote: address required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultTimeout
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultTimeout
	}

	conn, err := grpc.NewClient(cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(identity.Bearer(cfg.AccessToken)),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: dialTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	logger.Info("message service client ready", zap.String("addr", cfg.Addr))
	return &Client{conn: conn, callTimeout: callTimeout, logger: logger}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// GetMessagesForListing returns every message about listing visible to the
// caller.
func (c *Client) GetMessagesForListing(ctx context.Context, listing inbox.ListingID) ([]inbox.Message, error) {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	resp, err := rpc.Invoke[GetMessagesForListingRequest, MessagesResponse](callCtx, c.conn,
		rpc.FullMethod(ServiceName, "GetMessagesForListing"),
		&GetMessagesForListingRequest{ListingID: string(listing)})
	if err != nil {
		return nil, fmt.Errorf("get messages for listing %s: %w", listing, err)
	}
	return mapMessages(resp.Messages), nil
}

// GetMyConversations returns every message the caller sent or received.
func (c *Client) GetMyConversations(ctx context.Context) ([]inbox.Message, error) {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	resp, err := rpc.Invoke[GetMyConversationsRequest, MessagesResponse](callCtx, c.conn,
		rpc.FullMethod(ServiceName, "GetMyConversations"), &GetMyConversationsRequest{})
	if err != nil {
		return nil, fmt.Errorf("get my conversations: %w", err)
	}
	return mapMessages(resp.Messages), nil
}

// SendMessage posts as the authenticated caller.
func (c *Client) SendMessage(ctx context.Context, listing inbox.ListingID, receiver inbox.Identity, content string) (string, error) {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	resp, err := rpc.Invoke[SendMessageRequest, SendMessageResponse](callCtx, c.conn,
		rpc.FullMethod(ServiceName, "SendMessage"),
		&SendMessageRequest{ListingID: string(listing), ReceiverID: string(receiver), Content: content})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.MessageID, nil
}

// SendMessageAnon posts as a guest under senderName.
func (c *Client) SendMessageAnon(ctx context.Context, senderName, content string, listing inbox.ListingID, receiver inbox.Identity) (string, error) {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	resp, err := rpc.Invoke[SendMessageAnonRequest, SendMessageResponse](callCtx, c.conn,
		rpc.FullMethod(ServiceName, "SendMessageAnon"),
		&SendMessageAnonRequest{SenderName: senderName, Content: content, ListingID: string(listing), ReceiverID: string(receiver)})
	if err != nil {
		return "", fmt.Errorf("send anonymous message: %w", err)
	}
	return resp.MessageID, nil
}

func (c *Client) wrapCall(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.callTimeout)
}
