package api

import (
	"context"
	"fmt"

	"github.com/bazaarhq/inbox/internal/apperr"
	"github.com/bazaarhq/inbox/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a running daemon. Errors come back as *apperr.Error.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath. The connection is
// lazy: a missing daemon surfaces on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func call[Req, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	resp, err := rpc.Invoke[Req, Resp](ctx, c.conn, rpc.FullMethod(ServiceName, method), req)
	if err != nil {
		return nil, apperr.FromStatus(err)
	}
	return resp, nil
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return call[GetStatusRequest, GetStatusResponse](ctx, c, "GetStatus", &GetStatusRequest{})
}

func (c *Client) ListConversations(ctx context.Context) (*ListConversationsResponse, error) {
	return call[ListConversationsRequest, ListConversationsResponse](ctx, c, "ListConversations", &ListConversationsRequest{})
}

func (c *Client) GetThread(ctx context.Context, req *GetThreadRequest) (*GetThreadResponse, error) {
	return call[GetThreadRequest, GetThreadResponse](ctx, c, "GetThread", req)
}

func (c *Client) CloseThread(ctx context.Context) error {
	_, err := call[CloseThreadRequest, CloseThreadResponse](ctx, c, "CloseThread", &CloseThreadRequest{})
	return err
}

func (c *Client) UnreadCount(ctx context.Context) (*UnreadCountResponse, error) {
	return call[UnreadCountRequest, UnreadCountResponse](ctx, c, "UnreadCount", &UnreadCountRequest{})
}

func (c *Client) MarkViewed(ctx context.Context, req *MarkViewedRequest) (*MarkViewedResponse, error) {
	return call[MarkViewedRequest, MarkViewedResponse](ctx, c, "MarkViewed", req)
}

func (c *Client) Compose(ctx context.Context, req *ComposeRequest) (*ComposeStatus, error) {
	return call[ComposeRequest, ComposeStatus](ctx, c, "Compose", req)
}

func (c *Client) ConfirmGuestName(ctx context.Context, req *ConfirmGuestNameRequest) (*ComposeStatus, error) {
	return call[ConfirmGuestNameRequest, ComposeStatus](ctx, c, "ConfirmGuestName", req)
}

func (c *Client) RetrySend(ctx context.Context, req *RetrySendRequest) (*ComposeStatus, error) {
	return call[RetrySendRequest, ComposeStatus](ctx, c, "RetrySend", req)
}

func (c *Client) SearchMessages(ctx context.Context, req *SearchMessagesRequest) (*SearchMessagesResponse, error) {
	return call[SearchMessagesRequest, SearchMessagesResponse](ctx, c, "SearchMessages", req)
}

func (c *Client) Refresh(ctx context.Context) error {
	_, err := call[RefreshRequest, RefreshResponse](ctx, c, "Refresh", &RefreshRequest{})
	return err
}

func (c *Client) ClearLocalData(ctx context.Context) error {
	_, err := call[ClearLocalDataRequest, ClearLocalDataResponse](ctx, c, "ClearLocalData", &ClearLocalDataRequest{})
	return err
}

// WatchInbox opens the event stream. Cancel ctx to end it.
func (c *Client) WatchInbox(ctx context.Context, kinds ...string) (grpc.ServerStreamingClient[Event], error) {
	stream, err := rpc.OpenStream[WatchInboxRequest, Event](ctx, c.conn, &watchInboxDesc,
		rpc.FullMethod(ServiceName, "WatchInbox"), &WatchInboxRequest{Kinds: kinds})
	if err != nil {
		return nil, apperr.FromStatus(err)
	}
	return stream, nil
}
