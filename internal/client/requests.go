package client

import (
	"context"
	"fmt"

	"github.com/omochice/framechat/pkg/protocol"
)

// Login authenticates with a token.
func (c *Client) Login(ctx context.Context, token string) (*protocol.LoginResponse, error) {
	return login(ctx, c, &protocol.LoginRequest{Token: token})
}

// LoginPassword authenticates with a username and password. The returned
// response carries a token for later logins.
func (c *Client) LoginPassword(ctx context.Context, username, password string) (*protocol.LoginResponse, error) {
	return login(ctx, c, &protocol.LoginRequest{Username: username, Password: password})
}

func login(ctx context.Context, c *Client, req *protocol.LoginRequest) (*protocol.LoginResponse, error) {
	resp, err := c.Request(ctx, protocol.NewMessage(protocol.TypeLoginRequest, req))
	if err != nil {
		return nil, err
	}
	return payloadOf[protocol.LoginResponse](resp)
}

// Logout ends the session; the server closes the connection afterwards.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.NewMessage(protocol.TypeLogoutRequest, &protocol.LogoutRequest{}))
	return err
}

// SendRoom posts content to a room.
func (c *Client) SendRoom(ctx context.Context, roomID, content string) (*protocol.ChatResponse, error) {
	return c.chat(ctx, &protocol.ChatRequest{Content: content, RoomID: roomID})
}

// SendPrivate posts content to one user.
func (c *Client) SendPrivate(ctx context.Context, receiverID, content string) (*protocol.ChatResponse, error) {
	return c.chat(ctx, &protocol.ChatRequest{Content: content, ReceiverID: receiverID})
}

func (c *Client) chat(ctx context.Context, req *protocol.ChatRequest) (*protocol.ChatResponse, error) {
	resp, err := c.Request(ctx, protocol.NewMessage(protocol.TypeChatRequest, req))
	if err != nil {
		return nil, err
	}
	return payloadOf[protocol.ChatResponse](resp)
}

// Room runs a room action such as protocol.RoomActionJoin.
func (c *Client) Room(ctx context.Context, action, roomID string) (*protocol.RoomResponse, error) {
	return c.RoomRequest(ctx, &protocol.RoomRequest{Action: action, RoomID: roomID})
}

// RoomRequest sends a fully specified room request.
func (c *Client) RoomRequest(ctx context.Context, req *protocol.RoomRequest) (*protocol.RoomResponse, error) {
	resp, err := c.Request(ctx, protocol.NewMessage(protocol.TypeRoomRequest, req))
	if err != nil {
		return nil, err
	}
	return payloadOf[protocol.RoomResponse](resp)
}

// History fetches stored messages.
func (c *Client) History(ctx context.Context, req *protocol.HistoryRequest) (*protocol.HistoryResponse, error) {
	resp, err := c.Request(ctx, protocol.NewMessage(protocol.TypeHistoryRequest, req))
	if err != nil {
		return nil, err
	}
	return payloadOf[protocol.HistoryResponse](resp)
}

// Heartbeat pings the server and returns its clock in unix milliseconds.
func (c *Client) Heartbeat(ctx context.Context) (int64, error) {
	resp, err := c.Request(ctx, protocol.NewMessage(protocol.TypeHeartbeatRequest, &protocol.HeartbeatRequest{}))
	if err != nil {
		return 0, err
	}
	p, err := payloadOf[protocol.HeartbeatResponse](resp)
	if err != nil {
		return 0, err
	}
	return p.ServerTime, nil
}

func payloadOf[T any](msg *protocol.Message) (*T, error) {
	p, ok := msg.Payload.(*T)
	if !ok {
		return nil, fmt.Errorf("unexpected %v payload %T", msg.Type, msg.Payload)
	}
	return p, nil
}
