// Package ws dials the chat server over WebSocket.
package ws

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"

	"github.com/omochice/framechat/internal/client"
	"github.com/omochice/framechat/pkg/protocol"
)

// Conn adapts a nhooyr.io/websocket client connection to client.Conn.
type Conn struct {
	conn *websocket.Conn
}

// Read returns the payload of the next data message.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Write sends data as one binary message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, data)
}

// Close performs the closing handshake.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// Dial connects to url (for example ws://localhost:8080/ws) and returns a
// running client.
func Dial(ctx context.Context, url string, codec *protocol.Codec) (*client.Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.SetReadLimit(int64(protocol.HeaderSize + protocol.DefaultMaxBodySize))
	return client.New(&Conn{conn: conn}, codec), nil
}
