// Package tcp dials the chat server over plain TCP.
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/omochice/framechat/internal/client"
	"github.com/omochice/framechat/internal/transport/tcp"
	"github.com/omochice/framechat/pkg/protocol"
)

// Dial connects to address and returns a running client.
func Dial(ctx context.Context, address string, codec *protocol.Codec) (*client.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return client.New(tcp.NewConn(conn), codec), nil
}
