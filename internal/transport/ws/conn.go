// Package ws carries protocol frames inside WebSocket messages. Each
// binary or text message holds one or more complete frames.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/framechat/pkg/protocol"
)

// Conn adapts a server-side WebSocket connection to chat.Conn.
type Conn struct {
	conn       net.Conn
	reader     *wsutil.Reader
	control    wsutil.FrameHandlerFunc
	maxMessage int64

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an upgraded connection. src carries any bytes buffered
// during the handshake; nil reads straight from conn. maxMessage bounds one
// data message; non-positive means one default-sized frame.
func NewConn(conn net.Conn, src io.Reader, maxMessage int) *Conn {
	if src == nil {
		src = conn
	}
	if maxMessage <= 0 {
		maxMessage = protocol.HeaderSize + protocol.DefaultMaxBodySize
	}
	c := &Conn{conn: conn, maxMessage: int64(maxMessage)}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c}, ws.StateServerSide)
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateServerSide,
		OnIntermediate: c.control,
	}
	return c
}

// Read implements chat.Conn. Pings are answered and close frames are
// acknowledged here; a close from the peer surfaces as io.EOF. A message
// longer than the limit fails with a ProtocolError after reading at most
// limit+1 bytes of it.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(dl); err != nil {
			return nil, err
		}
	}
	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.reader); err != nil {
				var closed wsutil.ClosedError
				if errors.As(err, &closed) {
					return nil, io.EOF
				}
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpBinary|ws.OpText) == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(c.reader, c.maxMessage+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > c.maxMessage {
			return nil, &protocol.ProtocolError{
				Reason: protocol.ReasonFrameTooLarge,
				Detail: fmt.Sprintf("websocket message exceeds %d bytes", c.maxMessage),
			}
		}
		return data, nil
	}
}

// Write implements chat.Conn. data is sent as one binary message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	dl, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(dl); err != nil {
		return err
	}
	return wsutil.WriteServerBinary(c.conn, data)
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = ws.WriteFrame(c.conn, ws.NewCloseFrame(body))
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serializes control replies with data writes.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}
