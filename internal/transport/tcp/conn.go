// Package tcp carries protocol frames over plain TCP connections.
package tcp

import (
	"context"
	"io"
	"net"
	"time"
)

const readBufferSize = 4096

// Conn adapts net.Conn to chat.Conn.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	buf    []byte
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return NewConnWithReader(conn, conn)
}

// NewConnWithReader wraps conn but reads through r. It is used once bytes
// have been peeked off conn into a buffered reader.
func NewConnWithReader(conn net.Conn, r io.Reader) *Conn {
	return &Conn{
		conn:   conn,
		reader: r,
		buf:    make([]byte, readBufferSize),
	}
}

// Read implements chat.Conn. A deadline on ctx becomes the read deadline.
// The returned slice is only valid until the next Read.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(dl); err != nil {
			return nil, err
		}
	}
	n, err := c.reader.Read(c.buf)
	if n > 0 {
		return c.buf[:n], nil
	}
	return nil, err
}

// Write implements chat.Conn. A deadline on ctx becomes the write deadline.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	dl, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(dl); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SetKeepAlive enables TCP keep-alive probes when conn supports them.
func SetKeepAlive(conn net.Conn, period time.Duration) {
	if tc, ok := conn.(*net.TCPConn); ok && period > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(period)
	}
}
