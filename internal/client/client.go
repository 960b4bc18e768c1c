// Package client is a chat client speaking the frame protocol over any
// byte transport. Subpackages dial TCP and WebSocket connections.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/pkg/protocol"
)

// ErrClosed is returned once the connection has ended.
var ErrClosed = errors.New("client closed")

// Conn is a connected transport. Read returns chunks that need not align
// with frame boundaries.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// ServerError is an ERROR frame received in answer to a request.
type ServerError struct {
	Status  protocol.StatusCode
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Client sends requests and receives pushed messages on one connection.
type Client struct {
	conn  Conn
	codec *protocol.Codec

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Message

	messages  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// New starts reading from conn. A nil codec uses the default registry.
func New(conn Conn, codec *protocol.Codec) *Client {
	if codec == nil {
		codec = protocol.NewCodec(nil)
	}
	c := &Client{
		conn:     conn,
		codec:    codec,
		pending:  make(map[string]chan *protocol.Message),
		messages: make(chan *protocol.Message, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Messages delivers pushed messages and responses nobody waits for. It is
// closed when the connection ends.
func (c *Client) Messages() <-chan *protocol.Message {
	return c.messages
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open or after a
// clean close.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Send writes msg without waiting for an answer. An empty RequestID is
// filled in.
func (c *Client) Send(ctx context.Context, msg *protocol.Message) error {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	frame, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %v: %w", msg.Type, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("send %v: %w", msg.Type, err)
	}
	return nil
}

// Request sends msg and waits for the frame carrying the same request id.
// ERROR answers are returned as *ServerError.
func (c *Client) Request(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	ch := make(chan *protocol.Message, 1)
	c.mu.Lock()
	c.pending[msg.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	if err := c.Send(ctx, msg); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		if resp.Type == protocol.TypeError {
			e := &ServerError{Status: resp.StatusCode}
			if p, ok := resp.Payload.(*protocol.ErrorMessage); ok {
				e.Message = p.Message
			}
			return resp, e
		}
		return resp, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection and waits for the read loop to stop.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer c.finish(nil)
	stream := protocol.NewStream(c.codec)
	ctx := context.Background()
	for {
		data, err := c.conn.Read(ctx)
		if len(data) > 0 {
			stream.Feed(data)
			if derr := c.drain(stream); derr != nil {
				c.finish(derr)
				c.conn.Close()
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) drain(stream *protocol.Stream) error {
	for {
		msg, err := stream.Next()
		if errors.Is(err, protocol.ErrNeedMoreData) {
			return nil
		}
		if err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *protocol.Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.RequestID]
	if ok {
		delete(c.pending, msg.RequestID)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
		return
	}
	select {
	case c.messages <- msg:
	default:
		logging.Warn().Str("type", msg.Type.String()).Msg("client message buffer full, dropping")
	}
}

func (c *Client) finish(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		close(c.messages)
	})
}

// KeepAlive sends a heartbeat every interval until ctx is done or the
// connection ends.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Send(ctx, protocol.NewMessage(protocol.TypeHeartbeatRequest, &protocol.HeartbeatRequest{})); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}
