package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/logging"
)

// Transport is the name sessions accepted here are tagged with.
const Transport = "tcp"

const keepAlivePeriod = 30 * time.Second

// Server accepts raw TCP connections and hands each to the Hub.
type Server struct {
	address string
	hub     *chat.Hub

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a TCP server that uses the provided Hub.
func New(address string, hub *chat.Hub) *Server {
	return &Server{address: address, hub: hub}
}

// Listen binds the listening socket. Serve calls it when needed; calling
// it first lets callers learn Addr before serving.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = listener
	logging.Info().Str("addr", listener.Addr().String()).Msg("TCP server started")
	return nil
}

// Serve accepts connections until ctx is canceled. Sessions still open at
// that point are left to Hub.Shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()
	defer func() {
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return ctx.Err()
			}
			logging.Warn().Err(err).Msg("failed to accept TCP connection")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn, conn)
		}()
	}
}

// ServeConn runs one session over an accepted connection, reading through
// r. It blocks until the session ends.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn, r io.Reader) {
	SetKeepAlive(conn, keepAlivePeriod)
	c := NewConnWithReader(conn, r)
	if err := s.hub.Serve(ctx, c, Transport); err != nil && !errors.Is(err, chat.ErrHubClosed) {
		logging.Ctx(ctx).Debug().Err(err).Str("remote_addr", c.RemoteAddr()).Msg("tcp session ended")
	}
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "tcp-listener" }
