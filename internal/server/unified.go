// Package server accepts raw TCP frame connections and HTTP (WebSocket
// upgrades and the REST API) on a single port.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/transport/tcp"
)

const (
	detectTimeout     = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	httpShutdown      = 5 * time.Second
)

// UnifiedServer serves both protocols on one listener. The first bytes of
// each connection decide where it goes.
type UnifiedServer struct {
	address string
	handler http.Handler
	raw     *tcp.Server

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewUnifiedServer creates a server sending raw connections to hub and
// HTTP connections to handler.
func NewUnifiedServer(address string, hub *chat.Hub, handler http.Handler) *UnifiedServer {
	return &UnifiedServer{
		address: address,
		handler: handler,
		raw:     tcp.New(address, hub),
	}
}

// Listen binds the listening socket so Addr is known before Serve.
func (s *UnifiedServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	logging.Info().Str("addr", listener.Addr().String()).Msg("unified server started (TCP, WebSocket and HTTP)")
	return nil
}

// Serve accepts connections until ctx is canceled, then stops the HTTP
// server. Frame sessions are torn down with ctx; call Hub.Shutdown first
// for a graceful drain.
func (s *UnifiedServer) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
	}()

	httpLn := newConnListener(listener.Addr())
	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("http server failed")
		}
	}()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logging.Warn().Err(err).Msg("failed to accept connection")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn, httpLn)
		}()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdown)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http shutdown")
	}
	httpLn.Close()
	<-httpDone
	s.wg.Wait()
	return ctx.Err()
}

// handleConnection determines whether the connection is HTTP or raw frames.
func (s *UnifiedServer) handleConnection(ctx context.Context, conn net.Conn, httpLn *connListener) {
	_ = conn.SetReadDeadline(time.Now().Add(detectTimeout))
	reader := bufio.NewReader(conn)
	proto, err := detectProtocol(reader)
	if err != nil {
		logging.Debug().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("failed to peek connection")
		conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	logging.Debug().Str("protocol", proto.String()).Str("remote_addr", conn.RemoteAddr().String()).Msg("connection accepted")

	if proto == protocolHTTP {
		if !httpLn.push(&bufferedConn{Conn: conn, reader: reader}) {
			conn.Close()
		}
		return
	}
	s.raw.ServeConn(ctx, conn, reader)
}

// Addr returns the server's listening address.
func (s *UnifiedServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// String names the service in supervisor logs.
func (s *UnifiedServer) String() string { return "unified-server" }
