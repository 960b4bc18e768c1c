package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/metrics"
	"github.com/omochice/framechat/pkg/protocol"
)

// ErrHubClosed is returned by Serve once Shutdown has started.
var ErrHubClosed = errors.New("hub closed")

// Handler processes decoded messages. HandleMessage is called from the
// session's read goroutine, so messages of one session arrive in order.
type Handler interface {
	HandleMessage(ctx context.Context, s *Session, msg *protocol.Message)
	// HandleClose is called once after the read loop of s has ended.
	HandleClose(s *Session)
}

// HubConfig configures session handling.
type HubConfig struct {
	Session      SessionConfig
	WriteTimeout time.Duration
	// AuthTimeout closes sessions that have not logged in after this long.
	// Zero disables the check.
	AuthTimeout time.Duration
}

// Hub manages all connected sessions.
// Both TCP and WebSocket transports share a single Hub instance.
type Hub struct {
	codec   *protocol.Codec
	handler Handler
	cfg     HubConfig
	now     func() time.Time

	sessions map[string]*Session
	mu       sync.RWMutex

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewHub creates a new Hub.
func NewHub(codec *protocol.Codec, handler Handler, cfg HubConfig) *Hub {
	return &Hub{
		codec:    codec,
		handler:  handler,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Serve runs a session over conn until either side closes it. It blocks,
// so transports call it from the goroutine that owns the connection.
func (h *Hub) Serve(ctx context.Context, conn Conn, transport string) error {
	s := NewSession(conn, transport, h.cfg.Session, h.now())
	if !h.register(s) {
		conn.Close()
		return ErrHubClosed
	}
	defer h.wg.Done()
	metrics.SessionsOpened.WithLabelValues(transport).Inc()

	ctx = logging.ContextWithSession(ctx, s.ID())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logging.Ctx(ctx).Debug().
		Str("transport", transport).
		Str("remote_addr", conn.RemoteAddr()).
		Msg("session opened")

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(ctx, h.cfg.WriteTimeout)
	}()

	err := h.readLoop(ctx, s)
	s.Close()
	h.unregister(s)
	h.handler.HandleClose(s)
	<-writeDone

	logging.Ctx(ctx).Debug().
		Str("user_id", s.UserID()).
		Err(err).
		Msg("session closed")
	return err
}

func (h *Hub) readLoop(ctx context.Context, s *Session) error {
	stream := protocol.NewStream(h.codec)
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if s.Closed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			var pe *protocol.ProtocolError
			if errors.As(err, &pe) {
				metrics.ProtocolErrors.WithLabelValues(pe.Reason).Inc()
				logging.Ctx(ctx).Warn().Err(err).
					Str("remote_addr", s.RemoteAddr()).
					Msg("protocol error, closing connection")
			}
			return err
		}
		stream.Feed(data)

		for {
			msg, err := stream.Next()
			if errors.Is(err, protocol.ErrNeedMoreData) {
				break
			}
			if err != nil {
				var pe *protocol.ProtocolError
				if errors.As(err, &pe) {
					metrics.ProtocolErrors.WithLabelValues(pe.Reason).Inc()
				}
				logging.Ctx(ctx).Warn().Err(err).
					Str("remote_addr", s.RemoteAddr()).
					Msg("protocol error, closing connection")
				return err
			}

			metrics.FramesDecoded.WithLabelValues(msg.Type.String()).Inc()
			h.handler.HandleMessage(logging.ContextWithRequestID(ctx, msg.RequestID), s, msg)
			if s.Closed() {
				return nil
			}
		}
	}
}

// register admits s unless Shutdown has started. The check and the insert
// share h.mu with Shutdown so that every admitted session is in its snapshot.
func (h *Hub) register(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.wg.Add(1)
	h.sessions[s.ID()] = s
	metrics.SessionsActive.Set(float64(len(h.sessions)))
	return true
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.ID())
	metrics.SessionsActive.Set(float64(len(h.sessions)))
}

// Session returns the session with the given id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Sweep closes sessions that stayed anonymous and silent longer than
// AuthTimeout and returns how many were closed. A heartbeat restarts the
// window. Authenticated sessions are left to the presence sweeper.
func (h *Hub) Sweep(now time.Time) int {
	if h.cfg.AuthTimeout <= 0 {
		return 0
	}
	n := 0
	for _, s := range h.snapshot() {
		if s.Authenticated() {
			continue
		}
		since := s.CreatedAt()
		if hb := s.LastHeartbeat(); hb.After(since) {
			since = hb
		}
		if now.Sub(since) > h.cfg.AuthTimeout {
			logging.Debug().Str("session_id", s.ID()).Msg("closing unauthenticated session")
			s.Close()
			n++
		}
	}
	return n
}

// MaxFrameSize returns the largest frame the hub's codec accepts, header
// included. Message-based transports use it to bound a single read.
func (h *Hub) MaxFrameSize() int {
	return protocol.HeaderSize + h.codec.MaxBodySize()
}

// Accepting reports whether new sessions are admitted.
func (h *Hub) Accepting() bool {
	return !h.closed.Load()
}

// Shutdown refuses new sessions, closes the open ones and waits for their
// loops to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed.Store(true)
	h.mu.Unlock()
	for _, s := range h.snapshot() {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
