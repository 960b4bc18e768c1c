package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/omochice/framechat/internal/logging"
)

var (
	// ErrSessionClosed is returned by Send after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned by Send when the peer is not keeping up.
	ErrSendBufferFull = errors.New("send buffer full")
)

// SessionConfig holds per-connection limits.
type SessionConfig struct {
	// QueueSize bounds frames waiting to be written.
	QueueSize int
	// RateLimit is the sustained inbound frame rate. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Session is one accepted transport connection. It starts anonymous and is
// bound to a user by a successful login.
type Session struct {
	id        string
	conn      Conn
	transport string
	createdAt time.Time
	lastBeat  atomic.Int64
	limiter   *rate.Limiter

	mu       sync.RWMutex
	userID   string
	username string
	deviceID string
	rooms    map[string]struct{}

	outgoing  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wraps conn. now seeds both the creation and heartbeat times.
func NewSession(conn Conn, transport string, cfg SessionConfig, now time.Time) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	s := &Session{
		id:        uuid.NewString(),
		conn:      conn,
		transport: transport,
		createdAt: now,
		rooms:     make(map[string]struct{}),
		outgoing:  make(chan []byte, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.lastBeat.Store(now.UnixNano())
	return s
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// Transport returns "tcp" or "websocket".
func (s *Session) Transport() string { return s.transport }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

// CreatedAt returns when the connection was accepted.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastHeartbeat returns the last time the peer proved liveness.
func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastBeat.Load())
}

// Touch records liveness at t. Older timestamps are ignored.
func (s *Session) Touch(t time.Time) {
	n := t.UnixNano()
	for {
		cur := s.lastBeat.Load()
		if n <= cur || s.lastBeat.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Bind attaches the authenticated identity.
func (s *Session) Bind(userID, username, deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.username = username
	s.deviceID = deviceID
}

// UserID returns the bound user id, or "" before login.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Username returns the bound username.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// DeviceID returns the device id sent at login.
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// Authenticated reports whether a user is bound.
func (s *Session) Authenticated() bool {
	return s.UserID() != ""
}

// SetRooms replaces the cached room set.
func (s *Session) SetRooms(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.rooms[id] = struct{}{}
	}
}

// AddRoom adds id to the cached room set.
func (s *Session) AddRoom(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[id] = struct{}{}
}

// RemoveRoom drops id from the cached room set.
func (s *Session) RemoveRoom(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

// HasRoom reports whether id is in the cached room set.
func (s *Session) HasRoom(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[id]
	return ok
}

// Rooms returns the cached room ids in sorted order.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Allow reports whether one more inbound frame fits the rate limit.
func (s *Session) Allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Send queues an encoded frame without blocking.
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outgoing <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Outgoing exposes the write queue to transports driving their own writer.
func (s *Session) Outgoing() <-chan []byte {
	return s.outgoing
}

// Close marks the session closed. Frames already queued are still flushed
// by the write loop before the transport is closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// Done is closed once Close has been called.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue to the transport until the session closes,
// flushes what is left, then closes the transport.
func (s *Session) writeLoop(ctx context.Context, timeout time.Duration) {
	defer s.conn.Close()
	for {
		select {
		case frame := <-s.outgoing:
			if err := s.write(ctx, frame, timeout); err != nil {
				logging.Ctx(ctx).Debug().Err(err).Msg("write failed, closing session")
				s.Close()
				return
			}
		case <-s.done:
			s.flush(ctx, timeout)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) flush(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case frame := <-s.outgoing:
			if err := s.write(ctx, frame, timeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(ctx context.Context, frame []byte, timeout time.Duration) error {
	if timeout <= 0 {
		return s.conn.Write(ctx, frame)
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.conn.Write(wctx, frame)
}
