// Package router dispatches decoded requests to their handlers and turns
// the outcome into a response plus deliveries to other sessions.
package router

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/metrics"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/internal/store"
	"github.com/omochice/framechat/pkg/protocol"
)

// CredentialLogin authenticates a username and password and issues a token.
type CredentialLogin interface {
	Login(ctx context.Context, username, password string) (auth.Identity, string, error)
}

// Enqueuer accepts records for asynchronous persistence.
type Enqueuer interface {
	Enqueue(r store.Record) bool
}

// Deps are the collaborators of a Router. Auth, Rooms, Presence and Codec
// are required; the rest may be nil.
type Deps struct {
	Codec       *protocol.Codec
	Presence    *presence.Engine
	Rooms       *room.Registry
	Auth        auth.Authenticator
	Credentials CredentialLogin
	History     store.MessageStore
	Users       store.UserDirectory
	Persister   Enqueuer
	Broadcaster *Broadcaster
}

// Result is what a request produced.
type Result struct {
	// Response goes back to the requesting session.
	Response   *protocol.Message
	Deliveries []Delivery
	// Close ends the connection after the response is flushed.
	Close bool
}

type handlerFunc func(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error)

// Router implements chat.Handler.
type Router struct {
	Deps
	validate *validator.Validate
	handlers map[protocol.MessageType]handlerFunc
	now      func() time.Time
}

// New creates a Router and subscribes it to presence transitions.
func New(deps Deps) *Router {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewBroadcaster(deps.Codec, deps.Presence, nil)
	}
	r := &Router{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	r.handlers = map[protocol.MessageType]handlerFunc{
		protocol.TypeLoginRequest:     r.handleLogin,
		protocol.TypeLogoutRequest:    r.handleLogout,
		protocol.TypeChatRequest:      r.handleChat,
		protocol.TypeRoomCreate:       r.roomAction(protocol.RoomActionCreate),
		protocol.TypeRoomJoin:         r.roomAction(protocol.RoomActionJoin),
		protocol.TypeRoomLeave:        r.roomAction(protocol.RoomActionLeave),
		protocol.TypeRoomList:         r.roomAction(protocol.RoomActionList),
		protocol.TypeRoomRequest:      r.roomAction(""),
		protocol.TypeHeartbeatRequest: r.handleHeartbeat,
		protocol.TypeHistoryRequest:   r.handleHistory,
	}
	deps.Presence.Subscribe(r.onPresence)
	return r
}

// Route runs the handler for msg.
func (r *Router) Route(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
	h, ok := r.handlers[msg.Type]
	if !ok {
		return Result{}, validationError("Unexpected message type " + msg.Type.String())
	}
	return h(ctx, s, msg)
}

// HandleMessage implements chat.Handler.
func (r *Router) HandleMessage(ctx context.Context, s *chat.Session, msg *protocol.Message) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(msg.Type.String()).Observe(time.Since(start).Seconds())
	}()

	if uid := s.UserID(); uid != "" {
		ctx = logging.ContextWithUser(ctx, uid)
	}

	if !s.Allow() {
		metrics.RequestErrors.WithLabelValues(KindRateLimited.String()).Inc()
		r.reply(ctx, s, protocol.NewError(msg.RequestID, protocol.StatusTooManyRequests, "Too many requests"))
		return
	}

	res, err := r.Route(ctx, s, msg)
	if err != nil {
		e := asError(err)
		metrics.RequestErrors.WithLabelValues(e.Kind.String()).Inc()
		ev := logging.Ctx(ctx).Debug()
		if e.Kind == KindInternal {
			ev = logging.Ctx(ctx).Error()
		}
		ev.Err(e).Str("type", msg.Type.String()).Msg("request failed")

		r.reply(ctx, s, protocol.NewError(msg.RequestID, e.StatusCode(), e.Message))
		if e.Close {
			s.Close()
		}
		return
	}

	if res.Response != nil {
		r.reply(ctx, s, res.Response)
	}
	for _, d := range res.Deliveries {
		r.Broadcaster.Deliver(ctx, d)
	}
	if res.Close {
		s.Close()
	}
}

// HandleClose implements chat.Handler.
func (r *Router) HandleClose(s *chat.Session) {
	if uid := s.UserID(); uid != "" {
		r.Presence.Disconnect(s, uid)
	}
}

func (r *Router) reply(ctx context.Context, s *chat.Session, msg *protocol.Message) {
	frame, err := r.Codec.Encode(msg)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("type", msg.Type.String()).Msg("encode response")
		return
	}
	if err := s.Send(frame); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("response dropped")
	}
}

// payload extracts the typed payload of msg and validates it.
func payload[T any](r *Router, msg *protocol.Message) (*T, error) {
	p, ok := msg.Payload.(*T)
	if !ok || p == nil {
		return nil, validationError("Malformed " + msg.Type.String() + " payload")
	}
	if err := r.validate.Struct(p); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "Invalid " + msg.Type.String() + " payload", Err: err}
	}
	return p, nil
}

func (r *Router) handleHeartbeat(_ context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
	now := r.now()
	s.Touch(now)
	if uid := s.UserID(); uid != "" {
		r.Presence.Heartbeat(s, uid)
	}
	return Result{
		Response: msg.Reply(protocol.TypeHeartbeatResponse, protocol.StatusOK, &protocol.HeartbeatResponse{
			ServerTime: now.UnixMilli(),
		}),
	}, nil
}

// sessionsOf returns the local chat sessions of a user.
func (r *Router) sessionsOf(userID string) []*chat.Session {
	var out []*chat.Session
	for _, ps := range r.Presence.Sessions(userID) {
		if cs, ok := ps.(*chat.Session); ok {
			out = append(out, cs)
		}
	}
	return out
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
