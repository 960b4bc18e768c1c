package router

import (
	"context"
	"errors"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/pkg/protocol"
)

func (r *Router) handleLogin(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
	if s.Authenticated() {
		return Result{}, &Error{
			Kind:    KindAuthentication,
			Status:  protocol.StatusAlreadyLoggedIn,
			Message: "Already logged in",
		}
	}
	req, err := payload[protocol.LoginRequest](r, msg)
	if err != nil {
		return Result{}, loginFailed(protocol.StatusUnauthorized, "Invalid login request", err)
	}

	id, token, err := r.authenticate(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if err := r.Presence.Connect(s, id.UserID); err != nil {
		if errors.Is(err, presence.ErrAlreadyOnline) {
			return Result{}, &Error{
				Kind:    KindAuthentication,
				Status:  protocol.StatusAlreadyLoggedIn,
				Message: "User is already logged in elsewhere",
				Close:   true,
				Err:     err,
			}
		}
		return Result{}, internalError(err)
	}
	s.Bind(id.UserID, id.Username, req.DeviceID)

	rooms, err := r.Rooms.RoomsOf(ctx, id.UserID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("load room cache")
	}
	s.SetRooms(rooms)

	logging.Ctx(ctx).Info().
		Str("user_id", id.UserID).
		Str("username", id.Username).
		Str("transport", s.Transport()).
		Msg("user logged in")

	return Result{
		Response: msg.Reply(protocol.TypeLoginResponse, protocol.StatusOK, &protocol.LoginResponse{
			Token:    token,
			UserID:   id.UserID,
			Username: id.Username,
		}),
	}, nil
}

// authenticate resolves the request to an identity and the token to return.
func (r *Router) authenticate(ctx context.Context, req *protocol.LoginRequest) (auth.Identity, string, error) {
	if req.Token != "" {
		id, err := r.Auth.Authenticate(ctx, req.Token)
		if err != nil {
			return auth.Identity{}, "", loginFailed(protocol.StatusUnauthorized, "Invalid or expired token", err)
		}
		return id, req.Token, nil
	}

	if req.Username == "" || req.Password == "" || r.Credentials == nil {
		return auth.Identity{}, "", loginFailed(protocol.StatusUnauthorized, "Token or username and password required", nil)
	}
	id, token, err := r.Credentials.Login(ctx, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return auth.Identity{}, "", loginFailed(protocol.StatusInvalidCredentials, "Invalid username or password", err)
	}
	if err != nil {
		e := internalError(err)
		e.Close = true
		return auth.Identity{}, "", e
	}
	return id, token, nil
}

func loginFailed(status protocol.StatusCode, msg string, err error) *Error {
	return &Error{Kind: KindAuthentication, Status: status, Message: msg, Close: true, Err: err}
}

func (r *Router) handleLogout(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
	if uid := s.UserID(); uid != "" {
		r.Presence.Disconnect(s, uid)
		logging.Ctx(ctx).Info().Str("user_id", uid).Msg("user logged out")
	}
	return Result{
		Response: msg.Reply(protocol.TypeLogoutResponse, protocol.StatusOK, &protocol.LogoutResponse{
			Success: true,
			Message: "Logged out",
		}),
		Close: true,
	}, nil
}
