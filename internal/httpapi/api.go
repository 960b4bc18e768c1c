// Package httpapi exposes health, metrics, the WebSocket endpoint and a
// small REST surface over rooms and history.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/internal/store"
)

// RoomAdmin mutates rooms while keeping live sessions informed.
type RoomAdmin interface {
	CreateRoom(ctx context.Context, p room.CreateParams) (room.Room, error)
	DeleteRoom(ctx context.Context, roomID, userID string) error
}

// Accounts registers users and exchanges credentials for tokens.
type Accounts interface {
	Register(ctx context.Context, username, password, avatar string) (store.User, error)
	Login(ctx context.Context, username, password string) (auth.Identity, string, error)
}

// Status reports live connection counts for /healthz.
type Status interface {
	Accepting() bool
	SessionCount() int
	OnlineUsers() int
}

// Deps are the collaborators of the API. History, Accounts and WebSocket
// may be nil; their routes then answer 503 or are not mounted.
type Deps struct {
	Status    Status
	Rooms     *room.Registry
	Admin     RoomAdmin
	Auth      auth.Authenticator
	History   store.MessageStore
	Accounts  Accounts
	WebSocket http.Handler
}

// API holds the route handlers.
type API struct {
	Deps
	validate *validator.Validate
}

// New builds the chi router serving every HTTP route.
func New(deps Deps) http.Handler {
	a := &API{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", a.health)
	r.Handle("/metrics", promhttp.Handler())
	if deps.WebSocket != nil {
		r.Handle("/ws", deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Get("/rooms", a.listRooms)
			r.Post("/rooms", a.createRoom)
			r.Route("/rooms/{roomID}", func(r chi.Router) {
				r.Get("/", a.getRoom)
				r.Delete("/", a.deleteRoom)
				r.Get("/members", a.roomMembers)
				r.Get("/messages", a.roomMessages)
			})
		})
	})
	return r
}
