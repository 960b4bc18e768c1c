package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gobwas/ws"

	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/logging"
)

// Transport is the name sessions accepted here are tagged with.
const Transport = "websocket"

// Handler upgrades requests to WebSocket and serves a session on each.
// The request goroutine is kept for the lifetime of the session.
func Handler(hub *chat.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hub.Accepting() {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		conn, rw, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logging.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		c := NewConn(conn, nil, hub.MaxFrameSize())
		if rw != nil && rw.Reader.Buffered() > 0 {
			c = NewConn(conn, rw.Reader, hub.MaxFrameSize())
		}

		// The hijacked connection outlives the request context.
		ctx := context.WithoutCancel(r.Context())
		if err := hub.Serve(ctx, c, Transport); err != nil && !errors.Is(err, chat.ErrHubClosed) {
			logging.Ctx(ctx).Debug().Err(err).Str("remote_addr", c.RemoteAddr()).Msg("websocket session ended")
		}
	}
}
