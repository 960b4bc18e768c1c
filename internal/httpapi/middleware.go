package httpapi

import (
	"context"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/logging"
)

type identityKey struct{}

// requestIDWithLogging runs chi's RequestID and copies the id into the
// logging context.
func requestIDWithLogging(next http.Handler) http.Handler {
	withID := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimiddleware.GetReqID(r.Context())
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
	return chimiddleware.RequestID(withID)
}

// authenticate requires an "Authorization: Bearer <token>" header.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", nil)
			return
		}
		id, err := a.Auth.Authenticate(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		ctx = logging.ContextWithUser(ctx, id.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identity(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey{}).(auth.Identity)
	return id
}
