package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/openkcm/metadata-collector/internal/session"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

const (
	responseWriterKey contextKey = "response-writer"
	sessionKey        contextKey = "session"
)

var (
	errNoResponseWriter = errors.New("response writer not found in context")
	errNoSession        = errors.New("session not found in context")
)

// responseWriterMiddleware puts the response writer of the request into its
// context. The strict handlers need it to set the session cookie.
func responseWriterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), responseWriterKey, w)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func responseWriterFromContext(ctx context.Context) (http.ResponseWriter, error) {
	w, ok := ctx.Value(responseWriterKey).(http.ResponseWriter)
	if !ok {
		return nil, errNoResponseWriter
	}

	return w, nil
}

func contextWithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func sessionFromContext(ctx context.Context) (*session.Session, error) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	if !ok || s == nil {
		return nil, errNoSession
	}

	return s, nil
}
