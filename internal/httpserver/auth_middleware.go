package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "currentSession"

// WithSession returns a new context carrying the active session.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// CurrentSession extracts the session from context, if any.
func CurrentSession(r *http.Request) (domain.Session, bool) {
	s, ok := r.Context().Value(sessionContextKey).(domain.Session)
	return s, ok
}

// SessionMiddleware admits requests whose Bearer token is the token of the
// active session.
func SessionMiddleware(eng *session.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			sess, ok := eng.Session()
			if !ok {
				http.Error(w, "no active session", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(tokenStr), []byte(sess.Token)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
