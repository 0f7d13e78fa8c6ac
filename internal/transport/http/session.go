package http

import (
	"context"
	"net/http"

	"nebcli/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionHeader carries the client's session ID. The server echoes the
// resolved ID back on every response so first-time clients learn theirs.
const SessionHeader = "X-Session-ID"

// SessionCtx resolves the request's session from the X-Session-ID header,
// minting a new session when the header is absent or expired.
func SessionCtx(store *session.Store) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := store.GetOrCreate(r.Header.Get(SessionHeader))
			w.Header().Set(SessionHeader, sess.ID)

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session resolved by SessionCtx.
func SessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}
