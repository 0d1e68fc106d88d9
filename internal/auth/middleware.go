package auth

import (
	"context"
	"net/http"
	"time"
)

type sessionCtxKey struct{}

// FromContext returns the session attached by Middleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return sess, ok
}

// statusRecorder captures the status code a handler writes, so Middleware
// can decide whether the request completed successfully before deciding to
// renew or drop the session.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware loads the session named by the kz-auth cookie, rejects the
// request with 401 if it is missing or expired, and otherwise runs next
// with the session attached to the request context. When the handler
// answers with a status below 500 the session is persisted: its expiry is
// renewed to maxAge from now, or set to now if Invalidate was called. A
// 5xx response leaves the stored session unchanged.
func (s *Sessions) Middleware(maxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := CookieSessionID(r)
			if err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			sess, err := s.Load(r.Context(), id)
			if err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status >= 500 {
				return
			}
			// Extension failure doesn't undo a response already written; it
			// only shortens how long the session stays valid.
			_ = s.Persist(r.Context(), sess, maxAge)
		})
	}
}
