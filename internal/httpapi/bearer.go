package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/cs2kz-org/cs2kz-api/internal/accesskeys"
)

type bearerCtxKey struct{}

// claimsFromContext returns the bearer-token identity BearerAuth attached.
func claimsFromContext(ctx context.Context) (accesskeys.Claims, bool) {
	c, ok := ctx.Value(bearerCtxKey{}).(accesskeys.Claims)
	return c, ok
}

// BearerAuth verifies the Authorization: Bearer <token> header minted by
// POST /servers/key and attaches its claims to the request context.
// Rejects with 401 problem+json on any failure.
func BearerAuth(minter *accesskeys.Minter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeProblem(w, http.StatusUnauthorized, "missing bearer token", "")
				return
			}

			claims, err := minter.Verify(token)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "invalid bearer token", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), bearerCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
