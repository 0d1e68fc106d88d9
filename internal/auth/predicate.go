package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// ErrUnauthorized is returned when a predicate's session fails its check.
var ErrUnauthorized = fmt.Errorf("auth: unauthorized")

// ErrUnknownServer is returned by IsServerOwner when the path's server_id
// does not name an existing server.
var ErrUnknownServer = fmt.Errorf("auth: unknown server")

// Predicate is an authorization check run against the current session and
// request. Implementations may stash data in the request's context for
// downstream handlers (IsServerOwner injects the looked-up access key).
type Predicate interface {
	Authorize(ctx context.Context, sess *Session, r *http.Request) (context.Context, error)
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc func(ctx context.Context, sess *Session, r *http.Request) (context.Context, error)

func (f PredicateFunc) Authorize(ctx context.Context, sess *Session, r *http.Request) (context.Context, error) {
	return f(ctx, sess, r)
}

// HasPermissions succeeds when the session's user has every bit in mask.
func HasPermissions(users *catalog.Users, mask kz.Permissions) Predicate {
	return PredicateFunc(func(ctx context.Context, sess *Session, r *http.Request) (context.Context, error) {
		perms, err := users.GetPermissions(ctx, sess.UserID)
		if err != nil {
			return ctx, err
		}
		if !perms.Contains(mask) {
			return ctx, ErrUnauthorized
		}
		return ctx, nil
	})
}

type ownedServerAccessKeyCtxKey struct{}

// OwnedServerAccessKey returns the access key IsServerOwner injected into
// the request context, if any.
func OwnedServerAccessKey(ctx context.Context) (kz.AccessKey, bool) {
	key, ok := ctx.Value(ownedServerAccessKeyCtxKey{}).(kz.AccessKey)
	return key, ok
}

// IsServerOwner reads server_id from the request path (set by the router
// via http.ServeMux's {server_id} pattern and read with r.PathValue),
// fails with ErrUnknownServer if it doesn't name a server, ErrUnauthorized
// if the session's user doesn't own it, and otherwise injects the server's
// access key into the context for downstream handlers.
func IsServerOwner(servers *catalog.Servers) Predicate {
	return PredicateFunc(func(ctx context.Context, sess *Session, r *http.Request) (context.Context, error) {
		idStr := r.PathValue("server_id")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return ctx, ErrUnknownServer
		}

		server, err := servers.GetByID(ctx, kz.ServerID(id))
		if err != nil {
			return ctx, err
		}
		if server == nil {
			return ctx, ErrUnknownServer
		}
		if server.OwnerID != sess.UserID {
			return ctx, ErrUnauthorized
		}

		return context.WithValue(ctx, ownedServerAccessKeyCtxKey{}, server.AccessKey), nil
	})
}

// Or succeeds if either a or b succeeds, trying a first. Used to gate
// "admin or owner" actions. On success, returns whichever branch's
// (possibly-modified) context succeeded.
func Or(a, b Predicate) Predicate {
	return PredicateFunc(func(ctx context.Context, sess *Session, r *http.Request) (context.Context, error) {
		if next, err := a.Authorize(ctx, sess, r); err == nil {
			return next, nil
		}
		return b.Authorize(ctx, sess, r)
	})
}
