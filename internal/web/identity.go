package web

import (
	"errors"
	"net/http"

	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
)

// Identity resolves the session's user reference to a User record.
type Identity struct {
	users    store.Users
	fallback *Fallback
}

// NewIdentity creates an Identity resolver.
// This function panics if users or fallback are nil.
func NewIdentity(users store.Users, fallback *Fallback) *Identity {
	if users == nil {
		panic("users store must be provided")
	}
	if fallback == nil {
		panic("fallback must be provided")
	}
	return &Identity{users: users, fallback: fallback}
}

// Middleware attaches the authenticated user to the request context.
//
// An anonymous session passes through with no store I/O. A stale user
// reference (deleted account) also passes through anonymously rather than
// failing the request. Only a store failure terminates the request, via the
// fallback error responder.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok || sess.UserID().IsZero() {
			next.ServeHTTP(w, r)
			return
		}

		u, err := i.users.FindByID(r.Context(), sess.UserID())
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
		case errors.Is(err, store.ErrNotFound):
			next.ServeHTTP(w, r)
		default:
			i.fallback.ServeError(w, r, err)
		}
	})
}
