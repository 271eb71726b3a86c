package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/avasek/storefront/internal/store"
)

type ctxKey string

const sessionContextKey ctxKey = "storefront.session"

// FromContext returns the session attached to the request context.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok
}

// NewContext returns ctx with the session attached.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// Manager loads and persists sessions around request handling.
type Manager struct {
	store      store.Sessions
	cookieName string
	secure     bool
	logger     *slog.Logger

	// OnStoreError is invoked instead of the wrapped handler when the
	// session store fails; it must produce a terminal response.
	OnStoreError func(w http.ResponseWriter, r *http.Request, err error)
}

// NewManager creates a Manager. This function panics if store is nil.
func NewManager(st store.Sessions, cookieName string, secure bool, logger *slog.Logger) *Manager {
	if st == nil {
		panic("session store must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      st,
		cookieName: cookieName,
		secure:     secure,
		OnStoreError: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		},
		logger: logger,
	}
}

// Middleware attaches a session to every request. A request without a valid
// session cookie gets a fresh session whose cookie is set on the response.
// After the handler returns, a mutated session is written back to the store.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.restore(r)
		if err != nil {
			m.logger.Error("session restore failed", "error", err)
			m.OnStoreError(w, r, err)
			return
		}

		if c, _ := r.Cookie(m.cookieName); c == nil || c.Value != sess.id {
			http.SetCookie(w, &http.Cookie{
				Name:     m.cookieName,
				Value:    sess.id,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sess)))

		m.persist(r.Context(), sess)
	})
}

// restore loads the session named by the request cookie, or creates a new one.
func (m *Manager) restore(r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		data, ok, err := m.store.Load(r.Context(), c.Value)
		if err != nil {
			return nil, err
		}
		if ok {
			return Restored(c.Value, data), nil
		}
		// Unknown or expired id: fall through and mint a fresh session.
	}
	return New(uuid.NewString()), nil
}

func (m *Manager) persist(ctx context.Context, sess *Session) {
	data, dirty, destroyed := sess.snapshot()
	if !dirty {
		return
	}

	var err error
	if destroyed {
		err = m.store.Delete(ctx, sess.id)
	} else {
		err = m.store.Save(ctx, sess.id, data)
	}
	if err != nil {
		// The response is already written; all we can do is log.
		m.logger.Error("session persist failed", "session_id", sess.id, "error", err)
	}
}
