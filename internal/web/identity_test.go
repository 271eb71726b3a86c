package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/avasek/storefront/internal/session"
	"github.com/avasek/storefront/internal/store"
)

// countingUsers wraps a Users store, counting lookups and optionally
// injecting a store failure.
type countingUsers struct {
	store.Users
	lookups  int
	failWith error
}

func (c *countingUsers) FindByID(ctx context.Context, id bson.ObjectID) (*store.User, error) {
	c.lookups++
	if c.failWith != nil {
		return nil, c.failWith
	}
	return c.Users.FindByID(ctx, id)
}

func testFallback() *Fallback {
	return NewFallback(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIdentityAnonymousSkipsStore(t *testing.T) {
	users := &countingUsers{Users: store.NewMemoryUsers()}
	id := NewIdentity(users, testFallback())

	handlerRan := false
	h := id.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		if _, ok := UserFromContext(r.Context()); ok {
			t.Error("expected no user on anonymous request")
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(session.NewContext(r.Context(), session.Restored("s", store.SessionData{})))
	h.ServeHTTP(httptest.NewRecorder(), r)

	if !handlerRan {
		t.Error("expected handler to run")
	}
	if users.lookups != 0 {
		t.Errorf("expected no store I/O for an anonymous session, got %d lookups", users.lookups)
	}
}

func TestIdentityResolvesUser(t *testing.T) {
	mem := store.NewMemoryUsers()
	u := &store.User{Email: "a@shop.test"}
	if err := mem.Insert(context.Background(), u); err != nil {
		t.Fatalf("insert: %v", err)
	}

	id := NewIdentity(mem, testFallback())
	h := id.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFromContext(r.Context())
		if !ok || got.Email != "a@shop.test" {
			t.Errorf("expected resolved user, got: %+v", got)
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(session.NewContext(r.Context(), session.Restored("s", store.SessionData{UserID: u.ID})))
	h.ServeHTTP(httptest.NewRecorder(), r)
}

// A stale user reference falls back to anonymous instead of failing the
// request.
func TestIdentityStaleReferenceIsAnonymous(t *testing.T) {
	id := NewIdentity(store.NewMemoryUsers(), testFallback())

	handlerRan := false
	h := id.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		if _, ok := UserFromContext(r.Context()); ok {
			t.Error("expected anonymous request for a stale reference")
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(session.NewContext(r.Context(), session.Restored("s", store.SessionData{UserID: bson.NewObjectID()})))
	h.ServeHTTP(httptest.NewRecorder(), r)

	if !handlerRan {
		t.Error("expected handler to run")
	}
}

func TestIdentityStoreErrorIsTerminal(t *testing.T) {
	users := &countingUsers{Users: store.NewMemoryUsers(), failWith: errors.New("store down")}
	id := NewIdentity(users, testFallback())

	h := id.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run on a store failure")
	}))

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(session.NewContext(r.Context(), session.Restored("s", store.SessionData{UserID: bson.NewObjectID()})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got: %d", w.Code)
	}
}
