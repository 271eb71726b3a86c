// Package session restores server-held session state from a cookie and
// exposes it to the rest of the request pipeline.
//
// A request either presents a cookie naming an existing session or is given a
// fresh one; the session handle rides on the request context and is written
// back to the store after the handler ran, if it was mutated. The server does
// not serialize concurrent requests on one session; a client racing itself
// can lose session writes, which is accepted.
package session

import (
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/avasek/storefront/internal/store"
)

// Session is the live, request-scoped handle of one client session.
// It's safe for concurrent use, though normally only one request touches it.
type Session struct {
	id string

	mu        sync.Mutex
	data      store.SessionData
	dirty     bool
	destroyed bool
}

// New returns a fresh, empty session with the given id.
func New(id string) *Session {
	return &Session{id: id, dirty: true}
}

// Restored returns a session handle over previously stored data.
func Restored(id string, data store.SessionData) *Session {
	return &Session{id: id, data: data}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the user reference held by the session.
// A zero ID means the session is anonymous.
func (s *Session) UserID() bson.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UserID
}

// SetUserID stores a user reference in the session.
func (s *Session) SetUserID(id bson.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.UserID = id
	s.dirty = true
}

// LoggedIn reports whether the session passed a login.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LoggedIn
}

// SetLoggedIn sets the login flag.
func (s *Session) SetLoggedIn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LoggedIn = v
	s.dirty = true
}

// AddFlash appends a one-shot message for the next page render.
func (s *Session) AddFlash(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Flash = append(s.data.Flash, msg)
	s.dirty = true
}

// Flashes returns and clears all flash messages, in insertion order.
func (s *Session) Flashes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.data.Flash
	if len(f) > 0 {
		s.data.Flash = nil
		s.dirty = true
	}
	return f
}

// Value returns a free-form session value.
func (s *Session) Value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Values[key]
}

// SetValue stores a free-form session value.
func (s *Session) SetValue(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Values == nil {
		s.data.Values = map[string]string{}
	}
	s.data.Values[key] = value
	s.dirty = true
}

// Destroy marks the session for deletion at the end of the request.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.dirty = true
}

func (s *Session) snapshot() (data store.SessionData, dirty, destroyed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.dirty, s.destroyed
}
