package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryUsers is an in-memory Users implementation used in tests.
type MemoryUsers struct {
	mu sync.RWMutex
	m  map[bson.ObjectID]*User
}

// NewMemoryUsers returns an empty MemoryUsers.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{m: map[bson.ObjectID]*User{}}
}

func (s *MemoryUsers) FindByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	le := lowerEmail(email)
	for _, u := range s.m {
		if u.LoweredEmail == le {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUsers) Insert(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	u.LoweredEmail = lowerEmail(u.Email)
	cp := *u
	s.m[u.ID] = &cp
	return nil
}

func (s *MemoryUsers) FindPending(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*User
	for _, u := range s.m {
		if u.Pending {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryUsers) SetPending(ctx context.Context, id bson.ObjectID, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.m[id]
	if !ok {
		return ErrNotFound
	}
	u.Pending = pending
	return nil
}

func (s *MemoryUsers) ClearAllPending(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, u := range s.m {
		if u.Pending {
			u.Pending = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryUsers) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.m)), nil
}
