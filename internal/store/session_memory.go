package store

import (
	"context"
	"sync"
	"time"
)

// MemorySessions is an in-memory Sessions implementation used in tests.
type MemorySessions struct {
	mu  sync.RWMutex
	m   map[string]memSession
	ttl time.Duration
}

type memSession struct {
	data    SessionData
	expires time.Time
}

// NewMemorySessions returns an empty MemorySessions with the given TTL.
func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{m: map[string]memSession{}, ttl: ttl}
}

func (s *MemorySessions) Load(ctx context.Context, id string) (SessionData, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.m[id]
	if !ok || !ms.expires.After(time.Now()) {
		return SessionData{}, false, nil
	}
	return ms.data, true, nil
}

func (s *MemorySessions) Save(ctx context.Context, id string, data SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[id] = memSession{data: data, expires: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemorySessions) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, id)
	return nil
}
