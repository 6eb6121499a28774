package cache

import (
	"context"
	"sync"
)

// MemoryStore is a Store with no persistence, used when the cache database
// is disabled and throughout the tests. Losing it costs one extra upstream
// round trip per key.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Envelope
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Envelope)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &env, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = env
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
