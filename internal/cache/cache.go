// Package cache provides the two-tier lookup cache for route and station
// data: a fast in-process map in front of a persistent key/value store.
// Entries are wrapped in a timestamped envelope; freshness is checked on
// read and expired entries are evicted lazily, never proactively.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Envelope wraps a cached payload with its storage timestamp (unix millis).
type Envelope struct {
	StoredAt int64           `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// Store is the persistent tier. Get returns (nil, nil) on a clean miss.
type Store interface {
	Get(ctx context.Context, key string) (*Envelope, error)
	Put(ctx context.Context, key string, env Envelope) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Cache is the two-tier cache shared by all lookups in a session. Writes
// are single-step replacements, so a mutex is all the coordination needed.
type Cache struct {
	mu    sync.RWMutex
	mem   map[string]Envelope
	store Store
	now   func() time.Time
}

// New creates a cache over the given persistent store.
func New(store Store) *Cache {
	return NewWithClock(store, time.Now)
}

// NewWithClock is New with an injectable clock for deterministic tests.
func NewWithClock(store Store, now func() time.Time) *Cache {
	return &Cache{
		mem:   make(map[string]Envelope),
		store: store,
		now:   now,
	}
}

// Get returns the cached payload for key if it is younger than maxAge.
// maxAge <= 0 means entries never expire. A fresh hit in the persistent
// tier is promoted into the in-process map.
func (c *Cache) Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool) {
	c.mu.RLock()
	env, ok := c.mem[key]
	c.mu.RUnlock()

	if ok {
		if c.fresh(env, maxAge) {
			return env.Payload, true
		}
		// Expired in memory implies expired on disk too.
		c.Invalidate(ctx, key)
		return nil, false
	}

	stored, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("Cache: persistent read for %q failed: %v", key, err)
		return nil, false
	}
	if stored == nil {
		return nil, false
	}
	if !c.fresh(*stored, maxAge) {
		if err := c.store.Delete(ctx, key); err != nil {
			log.Printf("Cache: failed to evict expired %q: %v", key, err)
		}
		return nil, false
	}

	c.mu.Lock()
	c.mem[key] = *stored
	c.mu.Unlock()
	return stored.Payload, true
}

// Put stores payload under key in both tiers with the current timestamp.
// A persistent-tier failure is logged, not returned: the in-process entry
// still serves the session, losing it only costs a re-fetch.
func (c *Cache) Put(ctx context.Context, key string, payload []byte) {
	env := Envelope{
		StoredAt: c.now().UnixMilli(),
		Payload:  payload,
	}

	c.mu.Lock()
	c.mem[key] = env
	c.mu.Unlock()

	if err := c.store.Put(ctx, key, env); err != nil {
		log.Printf("Cache: persistent write for %q failed: %v", key, err)
	}
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	if err := c.store.Delete(ctx, key); err != nil {
		log.Printf("Cache: failed to delete %q: %v", key, err)
	}
}

func (c *Cache) fresh(env Envelope, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	age := c.now().UnixMilli() - env.StoredAt
	return age < maxAge.Milliseconds()
}
