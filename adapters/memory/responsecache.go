package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/artpar/apicore/domain/call"
	"github.com/artpar/apicore/ports"
)

type cacheEntry struct {
	value     call.Envelope
	expiresAt time.Time
}

// ResponseCache is an in-memory implementation of ports.ResponseCache.
// Expired entries are evicted lazily on lookup.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	clock   ports.Clock
}

// NewResponseCache creates a cache that reads time from clock.
func NewResponseCache(clock ports.Clock) *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]cacheEntry),
		clock:   clock,
	}
}

// Get returns the unexpired envelope stored under key.
func (c *ResponseCache) Get(ctx context.Context, key string) (call.Envelope, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return call.Envelope{}, false, nil
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return call.Envelope{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores an envelope for ttl. A ttl <= 0 stores nothing.
func (c *ResponseCache) Set(ctx context.Context, key string, env call.Envelope, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: env, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *ResponseCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not (for testing).
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ensure interface compliance.
var _ ports.ResponseCache = (*ResponseCache)(nil)
