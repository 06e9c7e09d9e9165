// Package redis provides a shared response cache on Redis, for deployments
// where several processes serve the same endpoints.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/apicore/domain/call"
	json "github.com/goccy/go-json"
	backend "github.com/redis/go-redis/v9"
)

// ResponseCache implements ports.ResponseCache using Redis. Expiry is
// delegated to Redis key TTLs.
type ResponseCache struct {
	client *backend.Client
	prefix string
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *ResponseCache) {
		c.prefix = prefix
	}
}

// New connects to Redis at address.
func New(address, password string, db int, opts ...Option) *ResponseCache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a cache over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		client: client,
		prefix: "apicore:response:",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResponseCache) key(k string) string {
	return c.prefix + k
}

// Get returns the envelope stored under key.
func (c *ResponseCache) Get(ctx context.Context, key string) (call.Envelope, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return call.Envelope{}, false, nil
		}
		return call.Envelope{}, false, fmt.Errorf("redis get: %w", err)
	}

	var env call.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return call.Envelope{}, false, fmt.Errorf("decode cached envelope: %w", err)
	}
	return env, true, nil
}

// Set stores env for ttl. A non-positive ttl stores nothing.
func (c *ResponseCache) Set(ctx context.Context, key string, env call.Envelope, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *ResponseCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := escapeGlob(c.key(prefix)) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Ping checks the connection.
func (c *ResponseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *ResponseCache) Close() error {
	return c.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
