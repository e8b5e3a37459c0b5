// Package cache provides read caching for deck projections.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryClient implements cache with an in-process map. Suitable for a
// single instance; use the Redis client when running more than one.
type MemoryClient struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates a memory cache bounded to maxEntries.
func NewMemoryClient(maxEntries int) *MemoryClient {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &MemoryClient{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
	}
}

// Get retrieves a value, honoring expiry.
func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value with TTL. When full, expired entries are evicted
// first; if none are, an arbitrary entry is dropped.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		now := time.Now()
		evicted := false
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
				evicted = true
			}
		}
		if !evicted {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}

	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes a value.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Close is a no-op for the memory client.
func (c *MemoryClient) Close() error {
	return nil
}
