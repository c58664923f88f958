// Package cache provides a small TTL cache used to memoise parsed
// workbooks between tool calls, plus the file fingerprint that keys it.
// An entry is only valid while the source file's size and mtime are
// unchanged, so a stale hit cannot outlive an edit to the file.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache provides a simple in-memory cache with expiration
type Cache struct {
	data  map[string]any
	times map[string]time.Time
	ttl   time.Duration
	mu    sync.RWMutex
}

// NewCache creates a new cache with the specified TTL
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		data:  make(map[string]any),
		times: make(map[string]time.Time),
		ttl:   ttl,
	}
}

// Get retrieves a value from the cache
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, exists := c.data[key]
	if !exists {
		return nil, false
	}

	// Check if expired
	if time.Since(c.times[key]) > c.ttl {
		return nil, false
	}

	return val, true
}

// Set stores a value in the cache
func (c *Cache) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = val
	c.times[key] = time.Now()
}

// Fingerprint derives a cache key from a file's identity and version. The
// key changes whenever the file is replaced or modified, which is what
// invalidates cached parse results after a write-back.
func Fingerprint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano()), nil
}
