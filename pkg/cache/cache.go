// Package cache provides the in-memory record store behind one development
// shard.
//
// Records are opaque byte values with an optional expiry. The store enforces
// per-record key and value limits and a byte budget, reporting violations
// with the protocol's error kinds so a shard can answer with them directly.
//
// Example usage:
//
//	c := cache.New(cache.Limits{MaxKeyLength: 1024, MaxValueLength: 1 << 20, MaxMemory: 64 << 20})
//	defer c.Close()
//
//	if err := c.Set([]byte("user:123"), []byte("john_doe"), time.Hour); err != nil {
//		log.Printf("set failed: %v", err)
//	}
//	value, err := c.Get([]byte("user:123"))
//
// All operations are thread-safe and can be called concurrently from multiple goroutines.
// Expired records are removed lazily on access and by a background sweep.
package cache

import (
	"sync"
	"time"

	"github.com/cachemir/shardline/pkg/protocol"
)

const sweepInterval = time.Minute

// Limits bounds what a Cache accepts. Zero fields disable the check.
type Limits struct {
	MaxKeyLength   int   // Longest accepted key
	MaxValueLength int   // Longest accepted value
	MaxMemory      int64 // Total key+value bytes held
}

// Value is a single record with its expiration.
type Value struct {
	ExpiresAt time.Time // When this value expires (zero means no expiration)
	Data      []byte    // Stored bytes, owned by the cache
}

// Stats describes the current contents of a Cache.
type Stats struct {
	Keys    int   // Number of records
	Bytes   int64 // Key and value bytes held
	Expired int   // Expired records not yet swept
}

// Cache is a thread-safe byte store with expiry and a memory budget.
type Cache struct {
	data   map[string]*Value // The actual cache storage
	limits Limits            // Accepted sizes
	used   int64             // Key and value bytes held
	mu     sync.RWMutex      // Protects data and used
	done   chan struct{}     // Closed to stop the sweep
	once   sync.Once         // Guards close of done
}

// New creates a Cache and starts the background expiration sweep.
// Call Close to stop the sweep.
func New(limits Limits) *Cache {
	c := &Cache{
		data:   make(map[string]*Value),
		limits: limits,
		done:   make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Close stops the background sweep. The cache stays usable.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

// cleanupExpired periodically removes every record past its expiry.
func (c *Cache) cleanupExpired() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes expired records now and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, value := range c.data {
		if isExpired(value, now) {
			c.removeLocked(key, value)
			removed++
		}
	}
	return removed
}

func isExpired(value *Value, now time.Time) bool {
	return !value.ExpiresAt.IsZero() && now.After(value.ExpiresAt)
}

func (c *Cache) removeLocked(key string, value *Value) {
	c.used -= int64(len(key) + len(value.Data))
	delete(c.data, key)
}

// Get returns a copy of the value stored under key.
//
// Returns protocol.RecordNotFound if the key is absent and
// protocol.TTLExpired if it was present but had expired; the expired record
// is removed, so the next Get reports RecordNotFound.
func (c *Cache) Get(key []byte) ([]byte, error) {
	c.mu.RLock()
	value, exists := c.data[string(key)]
	if exists && !isExpired(value, time.Now()) {
		result := append([]byte{}, value.Data...)
		c.mu.RUnlock()
		return result, nil
	}
	c.mu.RUnlock()

	if !exists {
		return nil, protocol.RecordNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.data[string(key)]; ok && current == value {
		c.removeLocked(string(key), value)
	}
	return nil, protocol.TTLExpired
}

// Set stores a copy of val under key. If ttl is 0 the record does not expire.
//
// Returns protocol.KeyTooLong, protocol.ValueTooLong or protocol.OutOfMemory
// when a limit would be exceeded; the previous record, if any, is kept.
func (c *Cache) Set(key, val []byte, ttl time.Duration) error {
	if c.limits.MaxKeyLength > 0 && len(key) > c.limits.MaxKeyLength {
		return protocol.KeyTooLong
	}
	if c.limits.MaxValueLength > 0 && len(val) > c.limits.MaxValueLength {
		return protocol.ValueTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := string(key)
	used := c.used + int64(len(k)+len(val))
	if old, exists := c.data[k]; exists {
		used -= int64(len(k) + len(old.Data))
	}
	if c.limits.MaxMemory > 0 && used > c.limits.MaxMemory {
		return protocol.OutOfMemory
	}

	value := &Value{Data: append([]byte{}, val...)}
	if ttl > 0 {
		value.ExpiresAt = time.Now().Add(ttl)
	}

	c.data[k] = value
	c.used = used
	return nil
}

// Del removes key. Returns protocol.RecordNotFound if it was absent or
// already expired.
func (c *Cache) Del(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := string(key)
	value, exists := c.data[k]
	if !exists {
		return protocol.RecordNotFound
	}

	c.removeLocked(k, value)
	if isExpired(value, time.Now()) {
		return protocol.RecordNotFound
	}
	return nil
}

// Exists reports whether key holds an unexpired record.
func (c *Cache) Exists(key []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, exists := c.data[string(key)]
	return exists && !isExpired(value, time.Now())
}

// Stats returns statistics about the current contents.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Keys: len(c.data), Bytes: c.used}
	now := time.Now()
	for _, value := range c.data {
		if isExpired(value, now) {
			stats.Expired++
		}
	}
	return stats
}
