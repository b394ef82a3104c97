// Package cache provides a bounded, TTL-aware, in-process key/value cache.
//
// Entries are evicted in insertion order once the cache is full; overwriting a
// key counts as a fresh insertion. The cache is safe for concurrent use but is
// never shared across processes.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
)

// Default sizing for result caches.
const (
	DefaultCapacity = 1000
	DefaultTTL      = 30 * time.Minute
)

// Entry is a single cached value.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e Entry[V]) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// Cache is a bounded insertion-ordered map with per-entry expiry.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    *orderedmap.OrderedMap[string, Entry[V]]
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	hits, misses, evictions, expired uint64
}

// New creates a cache holding at most capacity entries. Non-positive values
// fall back to DefaultCapacity and DefaultTTL.
func New[V any](capacity int, defaultTTL time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache[V]{
		entries:    orderedmap.NewOrderedMap[string, Entry[V]](),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the live value for key. Expired entries are removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if e.expired(c.now()) {
		c.entries.Delete(key)
		c.expired++
		c.misses++
		return zero, false
	}
	c.hits++
	return e.Value, true
}

// Set stores v under key with the default TTL.
func (c *Cache[V]) Set(key string, v V) {
	c.SetWithTTL(key, v, c.defaultTTL)
}

// SetWithTTL stores v under key for ttl. At capacity the oldest inserted entry
// is evicted first.
func (c *Cache[V]) SetWithTTL(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Overwrites move the key to the newest position.
	c.entries.Delete(key)
	for c.entries.Len() >= c.capacity {
		oldest := c.entries.Front()
		if oldest == nil {
			break
		}
		c.entries.Delete(oldest.Key)
		c.evictions++
		slog.Debug("Cache.SetWithTTL: evicted oldest entry", "key", oldest.Key)
	}
	now := c.now()
	c.entries.Set(key, Entry[V]{Key: key, Value: v, CreatedAt: now, ExpiresAt: now.Add(ttl)})
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Delete(key)
}

// Len returns the number of stored entries, including ones not yet purged.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.NewOrderedMap[string, Entry[V]]()
}

// PurgeExpired removes all expired entries and returns how many were dropped.
func (c *Cache[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var stale []string
	for el := c.entries.Front(); el != nil; el = el.Next() {
		if el.Value.expired(now) {
			stale = append(stale, el.Key)
		}
	}
	for _, k := range stale {
		c.entries.Delete(k)
	}
	c.expired += uint64(len(stale))
	return len(stale)
}

// Stats returns current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      c.entries.Len(),
		Capacity:  c.capacity,
	}
}

// HashKey derives a stable cache key from the given parts. Each part is length
// prefixed so that ("ab","c") and ("a","bc") hash differently.
func HashKey(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
