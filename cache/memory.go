package cache

import (
	"container/list"
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// MemoryCache is the bounded in-memory LRU implementation of [Cache].
// A doubly linked list (container/list) tracks recency order and a map
// gives O(1) lookup, the same combination as a classic LRU: the list
// contains exactly the keys in the map, nothing more or less.
type MemoryCache struct {
	mu     sync.Mutex
	policy Policy

	ll    *list.List // front = most recently used
	index map[string]*list.Element

	hits, misses, evictions int64

	// pending is the in-flight background revalidation table: at most
	// one entry per key, removed when the task completes.
	pending map[string]struct{}

	group      singleflight.Group
	background sync.WaitGroup
}

// NewMemoryCache creates a new in-memory cache governed by policy.
func NewMemoryCache(policy Policy) *MemoryCache {
	return &MemoryCache{
		policy:  policy,
		ll:      list.New(),
		index:   make(map[string]*list.Element),
		pending: make(map[string]struct{}),
	}
}

// Get retrieves a value, promoting it to most-recently-used on a hit.
// Returns (nil, false) on miss or expiry.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.FreshnessState(time.Now()) == Expired {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}

	entry.HitCount++
	c.ll.MoveToFront(el)
	c.hits++
	return entry.Value, true
}

// GetAny retrieves a value regardless of freshness, including an
// expired entry — the last-resort fallback a pipeline consults when
// an upstream call fails and any cached data beats none at all. It
// does not promote recency order or affect hit/miss counters, since a
// stale fallback read is not a cache "hit" in the ordinary sense.
func (c *MemoryCache) GetAny(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*Entry).Value, true
}

// Set stores value under key with ttl, or the policy-derived TTL if
// ttl is zero. A non-positive effective TTL means "don't cache."
// Evicts the least-recently-used entry on insertion if at capacity.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	effective := c.policy.EffectiveTTL(key, ttl)
	if effective <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, effective)
	return nil
}

func (c *MemoryCache) setLocked(key string, value []byte, ttl time.Duration) {
	if el, ok := c.index[key]; ok {
		entry := el.Value.(*Entry)
		entry.Value = value
		entry.TTL = ttl
		entry.CreatedAt = time.Now()
		c.ll.MoveToFront(el)
		return
	}

	if c.policy.MaxEntries > 0 && len(c.index) >= c.policy.MaxEntries {
		c.evictLRULocked()
	}

	entry := &Entry{Key: key, Value: value, CreatedAt: time.Now(), TTL: ttl}
	el := c.ll.PushFront(entry)
	c.index[key] = el
}

func (c *MemoryCache) evictLRULocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
	c.evictions++
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	entry := el.Value.(*Entry)
	c.ll.Remove(el)
	delete(c.index, entry.Key)
}

// Delete removes a value. Idempotent — no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Has reports whether key is present and unexpired, without affecting
// recency order.
func (c *MemoryCache) Has(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return false
	}
	return el.Value.(*Entry).FreshnessState(time.Now()) != Expired
}

// Touch refreshes an entry's creation timestamp (and optionally its
// TTL), promoting it to most-recently-used. Fails if the key is
// absent or already expired.
func (c *MemoryCache) Touch(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return ErrMiss
	}
	entry := el.Value.(*Entry)
	if entry.FreshnessState(time.Now()) == Expired {
		c.removeLocked(el)
		return ErrMiss
	}
	entry.CreatedAt = time.Now()
	if ttl > 0 {
		entry.TTL = ttl
	}
	c.ll.MoveToFront(el)
	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	return nil
}

// Keys returns every non-expired key, in no particular order.
func (c *MemoryCache) Keys(_ context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	keys := make([]string, 0, len(c.index))
	for k, el := range c.index {
		if el.Value.(*Entry).FreshnessState(now) != Expired {
			keys = append(keys, k)
		}
	}
	return keys
}

// Scan returns up to limit non-expired keys matching a glob pattern
// where "*" matches any run of characters (limit <= 0 means
// unbounded).
func (c *MemoryCache) Scan(_ context.Context, pattern string, limit int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()

	var matched []string
	for k, el := range c.index {
		if el.Value.(*Entry).FreshnessState(now) == Expired {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			matched = append(matched, k)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

// MGet is the batch form of Get.
func (c *MemoryCache) MGet(ctx context.Context, keys []string) map[string][]byte {
	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(ctx, k); ok {
			result[k] = v
		}
	}
	return result
}

// MSet is the batch form of Set; ttl applies to every key.
func (c *MemoryCache) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		if err := c.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

// MDelete is the batch form of Delete.
func (c *MemoryCache) MDelete(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := c.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of cache performance counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		EntryCount: len(c.index),
	}
	if c.ll.Len() == 0 {
		return stats
	}

	keys := make([]string, 0, len(c.index))
	var oldest, newest *Entry
	for k, el := range c.index {
		keys = append(keys, k)
		entry := el.Value.(*Entry)
		stats.TotalBytes += int64(len(entry.Value))
		if oldest == nil || entry.CreatedAt.Before(oldest.CreatedAt) {
			oldest = entry
		}
		if newest == nil || entry.CreatedAt.After(newest.CreatedAt) {
			newest = entry
		}
	}
	stats.Keys = keys
	if oldest != nil {
		stats.OldestKey, stats.OldestAt = oldest.Key, oldest.CreatedAt
	}
	if newest != nil {
		stats.NewestKey, stats.NewestAt = newest.Key, newest.CreatedAt
	}
	return stats
}

// Reset clears the cache and zeroes all counters.
func (c *MemoryCache) Reset() {
	c.mu.Lock()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.mu.Unlock()
}

var _ Cache = (*MemoryCache)(nil)
