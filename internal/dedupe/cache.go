// ABOUTME: Clock-driven TTL cache for suppressing re-delivered chat lines
// ABOUTME: Size-limited with oldest-first eviction and periodic expiry sweeps

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/standin/internal/clock"
)

// DefaultChatWindow is how long an identical chat line is treated as a re-delivery.
const DefaultChatWindow = 2 * time.Second

type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited set of seen keys.
// A linked list keeps insertion order for O(1) eviction.
type Cache struct {
	clock   clock.Clock
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	sweep   clock.Timer
	closed  bool
}

// New creates a cache. Expired entries are swept every ttl on c.
func New(c clock.Clock, ttl time.Duration, maxSize int) *Cache {
	cache := &Cache{
		clock:   c,
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
	cache.mu.Lock()
	cache.scheduleSweepLocked()
	cache.mu.Unlock()
	return cache
}

// ChatKey builds the dedupe key for a chat line.
func ChatKey(username, message string) string {
	return username + "\x00" + message
}

// Seen reports whether key was marked within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	return ok && c.clock.Now().Sub(entry.timestamp) < c.ttl
}

// CheckAndMark reports whether key is a duplicate; if not, it marks it.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if entry, ok := c.seen[key]; ok && now.Sub(entry.timestamp) < c.ttl {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) markLocked(key string, now time.Time) {
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.seen, front.Value.(string))
		}
	}

	c.seen[key] = &cacheEntry{
		timestamp: now,
		element:   c.order.PushBack(key),
	}
}

func (c *Cache) scheduleSweepLocked() {
	if c.closed || c.ttl <= 0 {
		return
	}
	c.sweep = c.clock.AfterFunc(c.ttl, c.runSweep)
}

func (c *Cache) runSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	now := c.clock.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
	c.scheduleSweepLocked()
}

// Close stops the periodic sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.sweep != nil {
		c.sweep.Stop()
	}
}
