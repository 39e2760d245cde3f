// ABOUTME: Thread-safe TTL cache of webhook responses keyed by delivery token
// ABOUTME: Lets retried Twilio webhooks replay the first response instead of re-running a turn

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Response is a stored webhook reply.
type Response struct {
	ContentType string
	Body        []byte
}

// cacheEntry stores the timestamp, list element and response for a key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
	response  Response
}

// Cache is a thread-safe, TTL-based, size-limited store of webhook
// responses. Uses a doubly-linked list to maintain insertion order for
// O(1) eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically removes expired entries until Close.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Recall returns the response stored for key if it has not expired.
func (c *Cache) Recall(key string) (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return Response{}, false
	}
	return entry.response, true
}

// Remember stores resp under key. If the cache is at capacity the oldest
// entry is evicted to make room. The body is copied.
func (c *Cache) Remember(key string, resp Response) {
	resp.Body = append([]byte(nil), resp.Body...)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, exists := c.entries[key]; exists {
		entry.timestamp = now
		entry.response = resp
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
		response:  resp,
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
