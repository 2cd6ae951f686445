package pdfsource

import (
	"fmt"
	"sync"
	"time"
)

// Cache is a thread-safe LRU cache for recognized text and rendered pages.
// Keys include the source file's modification time, so a file changed on
// disk can never serve stale entries; the old entries simply age out.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*cacheNode[V]
	head     *cacheNode[V]
	tail     *cacheNode[V]
	hits     int64
	misses   int64
}

type cacheNode[V any] struct {
	key   string
	value V
	prev  *cacheNode[V]
	next  *cacheNode[V]
}

// NewCache creates an LRU cache holding at most capacity entries.
func NewCache[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = 100
	}
	c := &Cache[V]{
		capacity: capacity,
		items:    make(map[string]*cacheNode[V]),
	}
	c.head = &cacheNode[V]{}
	c.tail = &cacheNode[V]{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// CacheKey builds the cache key for one page of one file at one resolution.
func CacheKey(path string, page, dpi int, mtime time.Time) string {
	return fmt.Sprintf("%s|%d|%d|%d", path, page, dpi, mtime.UnixNano())
}

// Get retrieves a value and marks it as recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.moveToFront(node)
		c.hits++
		return node.value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Put adds or updates an entry, evicting the least recently used entry when
// over capacity.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.value = value
		c.moveToFront(node)
		return
	}

	node := &cacheNode[V]{key: key, value: value}
	c.addToFront(node)
	c.items[key] = node

	if len(c.items) > c.capacity {
		lru := c.tail.prev
		if lru != c.head {
			c.removeNode(lru)
			delete(c.items, lru.key)
		}
	}
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats reports hit and miss counts since construction.
func (c *Cache[V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear drops every entry and resets the counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheNode[V])
	c.head.next = c.tail
	c.tail.prev = c.head
	c.hits = 0
	c.misses = 0
}

func (c *Cache[V]) moveToFront(node *cacheNode[V]) {
	c.removeNode(node)
	c.addToFront(node)
}

func (c *Cache[V]) addToFront(node *cacheNode[V]) {
	node.prev = c.head
	node.next = c.head.next
	c.head.next.prev = node
	c.head.next = node
}

func (c *Cache[V]) removeNode(node *cacheNode[V]) {
	node.prev.next = node.next
	node.next.prev = node.prev
}
