package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process LRU cache with per-entry TTL.
type MemoryCache struct {
	mu       sync.Mutex
	maxItems int
	items    map[string]*list.Element
	order    *list.List // front = most recent
	stats    Stats
}

type memoryEntry struct {
	key string
	entry
}

// NewMemoryCache creates a cache bounded to maxItems entries. Zero or
// negative means 1024.
func NewMemoryCache(maxItems int) *MemoryCache {
	if maxItems <= 0 {
		maxItems = 1024
	}
	return &MemoryCache{
		maxItems: maxItems,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}
	me := elem.Value.(*memoryEntry)
	if me.expired() {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false, nil
	}
	c.order.MoveToFront(elem)
	c.stats.Hits++
	return me.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		me := elem.Value.(*memoryEntry)
		me.value = value
		me.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		c.stats.Sets++
		return nil
	}

	elem := c.order.PushFront(&memoryEntry{key: key, entry: entry{value: value, expiresAt: expiresAt}})
	c.items[key] = elem
	c.stats.Sets++

	for len(c.items) > c.maxItems {
		c.removeLocked(c.order.Back())
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = int64(len(c.items))
	return s
}

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	me := elem.Value.(*memoryEntry)
	delete(c.items, me.key)
	c.order.Remove(elem)
}
