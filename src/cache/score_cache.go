// Package cache provides a small thread-safe LRU with TTL used to memoize
// relevance annotations within a scoring epoch. Scores are recency-dependent,
// so entries expire quickly and are keyed by (interaction id, epoch) — never
// held as a silently stale global.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// ScoreCache is a thread-safe LRU of relevance annotations with TTL.
type ScoreCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	lru      *list.List
	clock    func() time.Time
}

type scoreEntry struct {
	key        string
	annotation model.RelevanceAnnotation
	expiresAt  time.Time
}

// NewScoreCache creates a cache with the given capacity and TTL.
func NewScoreCache(capacity int, ttl time.Duration) *ScoreCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ScoreCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
		clock:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (c *ScoreCache) WithClock(clock func() time.Time) *ScoreCache {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Key builds the cache key for one interaction within a scoring epoch.
// The epoch changes with the engine's clock granularity, so a new epoch
// naturally invalidates all prior scores.
func Key(interactionID int64, epoch string) string {
	return fmt.Sprintf("%d@%s", interactionID, epoch)
}

// Get returns the cached annotation if present and fresh.
func (c *ScoreCache) Get(key string) (model.RelevanceAnnotation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return model.RelevanceAnnotation{}, false
	}
	ent := elem.Value.(*scoreEntry)
	if c.clock().After(ent.expiresAt) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return model.RelevanceAnnotation{}, false
	}
	c.lru.MoveToFront(elem)
	return ent.annotation, true
}

// Set stores an annotation, evicting the least recently used entry when the
// cache is full.
func (c *ScoreCache) Set(key string, annotation model.RelevanceAnnotation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		ent := elem.Value.(*scoreEntry)
		ent.annotation = annotation
		ent.expiresAt = expiresAt
		return
	}

	elem := c.lru.PushFront(&scoreEntry{key: key, annotation: annotation, expiresAt: expiresAt})
	c.items[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*scoreEntry).key)
		}
	}
}

// Clear removes all entries.
func (c *ScoreCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.lru.Init()
}

// Len returns the number of cached entries.
func (c *ScoreCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
