// Package cache provides the shared block cache: a byte-budget LRU over
// decoded blocks with per-key coalescing of concurrent decodes.
package cache

import (
	"container/list"
	"expvar"
	"fmt"
	"sync"

	"github.com/INLOpen/dictbase/core"
	"golang.org/x/sync/singleflight"
)

// Key identifies a decoded block. ContainerID keeps blocks of different
// open containers apart when they share one cache.
type Key struct {
	ContainerID uint64
	Kind        core.BlockKind
	Index       int
}

func (k Key) flightKey() string {
	return fmt.Sprintf("%d-%d-%d", k.ContainerID, k.Kind, k.Index)
}

// cacheEntry holds the key and decoded block for a cache item.
type cacheEntry struct {
	key   Key
	block *core.DecodedBlock
}

// BlockCache is an LRU cache bounded by decoded byte size rather than
// entry count, since block sizes vary widely. Decoded blocks are
// immutable once inserted; callers receive shared read-only views.
type BlockCache struct {
	mu       sync.Mutex
	capacity int64 // byte budget; <= 0 disables retention
	used     int64
	lruList  *list.List
	items    map[Key]*list.Element

	// group coalesces concurrent decodes of the same missing block onto a
	// single execution; late arrivals await the published result.
	group singleflight.Group

	// Metrics
	hits   *expvar.Int
	misses *expvar.Int
}

// New creates a BlockCache with the given byte budget.
func New(capacityBytes int64) *BlockCache {
	return &BlockCache{
		capacity: capacityBytes,
		lruList:  list.New(),
		items:    make(map[Key]*list.Element),
	}
}

// SetMetrics attaches hit/miss counters.
func (c *BlockCache) SetMetrics(hits, misses *expvar.Int) {
	c.hits = hits
	c.misses = misses
}

// GetOrDecode returns the cached block for key, or runs decode to produce
// it. Decoding happens outside the cache lock; concurrent callers for the
// same key share one decode. The returned block must be treated as
// read-only.
func (c *BlockCache) GetOrDecode(key Key, decode func() (*core.DecodedBlock, error)) (*core.DecodedBlock, error) {
	if block, ok := c.lookup(key); ok {
		if c.hits != nil {
			c.hits.Add(1)
		}
		return block, nil
	}
	if c.misses != nil {
		c.misses.Add(1)
	}

	v, err, _ := c.group.Do(key.flightKey(), func() (interface{}, error) {
		// A racing flight may have populated the entry while this caller
		// was waiting to be scheduled.
		if block, ok := c.lookup(key); ok {
			return block, nil
		}
		block, err := decode()
		if err != nil {
			return nil, err
		}
		c.insert(key, block)
		return block, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.DecodedBlock), nil
}

func (c *BlockCache) lookup(key Key) (*core.DecodedBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*cacheEntry).block, true
	}
	return nil, false
}

// insert adds a freshly decoded block and restores the byte budget by
// strict LRU eviction. If the block alone exceeds the budget it is
// evicted immediately: the caller still gets it, the cache does not
// retain it.
func (c *BlockCache) insert(key Key, block *core.DecodedBlock) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return
	}
	elem := c.lruList.PushFront(&cacheEntry{key: key, block: block})
	c.items[key] = elem
	c.used += block.Size()
	for c.used > c.capacity {
		c.evict()
	}
}

// evict removes the least-recently-used entry. Must be called with c.mu held.
func (c *BlockCache) evict() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	entry := c.lruList.Remove(elem).(*cacheEntry)
	delete(c.items, entry.key)
	c.used -= entry.block.Size()
}

// Len returns the current number of cached blocks.
func (c *BlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Used returns the decoded bytes currently retained.
func (c *BlockCache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Clear drops all entries, e.g. when the owning container closes.
func (c *BlockCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lruList = list.New()
	c.items = make(map[Key]*list.Element)
	c.used = 0
	if c.hits != nil {
		c.hits.Set(0)
	}
	if c.misses != nil {
		c.misses.Set(0)
	}
}

// EvictContainer drops every entry belonging to one container.
func (c *BlockCache) EvictContainer(containerID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lruList.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*cacheEntry)
		if entry.key.ContainerID == containerID {
			c.lruList.Remove(elem)
			delete(c.items, entry.key)
			c.used -= entry.block.Size()
		}
		elem = next
	}
}
