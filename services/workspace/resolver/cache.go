// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/molstack/molstack/services/workspace/molecule"
)

// DefaultCacheSize is the default number of memoized prefix results.
const DefaultCacheSize = 5000

// Cache is a thread-safe LRU of resolved stack prefixes, keyed by the
// joined layer-ID path. Entries are never invalidated: layers are
// immutable once created and the base molecule never changes during a
// resolver's lifetime, so a memoized result stays correct until it is
// evicted for space.
//
// Thread Safety: All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	// Stats (atomic for lock-free reads)
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key   string
	value *molecule.SparseMolecule
}

// NewCache creates a prefix cache with the given capacity. Non-positive
// capacities fall back to DefaultCacheSize.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the memoized molecule for a prefix key and marks it most
// recently used.
func (c *Cache) Get(key string) (*molecule.SparseMolecule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*cacheEntry).value, true
	}

	c.misses.Add(1)
	return nil, false
}

// Add memoizes a resolved prefix, evicting the least recently used
// entry when full. Races on the same key converge: resolution is
// deterministic, so last-write-wins costs only the duplicated work.
func (c *Cache) Add(key string, value *molecule.SparseMolecule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, value: value})
	c.items[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
			c.evictions.Add(1)
		}
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry. Stats are preserved.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}
