// Package cache implements the bounded LRU lookup cache of spec.md §4.6: a
// capacity-bounded map from key to the virtual page and page count of its
// most recently known placement, plus a copy of the value, used to
// short-circuit the on-flash probe loop in Engine.Get/Set/Delete.
//
// It is backed by github.com/hashicorp/golang-lru/v2. That library's Peek
// does not touch recency, which implements the source behavior preserved
// by spec.md §9: a cache lookup is not itself an MRU promotion. Add does
// bump to MRU and evicts the LRU entry at capacity, implementing both the
// "add" and "update" operations of spec.md §4.6.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Capacity is the compile-time entry limit named by spec.md §4.6.
const Capacity = 1000

// Entry is what the cache remembers about a key's last known placement.
type Entry struct {
	VPage    uint64
	NumPages uint32
	Value    []byte
}

// Cache is a bounded LRU lookup cache keyed by the textual key.
type Cache struct {
	lru *lru.Cache[string, Entry]
}

// New creates a Cache with the given capacity. A capacity of 0 uses
// the package default.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = Capacity
	}
	l, err := lru.New[string, Entry](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is excluded above.
		panic(err)
	}
	return &Cache{lru: l}
}

// Lookup returns the cached entry for key, if any. It does not affect
// recency — a pure lookup is not a use for eviction purposes, matching the
// preserved source behavior documented in spec.md §9.
func (c *Cache) Lookup(key string) (Entry, bool) {
	return c.lru.Peek(key)
}

// Update replaces the cached entry for key, creating it if absent, and
// moves it to most-recently-used. This implements both spec.md §4.6's
// "update" (key exists) and "add" (key absent) operations — Add already
// has add-or-replace-and-bump semantics.
func (c *Cache) Update(key string, vpage uint64, numPages uint32, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	c.lru.Add(key, Entry{VPage: vpage, NumPages: numPages, Value: v})
}

// Add inserts a new entry, evicting the least-recently-used entry first if
// the cache is at capacity. Semantically identical to Update; kept as a
// distinct name to mirror spec.md §4.6's separate "add" operation.
func (c *Cache) Add(key string, vpage uint64, numPages uint32, value []byte) {
	c.Update(key, vpage, numPages, value)
}

// Remove evicts key, if present.
func (c *Cache) Remove(key string) {
	c.lru.Remove(key)
}

// Clean evicts every entry.
func (c *Cache) Clean() {
	c.lru.Purge()
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
