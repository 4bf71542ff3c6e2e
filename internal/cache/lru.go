// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package cache

import "sync"

// lruEntry is a node in the doubly-linked recency list.
type lruEntry struct {
	key   string
	value []byte
	prev  *lruEntry
	next  *lruEntry
}

// lruCache is a thread-safe fixed-capacity LRU holding raw cache
// envelopes. It keeps hot keys out of Badger during a pass; expiry is
// the envelope's job, not the LRU's.
//
// A doubly-linked list tracks recency and a map gives O(1) lookups.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lruEntry

	// head.next is most recently used, tail.prev is least recently used
	head *lruEntry
	tail *lruEntry
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 1024
	}
	c := &lruCache{
		capacity: capacity,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the stored bytes and marks the key most recently used.
func (c *lruCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(entry)
	return entry.value, true
}

// Add inserts or updates a key, evicting the least recently used entry
// when over capacity.
func (c *lruCache) Add(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		entry.value = value
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry{key: key, value: value}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove deletes a key. Removing an absent key is a no-op.
func (c *lruCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		c.removeEntry(entry)
	}
}

// Len returns the current number of entries.
func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// list helpers, called with the lock held

func (c *lruCache) addToFront(entry *lruEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *lruCache) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *lruCache) removeEntry(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

func (c *lruCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
