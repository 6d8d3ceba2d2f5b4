// Package cache provides in-memory function caches keyed by generator cache
// keys.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// MapCache is an unbounded cache. It is safe for concurrent use.
type MapCache struct {
	mu    sync.RWMutex
	items map[string][]model.FunctionItem
}

// NewMapCache creates an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{items: make(map[string][]model.FunctionItem)}
}

// Get returns the functions stored under key.
func (c *MapCache) Get(_ context.Context, key string) ([]model.FunctionItem, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	functions, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]model.FunctionItem(nil), functions...), true, nil
}

// Set stores functions under key. Later writes win.
func (c *MapCache) Set(_ context.Context, key string, functions []model.FunctionItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = append([]model.FunctionItem(nil), functions...)
	return nil
}

// Len returns the number of stored keys.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// LRUCache is a size-bounded cache with optional expiry.
type LRUCache struct {
	lru *expirable.LRU[string, []model.FunctionItem]
}

// NewLRUCache creates a cache holding at most size keys, each for at most
// ttl. A zero ttl disables expiry.
func NewLRUCache(size int, ttl time.Duration) (*LRUCache, error) {
	if size <= 0 {
		return nil, model.Validationf("cache size must be positive, got %d", size)
	}
	if ttl < 0 {
		return nil, model.Validationf("cache ttl must not be negative, got %s", ttl)
	}
	return &LRUCache{
		lru: expirable.NewLRU[string, []model.FunctionItem](size, nil, ttl),
	}, nil
}

// Get returns the functions stored under key.
func (c *LRUCache) Get(_ context.Context, key string) ([]model.FunctionItem, bool, error) {
	functions, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]model.FunctionItem(nil), functions...), true, nil
}

// Set stores functions under key, evicting the least recently used key when
// full.
func (c *LRUCache) Set(_ context.Context, key string, functions []model.FunctionItem) error {
	c.lru.Add(key, append([]model.FunctionItem(nil), functions...))
	return nil
}

// Len returns the number of stored keys.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}
