package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStorage keeps caches in process memory.
// Store handles resolve their cache by name on every call, so a handle held
// across Drop writes into a freshly registered cache like the Redis and
// LevelDB backends do.
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]*Entry
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		caches: make(map[string]map[string]*Entry),
	}
}

// Open returns the named cache, creating it if needed.
func (s *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[name]; !ok {
		s.caches[name] = make(map[string]*Entry)
	}
	return &memoryStore{storage: s, name: name}, nil
}

// Names lists the existing caches in sorted order.
func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Drop deletes the named cache.
func (s *MemoryStorage) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.caches, name)
	s.mu.Unlock()
	return nil
}

type memoryStore struct {
	storage *MemoryStorage
	name    string
}

func (c *memoryStore) Name() string { return c.name }

func (c *memoryStore) Get(_ context.Context, key string) (*Entry, error) {
	c.storage.mu.RLock()
	entry, ok := c.storage.caches[c.name][key]
	c.storage.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	return entry.Clone(), nil
}

// Put registers the cache again if it was dropped.
func (c *memoryStore) Put(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	c.storage.mu.Lock()
	defer c.storage.mu.Unlock()

	entries, ok := c.storage.caches[c.name]
	if !ok {
		entries = make(map[string]*Entry)
		c.storage.caches[c.name] = entries
	}
	entries[key] = entry.Clone()
	return nil
}

func (c *memoryStore) Delete(_ context.Context, key string) error {
	c.storage.mu.Lock()
	delete(c.storage.caches[c.name], key)
	c.storage.mu.Unlock()
	return nil
}

func (c *memoryStore) Keys(_ context.Context) ([]string, error) {
	c.storage.mu.RLock()
	defer c.storage.mu.RUnlock()

	entries := c.storage.caches[c.name]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
