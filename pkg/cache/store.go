package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrEntryTooLarge indicates a response body exceeds the entry size limit
	ErrEntryTooLarge = errors.New("cache entry too large")
)

// Store is a single named cache.
type Store interface {
	// Name returns the generation tag of the cache.
	Name() string

	// Get returns the entry stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key string, entry *Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key currently stored.
	Keys(ctx context.Context) ([]string, error)
}

// Storage is the set of named caches.
type Storage interface {
	// Open returns the cache with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Store, error)

	// Names lists the existing caches.
	Names(ctx context.Context) ([]string, error)

	// Drop deletes a cache and all of its entries.
	Drop(ctx context.Context, name string) error
}

func marshalEntry(entry *Entry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry cannot be nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func unmarshalEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}
