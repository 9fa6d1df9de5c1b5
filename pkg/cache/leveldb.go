package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB key layout:
//
//	n:<name>              cache registration (empty value)
//	e:<name>\x00<key>     JSON-encoded Entry
const (
	levelNamePrefix  = "n:"
	levelEntryPrefix = "e:"
	levelSeparator   = "\x00"
)

// LevelStorage stores caches in a LevelDB database on disk.
type LevelStorage struct {
	db *leveldb.DB
}

// OpenLevelStorage opens (or creates) the database at path.
func OpenLevelStorage(path string) (*LevelStorage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelStorage{db: db}, nil
}

// Close releases the database.
func (s *LevelStorage) Close() error {
	return s.db.Close()
}

// Open registers the cache name and returns its store.
func (s *LevelStorage) Open(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name cannot be empty")
	}

	if err := s.db.Put([]byte(levelNamePrefix+name), nil, nil); err != nil {
		CacheErrors.WithLabelValues("leveldb", "open").Inc()
		return nil, fmt.Errorf("leveldb put: %w", err)
	}

	return &levelStore{
		db:     s.db,
		name:   name,
		prefix: []byte(levelEntryPrefix + name + levelSeparator),
	}, nil
}

// Names lists the registered caches in key order.
func (s *LevelStorage) Names(_ context.Context) ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(levelNamePrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte(levelNamePrefix))))
	}
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("leveldb", "names").Inc()
		return nil, fmt.Errorf("leveldb iterate names: %w", err)
	}
	return names, nil
}

// Drop deletes every entry of the cache and its registration in one batch.
func (s *LevelStorage) Drop(_ context.Context, name string) error {
	batch := new(leveldb.Batch)

	it := s.db.NewIterator(util.BytesPrefix([]byte(levelEntryPrefix+name+levelSeparator)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("leveldb", "drop").Inc()
		return fmt.Errorf("leveldb iterate %s: %w", name, err)
	}

	batch.Delete([]byte(levelNamePrefix + name))
	if err := s.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("leveldb", "drop").Inc()
		return fmt.Errorf("leveldb drop %s: %w", name, err)
	}
	return nil
}

type levelStore struct {
	db     *leveldb.DB
	name   string
	prefix []byte
}

func (c *levelStore) Name() string { return c.name }

func (c *levelStore) entryKey(key string) []byte {
	return append(append([]byte(nil), c.prefix...), key...)
}

func (c *levelStore) Get(_ context.Context, key string) (*Entry, error) {
	data, err := c.db.Get(c.entryKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("leveldb", "get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}

	entry, err := unmarshalEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues("leveldb", "get").Inc()
		return nil, err
	}
	return entry, nil
}

func (c *levelStore) Put(_ context.Context, key string, entry *Entry) error {
	data, err := marshalEntry(entry)
	if err != nil {
		CacheErrors.WithLabelValues("leveldb", "put").Inc()
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(levelNamePrefix+c.name), nil)
	batch.Put(c.entryKey(key), data)
	if err := c.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("leveldb", "put").Inc()
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (c *levelStore) Delete(_ context.Context, key string) error {
	if err := c.db.Delete(c.entryKey(key), nil); err != nil {
		CacheErrors.WithLabelValues("leveldb", "delete").Inc()
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

func (c *levelStore) Keys(_ context.Context) ([]string, error) {
	it := c.db.NewIterator(util.BytesPrefix(c.prefix), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), c.prefix)))
	}
	if err := it.Error(); err != nil {
		CacheErrors.WithLabelValues("leveldb", "keys").Inc()
		return nil, fmt.Errorf("leveldb iterate %s: %w", c.name, err)
	}
	return keys, nil
}
