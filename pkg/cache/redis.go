package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis keys for cache storage.
const (
	// RedisKeyNames is the set of existing cache names.
	RedisKeyNames = "civicsense:caches"

	// RedisKeyPrefix prefixes the hash holding one cache's entries.
	RedisKeyPrefix = "civicsense:cache:"
)

// RedisStorage stores each named cache as a Redis hash.
// Several gateway instances pointed at the same Redis share their caches.
type RedisStorage struct {
	redis *redis.Client
}

// NewRedisStorage creates a storage backed by Redis.
func NewRedisStorage(redisClient *redis.Client) *RedisStorage {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStorage{
		redis: redisClient,
	}
}

// Open registers the cache name and returns its store.
func (s *RedisStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("cache name cannot be empty")
	}

	if err := s.redis.SAdd(ctx, RedisKeyNames, name).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "open").Inc()
		return nil, fmt.Errorf("redis sadd: %w", err)
	}

	return &redisStore{
		redis: s.redis,
		name:  name,
		hash:  RedisKeyPrefix + name,
	}, nil
}

// Names lists the registered caches in sorted order.
func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, RedisKeyNames).Result()
	if err != nil {
		CacheErrors.WithLabelValues("redis", "names").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Drop deletes the cache hash and unregisters the name atomically.
func (s *RedisStorage) Drop(ctx context.Context, name string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, RedisKeyPrefix+name)
	pipe.SRem(ctx, RedisKeyNames, name)

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("redis", "drop").Inc()
		return fmt.Errorf("redis drop %s: %w", name, err)
	}
	return nil
}

type redisStore struct {
	redis *redis.Client
	name  string
	hash  string
}

func (c *redisStore) Name() string { return c.name }

func (c *redisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := c.redis.HGet(ctx, c.hash, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	entry, err := unmarshalEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues("redis", "get").Inc()
		return nil, err
	}
	return entry, nil
}

func (c *redisStore) Put(ctx context.Context, key string, entry *Entry) error {
	data, err := marshalEntry(entry)
	if err != nil {
		CacheErrors.WithLabelValues("redis", "put").Inc()
		return err
	}

	// Re-register the name in case the cache was dropped underneath us
	pipe := c.redis.TxPipeline()
	pipe.SAdd(ctx, RedisKeyNames, c.name)
	pipe.HSet(ctx, c.hash, key, data)

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("redis", "put").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (c *redisStore) Delete(ctx context.Context, key string) error {
	if err := c.redis.HDel(ctx, c.hash, key).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "delete").Inc()
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (c *redisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.redis.HKeys(ctx, c.hash).Result()
	if err != nil {
		CacheErrors.WithLabelValues("redis", "keys").Inc()
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
