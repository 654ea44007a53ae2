package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStorage.
const DefaultRedisPrefix = "offline"

// RedisStorage persists buckets in Redis.
//
// Layout:
//
//	<prefix>:buckets        sorted set of bucket names scored by creation sequence
//	<prefix>:buckets:seq    creation sequence counter
//	<prefix>:bucket:<name>  hash of Key.String() -> JSON Entry
type RedisStorage struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStorage creates a Redis backed storage. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisStorage(redisClient *redis.Client, prefix string) *RedisStorage {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStorage) registryKey() string { return s.prefix + ":buckets" }

func (s *RedisStorage) sequenceKey() string { return s.prefix + ":buckets:seq" }

func (s *RedisStorage) bucketKey(name string) string { return s.prefix + ":bucket:" + name }

// Open returns the named bucket, registering it if absent.
func (s *RedisStorage) Open(ctx context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	_, err := s.redis.ZScore(ctx, s.registryKey(), name).Result()
	switch {
	case err == nil:
		return s.bucket(name), nil
	case !errors.Is(err, redis.Nil):
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis zscore: %w", err)
	}

	seq, err := s.redis.Incr(ctx, s.sequenceKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis incr: %w", err)
	}

	// NX keeps the original position if another process registered it first.
	if err := s.redis.ZAddNX(ctx, s.registryKey(), redis.Z{Score: float64(seq), Member: name}).Err(); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis zadd: %w", err)
	}

	return s.bucket(name), nil
}

func (s *RedisStorage) bucket(name string) *redisBucket {
	return &redisBucket{storage: s, name: name}
}

// Match looks key up in every bucket in creation order.
func (s *RedisStorage) Match(ctx context.Context, key Key) (*Entry, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		entry, err := s.bucket(name).Match(ctx, key)
		if err == nil {
			CacheHits.WithLabelValues(name).Inc()
			return entry, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}

	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// Names lists bucket names in creation order.
func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.redis.ZRange(ctx, s.registryKey(), 0, -1).Result()
	if err != nil {
		CacheErrors.WithLabelValues("names").Inc()
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return names, nil
}

// Delete removes the bucket hash and its registry entry in one transaction.
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.bucketKey(name))
		removed = pipe.ZRem(ctx, s.registryKey(), name)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis delete bucket %q: %w", name, err)
	}
	return removed.Val() > 0, nil
}

type redisBucket struct {
	storage *RedisStorage
	name    string
}

func (b *redisBucket) Name() string { return b.name }

func (b *redisBucket) Match(ctx context.Context, key Key) (*Entry, error) {
	data, err := b.storage.redis.HGet(ctx, b.storage.bucketKey(b.name), key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

func (b *redisBucket) Put(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	return b.PutAll(ctx, map[Key]*Entry{key: entry})
}

// PutAll writes every entry with a single HSET inside MULTI/EXEC, so readers
// never observe a partial batch.
func (b *redisBucket) PutAll(ctx context.Context, entries map[Key]*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(entries))
	for key, entry := range entries {
		if entry == nil {
			return fmt.Errorf("cache entry for %s cannot be nil", key)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		fields[key.String()] = data
	}

	_, err := b.storage.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.storage.bucketKey(b.name), fields)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}

	EntriesWritten.WithLabelValues(b.name).Add(float64(len(entries)))
	return nil
}

func (b *redisBucket) Keys(ctx context.Context) ([]Key, error) {
	fields, err := b.storage.redis.HKeys(ctx, b.storage.bucketKey(b.name)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}

	keys := make([]Key, 0, len(fields))
	for _, field := range fields {
		key, ok := ParseKey(field)
		if !ok {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
