package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu      sync.RWMutex
	order   []string
	buckets map[string]*memoryBucket
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		buckets: make(map[string]*memoryBucket),
	}
}

// Open returns the named bucket, creating it if absent.
func (s *MemoryStorage) Open(_ context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}

	b := &memoryBucket{
		name:    name,
		entries: make(map[Key]*Entry),
	}
	s.buckets[name] = b
	s.order = append(s.order, name)
	return b, nil
}

// Match looks key up in every bucket in creation order.
func (s *MemoryStorage) Match(ctx context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	buckets := make([]*memoryBucket, 0, len(s.order))
	for _, name := range s.order {
		buckets = append(buckets, s.buckets[name])
	}
	s.mu.RUnlock()

	for _, b := range buckets {
		entry, err := b.Match(ctx, key)
		if err == nil {
			CacheHits.WithLabelValues(b.name).Inc()
			return entry, nil
		}
	}

	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// Names lists bucket names in creation order.
func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

// Delete removes the named bucket.
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[name]; !ok {
		return false, nil
	}
	delete(s.buckets, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

type memoryBucket struct {
	name    string
	mu      sync.RWMutex
	entries map[Key]*Entry
}

func (b *memoryBucket) Name() string { return b.name }

func (b *memoryBucket) Match(_ context.Context, key Key) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return entry.Clone(), nil
}

func (b *memoryBucket) Put(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	b.mu.Lock()
	b.entries[key] = entry.Clone()
	b.mu.Unlock()

	EntriesWritten.WithLabelValues(b.name).Inc()
	return nil
}

func (b *memoryBucket) PutAll(_ context.Context, entries map[Key]*Entry) error {
	for key, entry := range entries {
		if entry == nil {
			return fmt.Errorf("cache entry for %s cannot be nil", key)
		}
	}

	b.mu.Lock()
	for key, entry := range entries {
		b.entries[key] = entry.Clone()
	}
	b.mu.Unlock()

	EntriesWritten.WithLabelValues(b.name).Add(float64(len(entries)))
	return nil
}

func (b *memoryBucket) Keys(_ context.Context) ([]Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]Key, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys, nil
}
