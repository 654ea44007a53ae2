package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Bucket is a named store mapping request keys to responses.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// Match returns the entry stored for key, or ErrCacheMiss.
	Match(ctx context.Context, key Key) (*Entry, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key Key, entry *Entry) error

	// PutAll stores all entries atomically: either every entry becomes
	// visible or none does.
	PutAll(ctx context.Context, entries map[Key]*Entry) error

	// Keys lists the keys stored in the bucket.
	Keys(ctx context.Context) ([]Key, error)
}

// Storage is the set of buckets for an origin.
type Storage interface {
	// Open returns the named bucket, creating it if absent.
	Open(ctx context.Context, name string) (Bucket, error)

	// Match looks key up in every bucket in creation order and returns the
	// first hit, or ErrCacheMiss.
	Match(ctx context.Context, key Key) (*Entry, error)

	// Names lists bucket names in creation order.
	Names(ctx context.Context) ([]string, error)

	// Delete removes the named bucket and all of its entries. It reports
	// whether the bucket existed.
	Delete(ctx context.Context, name string) (bool, error)
}
