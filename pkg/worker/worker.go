package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/devhammed/offline-cache/pkg/cache"
	"github.com/devhammed/offline-cache/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrInstallFailed is returned when any fundamental resource cannot be cached.
var ErrInstallFailed = errors.New("install failed")

// Fetcher performs network requests. *client.Client and *http.Client both
// satisfy it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Worker is one version of the offline cache worker.
type Worker struct {
	config  Config
	storage cache.Storage
	fetcher Fetcher
	logger  zerolog.Logger
	state   atomic.Int32

	// writes is held shared by cache writes and exclusively by retire
	writes sync.RWMutex

	// background tracks detached network fetches and cache writes
	background sync.WaitGroup
}

// New creates a worker. The configuration is copied.
func New(cfg Config, storage cache.Storage, fetcher Fetcher) (*Worker, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidConfig)
	}

	validated, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	return &Worker{
		config:  validated,
		storage: storage,
		fetcher: fetcher,
		logger: logging.NewLogger("offline-worker").With().
			Str("version", validated.Version).
			Logger(),
	}, nil
}

// Config returns a copy of the worker configuration.
func (w *Worker) Config() Config {
	return w.config.clone()
}

// Version returns the worker's cache generation tag.
func (w *Worker) Version() string {
	return w.config.Version
}

// Install pre-caches every fundamental into <version>fundamentals. Resources
// are fetched concurrently and written in one atomic batch; if any fetch fails
// or returns a non-2xx status nothing is written and ErrInstallFailed is
// returned.
func (w *Worker) Install(ctx context.Context) error {
	w.logger.Info().
		Int("fundamentals", len(w.config.Fundamentals)).
		Msg("Install in progress")

	bucket, err := w.storage.Open(ctx, w.config.FundamentalsBucket())
	if err != nil {
		return w.installFailed(fmt.Errorf("open bucket: %w", err))
	}

	var mu sync.Mutex
	entries := make(map[cache.Key]*cache.Entry, len(w.config.Fundamentals))

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range w.config.Fundamentals {
		path := path
		g.Go(func() error {
			key, entry, err := w.fetchFundamental(gctx, path)
			if err != nil {
				return err
			}
			mu.Lock()
			entries[key] = entry
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return w.installFailed(err)
	}

	if err := bucket.PutAll(ctx, entries); err != nil {
		return w.installFailed(fmt.Errorf("store fundamentals: %w", err))
	}

	installTotal.WithLabelValues("success").Inc()
	w.logger.Info().
		Str("bucket", bucket.Name()).
		Int("entries", len(entries)).
		Msg("Install completed")

	return nil
}

func (w *Worker) fetchFundamental(ctx context.Context, path string) (cache.Key, *cache.Entry, error) {
	u, err := w.config.resolve(path)
	if err != nil {
		return cache.Key{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cache.Key{}, nil, fmt.Errorf("create request for %s: %w", u, err)
	}

	resp, err := w.fetcher.Do(req)
	if err != nil {
		return cache.Key{}, nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cache.Key{}, nil, fmt.Errorf("fetch %s: unexpected status %d", u, resp.StatusCode)
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return cache.Key{}, nil, fmt.Errorf("fetch %s: %w", u, err)
	}

	return cache.NewKey(req), entry, nil
}

func (w *Worker) installFailed(err error) error {
	installTotal.WithLabelValues("failed").Inc()
	w.logger.Error().Err(err).Msg("Install failed")
	return fmt.Errorf("%w: %w", ErrInstallFailed, err)
}

// Intercepts reports whether the worker answers req. Non-GET requests and
// URLs matching an excluded pattern belong to the default network path.
func (w *Worker) Intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	u := req.URL.String()
	for _, pattern := range w.config.ExcludedURLPatterns {
		if pattern != "" && strings.Contains(u, pattern) {
			return false
		}
	}
	return true
}

// Fetch answers an intercepted request. A cached entry is returned
// immediately while a detached network fetch refreshes the pages bucket.
// Without a cached entry the network response is returned, or the fallback
// page when the network fails. The returned response is never nil.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) *http.Response {
	key := cache.NewKey(req)
	logger := w.logger.With().Str("url", key.URL).Logger()

	cached, err := w.storage.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache lookup failed, treating as miss")
		}
		cached = nil
	}

	if cached != nil {
		logger.Debug().Str("source", "cache").Msg("Fetch event")
		fetchTotal.WithLabelValues("cache").Inc()

		detached := context.WithoutCancel(ctx)
		w.goBackground(func() {
			resp, err := w.network(detached, req, key)
			if err != nil {
				logger.Debug().Err(err).Msg("Background refresh failed")
				return
			}
			resp.Body.Close()
		})

		return cache.EntryToResponse(cached, req)
	}

	logger.Debug().Str("source", "network").Msg("Fetch event")

	resp, err := w.network(ctx, req, key)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Err(err).Msg("Request aborted by caller")
		} else {
			logger.Info().Err(err).Msg("Fetch request failed in both cache and network")
		}
		fetchTotal.WithLabelValues("fallback").Inc()
		return FallbackResponse(req)
	}

	fetchTotal.WithLabelValues("network").Inc()
	return resp
}

// network fetches req and schedules the response copy for storage.
func (w *Worker) network(ctx context.Context, req *http.Request, key cache.Key) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.Body = http.NoBody
	out.ContentLength = 0
	// The stored copy must be a full response, not a 304 or a range
	for _, h := range []string{"If-None-Match", "If-Modified-Since", "If-Range", "Range"} {
		out.Header.Del(h)
	}

	resp, err := w.fetcher.Do(out)
	if err != nil {
		return nil, err
	}

	if !w.shouldStore(key, resp) {
		cacheStoreTotal.WithLabelValues("skipped").Inc()
		return resp, nil
	}

	// Bodies are single-read streams, take the copy before handing it out
	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, err
	}

	storeCtx := context.WithoutCancel(ctx)
	w.goBackground(func() {
		w.store(storeCtx, key, entry)
	})

	return resp, nil
}

func (w *Worker) shouldStore(key cache.Key, resp *http.Response) bool {
	for _, scheme := range w.config.SkipStoreSchemes {
		if scheme != "" && strings.HasPrefix(key.URL, scheme) {
			return false
		}
	}
	return cache.IsCacheable(resp)
}

// store writes entry to the pages bucket. Failures are logged only.
func (w *Worker) store(ctx context.Context, key cache.Key, entry *cache.Entry) {
	logger := w.logger.With().
		Str("url", key.URL).
		Str("bucket", w.config.PagesBucket()).
		Logger()

	// The state check and the write happen under one read lock so retire
	// cannot slip between them and let a replaced worker recreate its bucket.
	w.writes.RLock()
	if w.State() == StateRedundant {
		w.writes.RUnlock()
		cacheStoreTotal.WithLabelValues("skipped").Inc()
		return
	}

	bucket, err := w.storage.Open(ctx, w.config.PagesBucket())
	if err == nil {
		err = bucket.Put(ctx, key, entry)
	}
	w.writes.RUnlock()

	if err != nil {
		cacheStoreTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("Failed to store fetch response in cache")
		return
	}

	cacheStoreTotal.WithLabelValues("stored").Inc()
	logger.Debug().Msg("Fetch response stored in cache")
}

func (w *Worker) goBackground(fn func()) {
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		fn()
	}()
}

// Wait blocks until every background fetch and cache write has settled.
func (w *Worker) Wait() {
	w.background.Wait()
}

// ActivateResult reports the outcome of stale bucket deletion.
type ActivateResult struct {
	// Deleted lists removed buckets in name order
	Deleted []string

	// Failed maps bucket names to their deletion error
	Failed map[string]error
}

// Activate deletes every bucket whose name does not start with the worker
// version. Deletions run concurrently; a failed deletion is logged and
// reported in the result without stopping the others. Only a failure to list
// buckets is returned as an error.
func (w *Worker) Activate(ctx context.Context) (ActivateResult, error) {
	w.logger.Info().Msg("Activate in progress")

	result := ActivateResult{Failed: make(map[string]error)}

	names, err := w.storage.Names(ctx)
	if err != nil {
		return result, fmt.Errorf("list buckets: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, name := range names {
		if strings.HasPrefix(name, w.config.Version) {
			continue
		}
		name := name
		g.Go(func() error {
			_, err := w.storage.Delete(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bucketsDeletedTotal.WithLabelValues("failed").Inc()
				w.logger.Warn().Err(err).Str("bucket", name).Msg("Failed to delete stale bucket")
				result.Failed[name] = err
				return nil
			}
			bucketsDeletedTotal.WithLabelValues("deleted").Inc()
			result.Deleted = append(result.Deleted, name)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Deleted)

	w.logger.Info().
		Strs("deleted", result.Deleted).
		Int("failed", len(result.Failed)).
		Msg("Activate completed")

	return result, nil
}
