// Command offline-proxy serves a website through the offline cache worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/devhammed/offline-cache/pkg/cache"
	"github.com/devhammed/offline-cache/pkg/client"
	"github.com/devhammed/offline-cache/pkg/footer"
	"github.com/devhammed/offline-cache/pkg/logging"
	"github.com/devhammed/offline-cache/pkg/metrics"
	"github.com/devhammed/offline-cache/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

type config struct {
	Port                string        `env:"PORT" envDefault:"8080"`
	OriginURL           string        `env:"ORIGIN_URL,required"`
	Version             string        `env:"CACHE_VERSION" envDefault:"v6.0.0"`
	Fundamentals        []string      `env:"FUNDAMENTALS" envSeparator:","`
	ExcludedURLPatterns []string      `env:"EXCLUDED_URL_PATTERNS" envSeparator:","`
	RedisURL            string        `env:"REDIS_URL"`
	RedisPrefix         string        `env:"REDIS_PREFIX" envDefault:"offline"`
	UserAgent           string        `env:"USER_AGENT" envDefault:"offline-cache/1.0"`
	FetchTimeout        time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	FetchAttempts       int           `env:"FETCH_ATTEMPTS" envDefault:"2"`
	InstallRetry        time.Duration `env:"INSTALL_RETRY_INTERVAL" envDefault:"1m"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty           bool          `env:"LOG_PRETTY" envDefault:"false"`
	StampCopyright      bool          `env:"STAMP_COPYRIGHT" envDefault:"true"`

	origin *url.URL
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("offline-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open cache storage")
	}
	defer closeStorage()

	fetcher, err := newFetcher(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create network client")
	}

	reg := worker.NewRegistration()
	handler := newServer(cfg, reg)

	go registerUntilActive(ctx, cfg, reg, storage, fetcher)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", srv.Addr).Msg("Failed to listen")
	}

	logger.Info().
		Str("addr", srv.Addr).
		Str("origin", cfg.origin.String()).
		Str("version", cfg.Version).
		Msg("Starting offline proxy")

	if err := serve(ctx, srv, ln, reg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Offline proxy stopped")
}

// serve runs srv on ln until ctx ends, then drains in-flight requests before
// waiting for the active worker's background cache writes.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, reg *worker.Registration, logger zerolog.Logger) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Server shutdown failed")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; handlers may still be running
	<-drained

	if w := reg.Active(); w != nil {
		w.Wait()
	}
	return nil
}

// loadConfig reads the configuration from the process environment.
func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return finalizeConfig(cfg)
}

// loadConfigFrom reads the configuration from environ instead of the process.
func loadConfigFrom(environ map[string]string) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return finalizeConfig(cfg)
}

func finalizeConfig(cfg config) (config, error) {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		return config{}, fmt.Errorf("parse ORIGIN_URL: %w", err)
	}
	if !origin.IsAbs() || origin.Host == "" {
		return config{}, fmt.Errorf("ORIGIN_URL must be an absolute URL (got %q)", cfg.OriginURL)
	}
	cfg.origin = origin

	if cfg.Fundamentals == nil {
		cfg.Fundamentals = worker.DefaultFundamentals
	}
	if cfg.ExcludedURLPatterns == nil {
		cfg.ExcludedURLPatterns = worker.DefaultExcludedURLPatterns
	}
	return cfg, nil
}

func (cfg config) workerConfig() worker.Config {
	wc := worker.DefaultConfig(cfg.origin)
	wc.Version = cfg.Version
	wc.Fundamentals = cfg.Fundamentals
	wc.ExcludedURLPatterns = cfg.ExcludedURLPatterns
	return wc
}

// openStorage connects to Redis when REDIS_URL is set, otherwise buckets
// live in memory for the life of the process.
func openStorage(ctx context.Context, cfg config) (cache.Storage, func(), error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, using in-memory cache storage")
		return cache.NewMemoryStorage(), func() {}, nil
	}

	opts, err := redisOptions(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")

	return cache.NewRedisStorage(redisClient, cfg.RedisPrefix), func() { redisClient.Close() }, nil
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func newFetcher(cfg config) (*client.Client, error) {
	cc := client.DefaultConfig(cfg.UserAgent)
	cc.Timeout = cfg.FetchTimeout
	cc.Retry.MaxAttempts = cfg.FetchAttempts
	return client.New(cc)
}

// registerUntilActive installs the configured worker, retrying on failure
// until it activates or ctx ends. Until then requests pass straight through.
func registerUntilActive(ctx context.Context, cfg config, reg *worker.Registration, storage cache.Storage, fetcher worker.Fetcher) {
	logger := logging.NewLogger("offline-proxy")

	for {
		w, err := worker.New(cfg.workerConfig(), storage, fetcher)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid worker configuration")
			return
		}

		err = reg.Register(ctx, w)
		if err == nil {
			return
		}

		logger.Warn().
			Err(err).
			Dur("retry_in", cfg.InstallRetry).
			Msg("Worker registration failed, serving without offline cache")

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.InstallRetry):
		}
	}
}

// newServer wires the worker in front of a reverse proxy to the origin.
func newServer(cfg config, reg *worker.Registration) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(cfg.origin)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = cfg.origin.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Origin request failed")
		w.WriteHeader(http.StatusBadGateway)
	}

	var modify worker.ResponseModifier
	if cfg.StampCopyright {
		modify = footer.NewTransformer().ModifyResponse
		proxy.ModifyResponse = modify
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(reg))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", worker.Handler(reg, proxy, modify))
	return mux
}

func healthHandler(reg *worker.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		active := reg.Active()
		if active == nil {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "OK (no active worker)")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK (%s %s)", active.Version(), active.State())
	}
}
