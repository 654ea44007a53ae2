// Package client provides the network side of the offline cache worker: an
// HTTP client that retries transport failures with backoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for network operations.
var (
	networkRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_network_requests_total",
		Help: "Total network requests by status code or error class",
	}, []string{"status"})

	networkRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offline_network_duration_seconds",
		Help:    "Network request duration in seconds including retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	networkRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_network_retries_total",
		Help: "Total number of network retry attempts",
	})

	networkRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_network_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retry attempts",
	})
)

// Client performs origin requests for the worker.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent when the request carries none
	UserAgent string

	// Timeout bounds a single attempt (0 disables it)
	Timeout time.Duration

	// Retry behaviour for transport failures
	Retry RetryConfig
}

// DefaultConfig returns a default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (got %v)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "network-client").Logger(),
	}, nil
}

// Do performs req, retrying transport failures. Any HTTP response, whatever
// its status, is returned as a success; only transport failures are errors.
// Requests with a body that cannot be replayed are attempted once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	startTime := time.Now()
	defer func() {
		networkRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	retry := c.config.Retry
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retry.MaxAttempts = 1
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing network request")

	var resp *http.Response
	err := retryWithBackoff(ctx, retry, c.logger, func() error {
		attempt := req
		if req.GetBody != nil && req.Body != nil && req.Body != http.NoBody {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("rewind request body: %w", err)
			}
			attempt = req.Clone(ctx)
			attempt.Body = body
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(attempt)
		if reqErr != nil {
			errClass := classifyError(ctx, reqErr)
			networkRequestsTotal.WithLabelValues(string(errClass)).Inc()
			return &FetchError{
				URL:        req.URL.String(),
				ErrorClass: errClass,
				Err:        reqErr,
			}
		}

		networkRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// classifyError categorizes a transport error.
func classifyError(ctx context.Context, err error) ErrorClass {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ErrorClassCanceled
	}
	return ErrorClassNetwork
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
