package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig("offline-cache-test/1.0")
	cfg.Retry = fastRetryConfig(3)
	return cfg
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("TestApp/1.0.0"),
			expectError: false,
		},
		{
			name: "empty user agent",
			config: Config{
				Retry: DefaultRetryConfig(),
			},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "zero attempts",
			config: Config{
				UserAgent: "TestApp/1.0.0",
			},
			expectError: true,
			errorMsg:    "max_attempts must be >= 1",
		},
		{
			name: "negative timeout",
			config: Config{
				UserAgent: "TestApp/1.0.0",
				Timeout:   -time.Second,
				Retry:     DefaultRetryConfig(),
			},
			expectError: true,
			errorMsg:    "timeout must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error = %q, want containing %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("New returned nil client")
			}
		})
	}
}

func TestClient_Get_Success(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<h1>home</h1>"))
	}))
	defer server.Close()

	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := c.Get(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<h1>home</h1>" {
		t.Errorf("body = %q", body)
	}
	if got := userAgent.Load(); got != "offline-cache-test/1.0" {
		t.Errorf("User-Agent = %v", got)
	}
}

func TestClient_Do_KeepsCallerUserAgent(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
	}))
	defer server.Close()

	c, _ := New(testConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("User-Agent", "Browser/1.0")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if got := userAgent.Load(); got != "Browser/1.0" {
		t.Errorf("User-Agent = %v, want Browser/1.0", got)
	}
}

func TestClient_Do_ServerErrorIsNotAnError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := New(testConfig())
	resp, err := c.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestClient_Do_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := server.URL
	server.Close()

	c, _ := New(testConfig())
	_, err := c.Get(context.Background(), unreachable)
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("errors.As(*FetchError) failed for %v", err)
	}
	if fetchErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want network", fetchErr.ErrorClass)
	}
}

func TestClient_Do_Canceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, _ := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Get(ctx, server.URL)
	if classOf(err) != ErrorClassCanceled {
		t.Errorf("classOf(%v) = %q, want canceled", err, classOf(err))
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("canceled request should not be retried")
	}
}

func TestClient_Do_ReplaysBody(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if calls.Add(1) == 1 {
			// Drop the connection to force a transport error
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer does not support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, _ := New(testConfig())
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 || bodies[1] != "payload" {
		t.Errorf("server saw bodies %q, want payload twice", bodies)
	}
}
