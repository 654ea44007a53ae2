package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devhammed/offline-cache/pkg/cache"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateParsed, "parsed"},
		{StateInstalling, "installing"},
		{StateInstalled, "installed"},
		{StateActivating, "activating"},
		{StateActivated, "activated"},
		{StateRedundant, "redundant"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRegistration_Register(t *testing.T) {
	storage := cache.NewMemoryStorage()
	ctx := context.Background()
	reg := NewRegistration()

	if reg.Active() != nil {
		t.Fatal("new registration should have no active worker")
	}

	v1 := newTestWorker(t, "v1", storage, htmlFetcher(nil))
	if v1.State() != StateParsed {
		t.Errorf("initial state = %v, want parsed", v1.State())
	}
	if err := reg.Register(ctx, v1); err != nil {
		t.Fatalf("Register(v1) error = %v", err)
	}
	if reg.Active() != v1 || v1.State() != StateActivated {
		t.Fatalf("v1 active = %v, state = %v", reg.Active() == v1, v1.State())
	}

	v2 := newTestWorker(t, "v2", storage, htmlFetcher(nil))
	if err := reg.Register(ctx, v2); err != nil {
		t.Fatalf("Register(v2) error = %v", err)
	}
	if reg.Active() != v2 || v2.State() != StateActivated {
		t.Errorf("v2 active = %v, state = %v", reg.Active() == v2, v2.State())
	}
	if v1.State() != StateRedundant {
		t.Errorf("v1 state = %v, want redundant", v1.State())
	}

	names, _ := storage.Names(ctx)
	if len(names) != 1 || names[0] != "v2fundamentals" {
		t.Errorf("Names() = %v, want [v2fundamentals]", names)
	}

	// Registering the active worker again is a no-op
	if err := reg.Register(ctx, v2); err != nil {
		t.Errorf("re-Register(v2) error = %v", err)
	}
}

func TestRegistration_InstallFailureKeepsActiveWorker(t *testing.T) {
	storage := cache.NewMemoryStorage()
	ctx := context.Background()
	reg := NewRegistration()

	v1 := newTestWorker(t, "v1", storage, htmlFetcher(nil))
	if err := reg.Register(ctx, v1); err != nil {
		t.Fatalf("Register(v1) error = %v", err)
	}

	v2 := newTestWorker(t, "v2", storage, offlineFetcher())
	err := reg.Register(ctx, v2)
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("Register(v2) error = %v, want ErrInstallFailed", err)
	}

	if reg.Active() != v1 {
		t.Error("failed install replaced the active worker")
	}
	if v1.State() != StateActivated {
		t.Errorf("v1 state = %v, want activated", v1.State())
	}
	if v2.State() != StateRedundant {
		t.Errorf("v2 state = %v, want redundant", v2.State())
	}

	// v1 buckets survive because v2 never activated
	if _, err := storage.Match(ctx, cache.Key{Method: "GET", URL: "https://example.com/blog"}); err != nil {
		t.Errorf("v1 fundamentals lost after failed v2 install: %v", err)
	}
}

func TestRegistration_ActivateListFailureStillActivates(t *testing.T) {
	storage := &failingStorage{Storage: cache.NewMemoryStorage(), failNames: true}
	reg := NewRegistration()

	w := newTestWorker(t, "v1", storage, htmlFetcher(nil))
	if err := reg.Register(context.Background(), w); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if w.State() != StateActivated {
		t.Errorf("state = %v, want activated", w.State())
	}
}

func TestRedundantWorkerDoesNotStore(t *testing.T) {
	storage := cache.NewMemoryStorage()
	ctx := context.Background()

	w := newTestWorker(t, "v1", storage, htmlFetcher(nil))
	w.setState(StateRedundant)

	w.Fetch(ctx, newGet("https://example.com/late")).Body.Close()
	w.Wait()

	names, _ := storage.Names(ctx)
	if len(names) != 0 {
		t.Errorf("redundant worker recreated buckets: %v", names)
	}
}

// gatedStorage blocks Open for one bucket name until release is closed.
type gatedStorage struct {
	*cache.MemoryStorage
	name    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStorage(name string) *gatedStorage {
	return &gatedStorage{
		MemoryStorage: cache.NewMemoryStorage(),
		name:          name,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (s *gatedStorage) Open(ctx context.Context, name string) (cache.Bucket, error) {
	if name == s.name {
		s.once.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.MemoryStorage.Open(ctx, name)
}

func bodyFetcher(body string) Fetcher {
	return fetcherFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			Status:     "200 OK",
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	})
}

func TestRegistration_InFlightStoreDoesNotOutliveActivation(t *testing.T) {
	storage := newGatedStorage("v1pages")
	ctx := context.Background()
	reg := NewRegistration()

	v1 := newTestWorker(t, "v1", storage, bodyFetcher("old"))
	if err := reg.Register(ctx, v1); err != nil {
		t.Fatalf("Register(v1) error = %v", err)
	}

	const page = "https://example.com/posts/hello"
	resp := v1.Fetch(ctx, newGet(page))
	if body := readBody(t, resp); body != "old" {
		t.Fatalf("v1 body = %q, want old", body)
	}

	// v1's page write is now parked inside Open
	select {
	case <-storage.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("v1 never started storing the page")
	}

	v2 := newTestWorker(t, "v2", storage, bodyFetcher("new"))
	done := make(chan error, 1)
	go func() { done <- reg.Register(ctx, v2) }()

	select {
	case err := <-done:
		t.Fatalf("Register(v2) returned %v while a v1 write was in flight", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(storage.release)
	if err := <-done; err != nil {
		t.Fatalf("Register(v2) error = %v", err)
	}
	v1.Wait()

	names, _ := storage.Names(ctx)
	for _, name := range names {
		if strings.HasPrefix(name, "v1") {
			t.Errorf("Names() = %v, v1 bucket survived activation", names)
		}
	}

	resp = v2.Fetch(ctx, newGet(page))
	if body := readBody(t, resp); body != "new" {
		t.Errorf("v2 body = %q, want new", body)
	}
	v2.Wait()
}
