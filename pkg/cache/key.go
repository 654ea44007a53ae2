package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// Key identifies a cached response by request method and absolute URL.
type Key struct {
	// Method is the HTTP method (e.g., "GET")
	Method string

	// URL is the absolute request URL without fragment
	URL string
}

// NewKey builds the cache key for an HTTP request.
// Fragments are dropped and an empty method defaults to GET.
func NewKey(req *http.Request) Key {
	return KeyFor(req.Method, req.URL)
}

// KeyFor builds a cache key from a method and URL.
func KeyFor(method string, u *url.URL) Key {
	if method == "" {
		method = http.MethodGet
	}

	raw := ""
	if u != nil {
		stripped := *u
		stripped.Fragment = ""
		stripped.RawFragment = ""
		raw = stripped.String()
	}

	return Key{
		Method: strings.ToUpper(method),
		URL:    raw,
	}
}

// String generates a deterministic cache key string.
// Format: METHOD url
//
// Example:
//
//	GET https://example.com/blog
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, bool) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok || method == "" {
		return Key{}, false
	}
	return Key{Method: method, URL: rawURL}, true
}
