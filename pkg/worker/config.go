package worker

import (
	"errors"
	"fmt"
	"net/url"
)

// Bucket name suffixes. Full names are <version><suffix>.
const (
	FundamentalsSuffix = "fundamentals"
	PagesSuffix        = "pages"
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("invalid worker config")

// DefaultVersion is the cache generation shipped with the site.
const DefaultVersion = "v6.0.0"

// DefaultFundamentals are the resources pre-cached at install.
// The empty path is the site root.
var DefaultFundamentals = []string{
	"",
	"blog",
	"assets/css/style.css",
	"assets/images/me.jpg",
	"assets/docs/resume.pdf",
	"favicon.ico",
}

// DefaultExcludedURLPatterns bypass the worker entirely.
var DefaultExcludedURLPatterns = []string{
	"lovemeetstech2024",
	"googleapis.com",
}

// DefaultSkipStoreSchemes are URL prefixes that are served but never stored.
var DefaultSkipStoreSchemes = []string{
	"chrome-extension",
	"moz-extension",
	"safari-extension",
}

// Config is the immutable worker configuration.
type Config struct {
	// Version tags every bucket this worker creates
	Version string

	// Origin is the site base URL fundamentals resolve against
	Origin *url.URL

	// Fundamentals are relative resource paths cached at install
	Fundamentals []string

	// ExcludedURLPatterns are substrings of URLs the worker never intercepts
	ExcludedURLPatterns []string

	// SkipStoreSchemes are URL prefixes never written to the pages bucket
	SkipStoreSchemes []string
}

// DefaultConfig returns the site configuration for origin.
func DefaultConfig(origin *url.URL) Config {
	return Config{
		Version:             DefaultVersion,
		Origin:              origin,
		Fundamentals:        append([]string(nil), DefaultFundamentals...),
		ExcludedURLPatterns: append([]string(nil), DefaultExcludedURLPatterns...),
		SkipStoreSchemes:    append([]string(nil), DefaultSkipStoreSchemes...),
	}
}

// validate checks cfg and returns a private copy the caller cannot mutate.
func (cfg Config) validate() (Config, error) {
	if cfg.Version == "" {
		return Config{}, fmt.Errorf("%w: version is required", ErrInvalidConfig)
	}
	if cfg.Origin == nil || !cfg.Origin.IsAbs() || cfg.Origin.Host == "" {
		return Config{}, fmt.Errorf("%w: origin must be an absolute URL", ErrInvalidConfig)
	}

	origin := *cfg.Origin
	if origin.Path == "" {
		origin.Path = "/"
	}
	origin.RawQuery = ""
	origin.Fragment = ""

	out := cfg.clone()
	out.Origin = &origin
	return out, nil
}

// clone returns a deep copy of cfg.
func (cfg Config) clone() Config {
	out := Config{
		Version:             cfg.Version,
		Fundamentals:        append([]string(nil), cfg.Fundamentals...),
		ExcludedURLPatterns: append([]string(nil), cfg.ExcludedURLPatterns...),
		SkipStoreSchemes:    append([]string(nil), cfg.SkipStoreSchemes...),
	}
	if cfg.Origin != nil {
		origin := *cfg.Origin
		out.Origin = &origin
	}
	return out
}

// FundamentalsBucket returns the install bucket name.
func (cfg Config) FundamentalsBucket() string {
	return cfg.Version + FundamentalsSuffix
}

// PagesBucket returns the opportunistic cache bucket name.
func (cfg Config) PagesBucket() string {
	return cfg.Version + PagesSuffix
}

// resolve turns a relative fundamental path into an absolute URL.
func (cfg Config) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse fundamental %q: %w", path, err)
	}
	return cfg.Origin.ResolveReference(ref), nil
}
