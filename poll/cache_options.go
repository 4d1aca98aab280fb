package poll

import (
	"log/slog"
	"time"
)

// cacheConfig holds mutable state during Cache construction.
type cacheConfig struct {
	interval      time.Duration
	staleAfter    time.Duration
	retryInterval time.Duration
	timeout       time.Duration
	supported     func() bool
	logger        *slog.Logger
	now           func() time.Time
}

// CacheOption configures a [Cache] during construction.
// Non-positive durations are ignored and leave the default in place.
type CacheOption func(*cacheConfig)

// WithInterval sets how often the entry is refreshed by the scheduler.
// Defaults to 15 seconds.
func WithInterval(d time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithStaleAfter sets how long after the last success a value stays fresh.
// Defaults to twice the refresh interval.
func WithStaleAfter(d time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if d > 0 {
			cfg.staleAfter = d
		}
	}
}

// WithRetryInterval sets the refresh interval used after a failed fetch.
// Defaults to the refresh interval.
func WithRetryInterval(d time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if d > 0 {
			cfg.retryInterval = d
		}
	}
}

// WithFetchTimeout bounds each fetch with a context deadline. Defaults to
// [DefaultFetchTimeout].
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithSupport sets a predicate deciding whether the backend supports this
// metric, typically by checking a version fetched into another entry.
// Unsupported entries are never fetched and are left out of status rollups.
func WithSupport(fn func() bool) CacheOption {
	return func(cfg *cacheConfig) {
		cfg.supported = fn
	}
}

// WithCacheLogger sets the logger used for fetch failures and panics.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(cfg *cacheConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithCacheClock replaces time.Now for due and staleness decisions.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(cfg *cacheConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}
