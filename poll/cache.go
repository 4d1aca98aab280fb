package poll

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultCacheInterval = 15 * time.Second

	// DefaultFetchTimeout bounds a fetch when no [WithFetchTimeout] is given,
	// so a hung backend cannot hold a scheduler slot forever.
	DefaultFetchTimeout = 30 * time.Second
)

// FetchFunc retrieves a fresh value from a backend. Implementations may
// enforce tighter timeouts and retries; the cache only records the outcome.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Entry is the type-erased view of a [Cache] used by nodes, the scheduler and
// diagnostics.
type Entry interface {
	// Key is the stable identity "type/node/metric".
	Key() string

	// Name is the metric name within its node.
	Name() string

	// EnsureFresh refreshes the entry if it is due or force is set, joining
	// any refresh already in flight. It blocks until the refresh completes or
	// ctx is done; in the latter case the refresh continues in the background.
	EnsureFresh(ctx context.Context, force bool) error

	// Due reports whether a scheduled refresh should start at now.
	Due(now time.Time) bool

	// InFlight reports whether a refresh is running.
	InFlight() bool

	// Supported reports whether the backend supports this metric.
	Supported() bool

	// Health derives the entry's own status from its value and error.
	Health() Health

	// Info returns a point-in-time snapshot of the entry's bookkeeping.
	Info() EntryInfo
}

// EntryInfo is the diagnostics view of one cache entry.
type EntryInfo struct {
	Key          string        `json:"key"`
	Type         string        `json:"type"`
	Node         string        `json:"node"`
	Metric       string        `json:"metric"`
	Interval     time.Duration `json:"interval"`
	StaleAfter   time.Duration `json:"stale_after"`
	HasValue     bool          `json:"has_value"`
	Stale        bool          `json:"stale"`
	InFlight     bool          `json:"in_flight"`
	Supported    bool          `json:"supported"`
	LastSuccess  time.Time     `json:"last_success"`
	LastAttempt  time.Time     `json:"last_attempt"`
	LastErrorAt  time.Time     `json:"last_error_at"`
	LastError    string        `json:"last_error,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	Polls        int64         `json:"polls"`
	Failures     int64         `json:"failures"`
	Health       Health        `json:"health"`
}

// flight is one running refresh; joiners wait on done and read err after it closes.
type flight struct {
	done chan struct{}
	err  error
}

// Cache holds the most recent successful value of one metric together with
// its fetch bookkeeping.
//
// A Cache never runs two fetches at once: callers that ask for a refresh
// while one is running wait for that same refresh. A failed fetch records
// the error and keeps the previous value, which turns stale once
// staleAfter has passed since the last success.
//
// All state is guarded by a per-entry mutex, so a slow backend only ever
// blocks callers of its own entries.
type Cache[T any] struct {
	nodeType string
	node     string
	name     string
	fetch    FetchFunc[T]

	interval      time.Duration
	staleAfter    time.Duration
	retryInterval time.Duration
	timeout       time.Duration
	supported     func() bool
	logger        *slog.Logger
	now           func() time.Time

	mu           sync.Mutex
	value        T
	hasValue     bool
	lastSuccess  time.Time
	lastAttempt  time.Time
	lastErrorAt  time.Time
	lastErr      error
	lastDuration time.Duration
	polls        int64
	failures     int64
	inflight     *flight
}

// NewCache creates a cache entry for metric name on the node identified by
// (nodeType, node). Most backends should use [Cached] instead, which also
// registers the entry with its node.
func NewCache[T any](nodeType, node, name string, fetch FetchFunc[T], opts ...CacheOption) *Cache[T] {
	cfg := cacheConfig{
		interval: defaultCacheInterval,
		timeout:  DefaultFetchTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.staleAfter <= 0 {
		cfg.staleAfter = 2 * cfg.interval
	}
	if cfg.retryInterval <= 0 {
		cfg.retryInterval = cfg.interval
	}

	return &Cache[T]{
		nodeType:      nodeType,
		node:          node,
		name:          name,
		fetch:         fetch,
		interval:      cfg.interval,
		staleAfter:    cfg.staleAfter,
		retryInterval: cfg.retryInterval,
		timeout:       cfg.timeout,
		supported:     cfg.supported,
		logger:        cfg.logger.With("type", nodeType, "node", node, "metric", name),
		now:           cfg.now,
	}
}

// Key returns "type/node/metric".
func (c *Cache[T]) Key() string {
	return c.nodeType + "/" + c.node + "/" + c.name
}

// Name returns the metric name.
func (c *Cache[T]) Name() string {
	return c.name
}

// Interval returns the configured refresh interval.
func (c *Cache[T]) Interval() time.Duration {
	return c.interval
}

// Supported evaluates the entry's support predicate. Entries without a
// predicate are always supported.
func (c *Cache[T]) Supported() bool {
	if c.supported == nil {
		return true
	}
	return c.supported()
}

// GetSafe returns the best available value without triggering a fetch.
//
// Before the first successful fetch it returns [ErrNotAvailable], wrapping the
// last fetch error when there is one. Once the value has gone stale it is only
// returned when allowStale is true; otherwise the error wraps [ErrStale] and
// the last fetch error.
func (c *Cache[T]) GetSafe(allowStale bool) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if !c.hasValue {
		if c.lastErr != nil {
			return zero, false, fmt.Errorf("%w: %w", ErrNotAvailable, c.lastErr)
		}
		return zero, false, ErrNotAvailable
	}

	stale := c.staleLocked(c.now())
	if stale && !allowStale {
		if c.lastErr != nil {
			return zero, true, fmt.Errorf("%w: %w", ErrStale, c.lastErr)
		}
		return zero, true, ErrStale
	}
	return c.value, stale, nil
}

// Set stores value as if it had just been fetched successfully.
func (c *Cache[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.value = value
	c.hasValue = true
	c.lastSuccess = now
	if c.lastAttempt.IsZero() {
		c.lastAttempt = now
	}
	c.lastErr = nil
}

// Due reports whether a scheduled refresh should start at now: the entry is
// idle and either was never attempted or its interval (retry interval after a
// failure) has elapsed since the last attempt.
func (c *Cache[T]) Due(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dueLocked(now)
}

func (c *Cache[T]) dueLocked(now time.Time) bool {
	if c.inflight != nil {
		return false
	}
	if c.lastAttempt.IsZero() {
		return true
	}
	interval := c.interval
	if c.lastErr != nil {
		interval = c.retryInterval
	}
	return now.Sub(c.lastAttempt) >= interval
}

func (c *Cache[T]) staleLocked(now time.Time) bool {
	return c.hasValue && now.Sub(c.lastSuccess) > c.staleAfter
}

// InFlight reports whether a refresh is currently running.
func (c *Cache[T]) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// EnsureFresh starts a refresh when the entry is due or force is set, or
// joins the refresh already in flight. Unsupported entries are skipped.
//
// The fetch runs detached from ctx cancellation: if ctx ends first,
// EnsureFresh returns ctx.Err() and the fetch still completes and updates
// the entry for the next reader.
func (c *Cache[T]) EnsureFresh(ctx context.Context, force bool) error {
	if !c.Supported() {
		return nil
	}

	c.mu.Lock()
	f := c.inflight
	if f == nil {
		now := c.now()
		if !force && !c.dueLocked(now) {
			c.mu.Unlock()
			return nil
		}
		f = &flight{done: make(chan struct{})}
		c.inflight = f
		c.lastAttempt = now
		go c.refresh(context.WithoutCancel(ctx), f)
	}
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh runs the fetch function once and publishes its outcome.
func (c *Cache[T]) refresh(ctx context.Context, f *flight) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	recordStart()
	start := time.Now()
	value, err := c.safeFetch(ctx)
	elapsed := time.Since(start)
	recordFinish(c.nodeType, elapsed, err)

	c.mu.Lock()
	now := c.now()
	c.polls++
	c.lastDuration = elapsed
	if err == nil {
		c.value = value
		c.hasValue = true
		c.lastSuccess = now
		c.lastErr = nil
	} else {
		c.failures++
		c.lastErr = err
		c.lastErrorAt = now
	}
	c.inflight = nil
	c.mu.Unlock()

	f.err = err
	close(f.done)

	if err != nil {
		c.logger.Warn("cache refresh failed", "error", err.Error(), "duration_ms", elapsed.Milliseconds())
	} else {
		c.logger.Debug("cache refreshed", "duration_ms", elapsed.Milliseconds())
	}
}

// safeFetch calls the fetch function with panic recovery.
// A panic is logged with its stack under a correlation id and returned as a
// [*PanicError].
func (c *Cache[T]) safeFetch(ctx context.Context) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("fetch panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			var zero T
			value = zero
			err = &PanicError{CorrelationID: correlationID, Value: r}
		}
	}()
	if c.fetch == nil {
		return value, fmt.Errorf("%s: no fetch function", c.Key())
	}
	return c.fetch(ctx)
}

// Health derives the entry's status:
//   - never attempted: Unknown
//   - no value and a fetch error: Critical
//   - value older than the stale window: Warning
//   - value fresh but the last attempt failed: Warning
//   - otherwise Good
func (c *Cache[T]) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthLocked(c.now())
}

func (c *Cache[T]) healthLocked(now time.Time) Health {
	switch {
	case !c.hasValue && c.lastErr != nil:
		return Health{Status: StatusCritical, Reason: c.name + ": " + c.lastErr.Error()}
	case !c.hasValue && c.lastAttempt.IsZero():
		return Health{Status: StatusUnknown, Reason: c.name + ": not polled yet"}
	case !c.hasValue:
		return Health{Status: StatusUnknown, Reason: c.name + ": awaiting first result"}
	case c.staleLocked(now):
		age := now.Sub(c.lastSuccess).Truncate(time.Second)
		return Health{Status: StatusWarning, Reason: fmt.Sprintf("%s: stale, last success %s ago", c.name, age)}
	case c.lastErr != nil:
		return Health{Status: StatusWarning, Reason: c.name + ": last poll failed: " + c.lastErr.Error()}
	default:
		return Health{Status: StatusGood}
	}
}

// Info returns the diagnostics snapshot of the entry.
func (c *Cache[T]) Info() EntryInfo {
	supported := c.Supported()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	info := EntryInfo{
		Key:          c.Key(),
		Type:         c.nodeType,
		Node:         c.node,
		Metric:       c.name,
		Interval:     c.interval,
		StaleAfter:   c.staleAfter,
		HasValue:     c.hasValue,
		Stale:        c.staleLocked(now),
		InFlight:     c.inflight != nil,
		Supported:    supported,
		LastSuccess:  c.lastSuccess,
		LastAttempt:  c.lastAttempt,
		LastErrorAt:  c.lastErrorAt,
		LastDuration: c.lastDuration,
		Polls:        c.polls,
		Failures:     c.failures,
		Health:       c.healthLocked(now),
	}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}
	if !supported {
		info.Health = Health{Status: StatusUnknown, Reason: c.name + ": " + ErrUnsupported.Error()}
	}
	return info
}
