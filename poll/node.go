package poll

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Node is one monitored instance: a database server, a cache server, a
// proxy. Backends implement Node by embedding [*Base] and declaring their
// entries with [Cached]; they may override ComputeStatus to add business
// rules on top of the default rollup.
type Node interface {
	// Type identifies the backend kind, e.g. "sql" or "redis".
	Type() string

	// Key identifies the instance within its type.
	Key() string

	// Name is the display name.
	Name() string

	// DataPollers returns the node's cache entries in declaration order.
	DataPollers() []Entry

	// ComputeStatus derives the node's health from its current entries.
	ComputeStatus() Health

	// Poll refreshes every entry in parallel. Unless force is set, polls
	// closer together than MinPollInterval are skipped.
	Poll(ctx context.Context, force bool) error

	// MinPollInterval is the minimum time between non-forced polls.
	MinPollInterval() time.Duration
}

// GroupMember is implemented by nodes that belong to a cluster or group.
type GroupMember interface {
	GroupName() string
}

// Base carries the shared bookkeeping of a [Node]: identity, throttle and
// the ordered set of cache entries.
type Base struct {
	nodeType        string
	key             string
	name            string
	minPollInterval time.Duration
	cacheDefaults   []CacheOption
	logger          *slog.Logger
	now             func() time.Time

	mu       sync.Mutex
	entries  []Entry
	byName   map[string]Entry
	lastPoll time.Time
}

// baseConfig holds mutable state during Base construction.
type baseConfig struct {
	minPollInterval time.Duration
	cacheDefaults   []CacheOption
	logger          *slog.Logger
	now             func() time.Time
}

// BaseOption configures a [Base].
type BaseOption func(*baseConfig)

// WithMinPollInterval throttles non-forced polls of the node.
func WithMinPollInterval(d time.Duration) BaseOption {
	return func(cfg *baseConfig) {
		if d > 0 {
			cfg.minPollInterval = d
		}
	}
}

// WithCacheDefaults sets options applied to every entry declared on the node
// before the entry's own options.
func WithCacheDefaults(opts ...CacheOption) BaseOption {
	return func(cfg *baseConfig) {
		cfg.cacheDefaults = append(cfg.cacheDefaults, opts...)
	}
}

// WithNodeLogger sets the logger handed down to the node's entries.
func WithNodeLogger(logger *slog.Logger) BaseOption {
	return func(cfg *baseConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithNodeClock replaces time.Now for the node and its entries.
func WithNodeClock(now func() time.Time) BaseOption {
	return func(cfg *baseConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// NewBase creates the shared part of a node. name defaults to key.
func NewBase(nodeType, key, name string, opts ...BaseOption) *Base {
	cfg := baseConfig{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if name == "" {
		name = key
	}

	return &Base{
		nodeType:        nodeType,
		key:             key,
		name:            name,
		minPollInterval: cfg.minPollInterval,
		cacheDefaults:   cfg.cacheDefaults,
		logger:          cfg.logger,
		now:             cfg.now,
		byName:          make(map[string]Entry),
	}
}

// Cached returns the entry named metric on b, creating and registering it on
// first use. Declaring the same metric twice with different value types is a
// programming error and panics.
func Cached[T any](b *Base, metric string, fetch FetchFunc[T], opts ...CacheOption) *Cache[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byName[metric]; ok {
		c, ok := existing.(*Cache[T])
		if !ok {
			panic(fmt.Sprintf("poll: metric %q on %s/%s redeclared with a different type", metric, b.nodeType, b.key))
		}
		return c
	}

	all := make([]CacheOption, 0, len(b.cacheDefaults)+len(opts)+2)
	all = append(all, WithCacheLogger(b.logger), WithCacheClock(b.now))
	all = append(all, b.cacheDefaults...)
	all = append(all, opts...)

	c := NewCache(b.nodeType, b.key, metric, fetch, all...)
	b.entries = append(b.entries, c)
	b.byName[metric] = c
	return c
}

// Type returns the backend kind.
func (b *Base) Type() string { return b.nodeType }

// Key returns the instance key.
func (b *Base) Key() string { return b.key }

// Name returns the display name.
func (b *Base) Name() string { return b.name }

// MinPollInterval returns the node throttle.
func (b *Base) MinPollInterval() time.Duration { return b.minPollInterval }

// Logger returns the node's logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// DataPollers returns a copy of the node's entries in declaration order.
func (b *Base) DataPollers() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.entries)
}

// Entry returns the entry named metric, or nil.
func (b *Base) Entry(metric string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byName[metric]
}

// LastPoll returns when the node was last polled through [Base.Poll].
func (b *Base) LastPoll() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPoll
}

// ComputeStatus rolls up the health of every supported entry. A node with
// no supported entries is Unknown: absence of data is not health.
func (b *Base) ComputeStatus() Health {
	entries := b.DataPollers()
	items := make([]Health, 0, len(entries))
	for _, e := range entries {
		if !e.Supported() {
			continue
		}
		items = append(items, e.Health())
	}
	if len(items) == 0 {
		return Health{Status: StatusUnknown, Reason: "no data pollers"}
	}
	return Rollup(items)
}

// Poll refreshes every entry in parallel and returns the first error.
func (b *Base) Poll(ctx context.Context, force bool) error {
	b.mu.Lock()
	now := b.now()
	if !force && b.minPollInterval > 0 && !b.lastPoll.IsZero() && now.Sub(b.lastPoll) < b.minPollInterval {
		b.mu.Unlock()
		return nil
	}
	b.lastPoll = now
	entries := slices.Clone(b.entries)
	b.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			if err := e.EnsureFresh(ctx, force); err != nil {
				return fmt.Errorf("%s: %w", e.Key(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Group is a cluster of nodes whose health rolls up together.
type Group struct {
	Type    string
	Name    string
	Members []Node
}

// ComputeStatus rolls up the members, prefixing reasons with member names.
func (g Group) ComputeStatus() Health {
	if len(g.Members) == 0 {
		return Health{Status: StatusUnknown, Reason: "no members"}
	}
	items := make([]Health, len(g.Members))
	for i, m := range g.Members {
		h := m.ComputeStatus()
		if h.Reason != "" {
			h.Reason = m.Name() + ": " + h.Reason
		}
		items[i] = h
	}
	return Rollup(items)
}
