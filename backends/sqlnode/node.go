package sqlnode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/statusboard/poll"
)

// Type is the node type of PostgreSQL servers.
const Type = "sql"

const (
	connectionsWarning  = 0.75
	connectionsCritical = 0.90
)

// Node is one PostgreSQL server.
type Node struct {
	*poll.Base

	src    Source
	group  string
	maxLag time.Duration

	version     *poll.Cache[Version]
	connections *poll.Cache[Connections]
	databases   *poll.Cache[[]Database]
	replication *poll.Cache[[]Replica]
}

type config struct {
	name     string
	group    string
	maxLag   time.Duration
	interval time.Duration
	base     []poll.BaseOption
}

// Option configures a [Node].
type Option func(*config)

// WithName sets the display name. Defaults to the key.
func WithName(name string) Option {
	return func(cfg *config) { cfg.name = name }
}

// WithGroup places the server in a named cluster.
func WithGroup(name string) Option {
	return func(cfg *config) { cfg.group = name }
}

// WithMaxReplicationLag marks the node Warning when any standby lags by more
// than d. Zero disables the check.
func WithMaxReplicationLag(d time.Duration) Option {
	return func(cfg *config) { cfg.maxLag = d }
}

// WithInterval sets the refresh interval of every entry.
func WithInterval(d time.Duration) Option {
	return func(cfg *config) { cfg.interval = d }
}

// WithBaseOptions passes options through to the node's [poll.Base].
func WithBaseOptions(opts ...poll.BaseOption) Option {
	return func(cfg *config) { cfg.base = append(cfg.base, opts...) }
}

// New creates a node keyed by key that queries src.
func New(key string, src Source, opts ...Option) (*Node, error) {
	if key == "" {
		return nil, errors.New("sqlnode: key cannot be empty")
	}
	if src == nil {
		return nil, errors.New("sqlnode: source cannot be nil")
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	base := cfg.base
	if cfg.interval > 0 {
		base = append([]poll.BaseOption{poll.WithCacheDefaults(poll.WithInterval(cfg.interval))}, base...)
	}

	n := &Node{
		Base:   poll.NewBase(Type, key, cfg.name, base...),
		src:    src,
		group:  cfg.group,
		maxLag: cfg.maxLag,
	}
	n.version = poll.Cached(n.Base, "version", src.Version)
	n.connections = poll.Cached(n.Base, "connections", src.Connections)
	n.databases = poll.Cached(n.Base, "databases", src.Databases)
	n.replication = poll.Cached(n.Base, "replication", src.Replication,
		poll.WithSupport(n.supportsReplication))
	return n, nil
}

// Connect creates a node backed by a connection pool for dsn.
func Connect(ctx context.Context, key, dsn string, opts ...Option) (*Node, error) {
	src, err := NewPoolSource(ctx, dsn, 0)
	if err != nil {
		return nil, err
	}
	n, err := New(key, src, opts...)
	if err != nil {
		src.Close()
		return nil, err
	}
	return n, nil
}

// GroupName returns the server's cluster, if any.
func (n *Node) GroupName() string { return n.group }

// Close releases the underlying source.
func (n *Node) Close() { n.src.Close() }

// Version returns the last known server version.
func (n *Node) Version() (Version, bool) {
	v, _, err := n.version.GetSafe(true)
	return v, err == nil
}

// supportsReplication gates the replication entry until the server is known
// to expose replay_lag.
func (n *Node) supportsReplication() bool {
	v, ok := n.Version()
	return ok && v.Num >= replicationMinVersion
}

// ComputeStatus adds connection saturation and replication lag to the entry
// rollup.
func (n *Node) ComputeStatus() poll.Health {
	items := []poll.Health{n.Base.ComputeStatus()}

	if c, _, err := n.connections.GetSafe(true); err == nil && c.Max > 0 {
		used := c.Utilization()
		reason := fmt.Sprintf("connections %d/%d (%.0f%%)", c.Total, c.Max, used*100)
		switch {
		case used >= connectionsCritical:
			items = append(items, poll.Health{Status: poll.StatusCritical, Reason: reason})
		case used >= connectionsWarning:
			items = append(items, poll.Health{Status: poll.StatusWarning, Reason: reason})
		}
	}

	if n.maxLag > 0 && n.replication.Supported() {
		if replicas, _, err := n.replication.GetSafe(true); err == nil {
			for _, r := range replicas {
				if r.Lag > n.maxLag {
					items = append(items, poll.Health{
						Status: poll.StatusWarning,
						Reason: fmt.Sprintf("replica %s lagging %s", r.Name, r.Lag.Truncate(time.Millisecond)),
					})
				}
			}
		}
	}

	return poll.Rollup(items)
}
