package redisnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jpalmerr/statusboard/poll"
)

// Type is the node type of Redis servers.
const Type = "redis"

const memoryWarning = 0.9

// Client is the subset of *redis.Client the node needs.
type Client interface {
	Info(ctx context.Context, sections ...string) *redis.StringCmd
	DBSize(ctx context.Context) *redis.IntCmd
	Close() error
}

// Node is one Redis server.
type Node struct {
	*poll.Base

	client Client
	group  string

	info   *poll.Cache[Info]
	dbsize *poll.Cache[int64]
}

type config struct {
	name     string
	group    string
	interval time.Duration
	base     []poll.BaseOption
}

// Option configures a [Node].
type Option func(*config)

// WithName sets the display name. Defaults to the key.
func WithName(name string) Option {
	return func(cfg *config) { cfg.name = name }
}

// WithGroup places the server in a named group, typically its replication
// set.
func WithGroup(name string) Option {
	return func(cfg *config) { cfg.group = name }
}

// WithInterval sets the refresh interval of every entry.
func WithInterval(d time.Duration) Option {
	return func(cfg *config) { cfg.interval = d }
}

// WithBaseOptions passes options through to the node's [poll.Base].
func WithBaseOptions(opts ...poll.BaseOption) Option {
	return func(cfg *config) { cfg.base = append(cfg.base, opts...) }
}

// New creates a node keyed by key that queries client.
func New(key string, client Client, opts ...Option) (*Node, error) {
	if key == "" {
		return nil, errors.New("redisnode: key cannot be empty")
	}
	if client == nil {
		return nil, errors.New("redisnode: client cannot be nil")
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
		client: client,
		group:  cfg.group,
	}
	n.info = poll.Cached(n.Base, "info", n.fetchInfo)
	n.dbsize = poll.Cached(n.Base, "dbsize", n.fetchDBSize)
	return n, nil
}

// Connect creates a node for addr, which is either a redis:// URL or a
// host:port pair.
func Connect(key, addr string, opts ...Option) (*Node, error) {
	var client *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
	}

	n, err := New(key, client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) fetchInfo(ctx context.Context) (Info, error) {
	raw, err := n.client.Info(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("INFO: %w", err)
	}
	return ParseInfo(raw), nil
}

func (n *Node) fetchDBSize(ctx context.Context) (int64, error) {
	size, err := n.client.DBSize(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("DBSIZE: %w", err)
	}
	return size, nil
}

// GroupName returns the server's group, if any.
func (n *Node) GroupName() string { return n.group }

// Close closes the client.
func (n *Node) Close() error { return n.client.Close() }

// Info returns the last parsed INFO output.
func (n *Node) Info() (Info, bool) {
	info, _, err := n.info.GetSafe(true)
	return info, err == nil
}

// ComputeStatus adds replication link, memory pressure and dataset loading
// to the entry rollup.
func (n *Node) ComputeStatus() poll.Health {
	items := []poll.Health{n.Base.ComputeStatus()}

	info, ok := n.Info()
	if !ok {
		return poll.Rollup(items)
	}

	if info.Role() == "slave" && info["master_link_status"] == "down" {
		items = append(items, poll.Health{
			Status: poll.StatusCritical,
			Reason: fmt.Sprintf("replica link to %s:%s down", info["master_host"], info["master_port"]),
		})
	}
	if used := info.MemoryUtilization(); used >= memoryWarning {
		items = append(items, poll.Health{
			Status: poll.StatusWarning,
			Reason: fmt.Sprintf("memory %.0f%% of maxmemory", used*100),
		})
	}
	if info["loading"] == "1" {
		items = append(items, poll.Health{Status: poll.StatusWarning, Reason: "loading dataset"})
	}

	return poll.Rollup(items)
}
