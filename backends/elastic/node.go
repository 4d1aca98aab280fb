package elastic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/statusboard/internal/fetch"
	"github.com/jpalmerr/statusboard/poll"
)

// Type is the node type of Elasticsearch clusters.
const Type = "elastic"

// ClusterHealth is the subset of _cluster/health the node reads.
type ClusterHealth struct {
	ClusterName         string `json:"cluster_name"`
	Status              string `json:"status"`
	TimedOut            bool   `json:"timed_out"`
	NumberOfNodes       int    `json:"number_of_nodes"`
	NumberOfDataNodes   int    `json:"number_of_data_nodes"`
	ActivePrimaryShards int    `json:"active_primary_shards"`
	ActiveShards        int    `json:"active_shards"`
	RelocatingShards    int    `json:"relocating_shards"`
	InitializingShards  int    `json:"initializing_shards"`
	UnassignedShards    int    `json:"unassigned_shards"`
}

// ClusterInfo is the subset of the root endpoint the node reads.
type ClusterInfo struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	ClusterUUID string `json:"cluster_uuid"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Node is one Elasticsearch cluster, reached through any of its nodes.
type Node struct {
	*poll.Base

	baseURL  string
	username string
	password string
	timeout  time.Duration
	client   *fetch.Client

	health *poll.Cache[ClusterHealth]
	info   *poll.Cache[ClusterInfo]
}

type config struct {
	name     string
	username string
	password string
	timeout  time.Duration
	interval time.Duration
	client   *fetch.Client
	base     []poll.BaseOption
}

// Option configures a [Node].
type Option func(*config)

// WithName sets the display name. Defaults to the key.
func WithName(name string) Option {
	return func(cfg *config) { cfg.name = name }
}

// WithCredentials sets basic auth.
func WithCredentials(username, password string) Option {
	return func(cfg *config) {
		cfg.username = username
		cfg.password = password
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.timeout = d }
}

// WithInterval sets the refresh interval of the health entry. The info
// entry refreshes at four times the interval since it rarely changes.
func WithInterval(d time.Duration) Option {
	return func(cfg *config) { cfg.interval = d }
}

// WithClient shares an HTTP client between nodes.
func WithClient(c *fetch.Client) Option {
	return func(cfg *config) { cfg.client = c }
}

// WithBaseOptions passes options through to the node's [poll.Base].
func WithBaseOptions(opts ...poll.BaseOption) Option {
	return func(cfg *config) { cfg.base = append(cfg.base, opts...) }
}

// New creates a cluster node reached at rawURL.
func New(key, rawURL string, opts ...Option) (*Node, error) {
	if key == "" {
		return nil, errors.New("elastic: key cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("elastic: invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("elastic: URL %q must be absolute", rawURL)
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = fetch.NewClient()
	}

	n := &Node{
		Base:     poll.NewBase(Type, key, cfg.name, cfg.base...),
		baseURL:  strings.TrimRight(rawURL, "/"),
		username: cfg.username,
		password: cfg.password,
		timeout:  cfg.timeout,
		client:   cfg.client,
	}
	n.health = poll.Cached(n.Base, "health", n.fetchHealth, poll.WithInterval(cfg.interval))
	n.info = poll.Cached(n.Base, "info", n.fetchInfo, poll.WithInterval(4*cfg.interval))
	return n, nil
}

func (n *Node) request(path string) fetch.Request {
	return fetch.Request{
		URL:      n.baseURL + path,
		Headers:  map[string]string{"Accept": "application/json"},
		Username: n.username,
		Password: n.password,
		Timeout:  n.timeout,
	}
}

func (n *Node) fetchHealth(ctx context.Context) (ClusterHealth, error) {
	var h ClusterHealth
	if err := n.client.GetJSON(ctx, n.request("/_cluster/health"), &h); err != nil {
		return ClusterHealth{}, err
	}
	return h, nil
}

func (n *Node) fetchInfo(ctx context.Context) (ClusterInfo, error) {
	var info ClusterInfo
	if err := n.client.GetJSON(ctx, n.request("/"), &info); err != nil {
		return ClusterInfo{}, err
	}
	return info, nil
}

// Health returns the last cluster health.
func (n *Node) Health() (ClusterHealth, bool) {
	h, _, err := n.health.GetSafe(true)
	return h, err == nil
}

// Info returns the last cluster info.
func (n *Node) Info() (ClusterInfo, bool) {
	info, _, err := n.info.GetSafe(true)
	return info, err == nil
}

// ComputeStatus maps the cluster colour onto the entry rollup.
func (n *Node) ComputeStatus() poll.Health {
	items := []poll.Health{n.Base.ComputeStatus()}

	h, ok := n.Health()
	if !ok {
		return poll.Rollup(items)
	}

	switch strings.ToLower(h.Status) {
	case "green":
	case "yellow":
		items = append(items, poll.Health{
			Status: poll.StatusWarning,
			Reason: fmt.Sprintf("cluster yellow: %d unassigned shards", h.UnassignedShards),
		})
	case "red":
		items = append(items, poll.Health{
			Status: poll.StatusCritical,
			Reason: fmt.Sprintf("cluster red: %d unassigned shards", h.UnassignedShards),
		})
	default:
		items = append(items, poll.Health{
			Status: poll.StatusUnknown,
			Reason: fmt.Sprintf("cluster status %q", h.Status),
		})
	}
	if h.TimedOut {
		items = append(items, poll.Health{Status: poll.StatusWarning, Reason: "cluster health request timed out"})
	}
	return poll.Rollup(items)
}
