package haproxy

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

// Type is the node type of HAProxy instances.
const Type = "haproxy"

// Node is one HAProxy instance. Instances of the same load balancer pair
// share a group name so the group rolls up across them.
type Node struct {
	*poll.Base

	statsURL string
	group    string
	request  fetch.Request
	client   *fetch.Client

	stats *poll.Cache[Stats]
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

// WithCredentials sets basic auth for the stats page.
func WithCredentials(username, password string) Option {
	return func(cfg *config) {
		cfg.username = username
		cfg.password = password
	}
}

// WithTimeout bounds each stats request.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.timeout = d }
}

// WithInterval sets the refresh interval.
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

// New creates an instance node in group reading the stats page at rawURL.
// The ";csv" suffix is added to the query, or to the path when there is no
// query, unless already present.
func New(group, key, rawURL string, opts ...Option) (*Node, error) {
	if key == "" {
		return nil, errors.New("haproxy: key cannot be empty")
	}
	statsURL, err := csvURL(rawURL)
	if err != nil {
		return nil, err
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
		statsURL: statsURL,
		group:    group,
		client:   cfg.client,
		request: fetch.Request{
			URL:      statsURL,
			Username: cfg.username,
			Password: cfg.password,
			Timeout:  cfg.timeout,
		},
	}
	n.stats = poll.Cached(n.Base, "stats", n.fetchStats, poll.WithInterval(cfg.interval))
	return n, nil
}

func csvURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("haproxy: invalid stats URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("haproxy: stats URL %q must be absolute", rawURL)
	}
	switch {
	case u.RawQuery != "":
		if !strings.HasSuffix(u.RawQuery, ";csv") {
			u.RawQuery += ";csv"
		}
	case !strings.HasSuffix(u.Path, ";csv"):
		u.Path += ";csv"
	}
	return u.String(), nil
}

func (n *Node) fetchStats(ctx context.Context) (Stats, error) {
	body, err := n.client.Get(ctx, n.request)
	if err != nil {
		return Stats{}, err
	}
	return ParseStats(body)
}

// StatsURL returns the CSV export URL.
func (n *Node) StatsURL() string { return n.statsURL }

// GroupName returns the instance's group.
func (n *Node) GroupName() string { return n.group }

// Stats returns the last parsed export.
func (n *Node) Stats() (Stats, bool) {
	s, _, err := n.stats.GetSafe(true)
	return s, err == nil
}

// ComputeStatus adds per-server state to the entry rollup: DOWN servers are
// Critical, MAINT and DRAIN servers are in Maintenance.
func (n *Node) ComputeStatus() poll.Health {
	items := []poll.Health{n.Base.ComputeStatus()}

	stats, ok := n.Stats()
	if !ok {
		return poll.Rollup(items)
	}
	for _, row := range stats.Rows {
		if row.Server == Frontend {
			continue
		}
		items = append(items, rowHealth(row))
	}
	return poll.Rollup(items)
}

func rowHealth(row Row) poll.Health {
	name := row.Proxy + "/" + row.Server
	switch row.State() {
	case "UP", "OPEN", "NO":
		// "no check" servers are in rotation without health checks.
		return poll.Health{Status: poll.StatusGood}
	case "DOWN":
		reason := name + " is DOWN"
		if row.CheckStatus != "" {
			reason += " (" + row.CheckStatus + ")"
		}
		return poll.Health{Status: poll.StatusCritical, Reason: reason}
	case "MAINT", "DRAIN":
		return poll.Health{Status: poll.StatusMaintenance, Reason: name + " in " + row.State()}
	case "NOLB":
		return poll.Health{Status: poll.StatusWarning, Reason: name + " not accepting new sessions"}
	default:
		return poll.Health{Status: poll.StatusUnknown, Reason: name + " status " + row.Status}
	}
}
