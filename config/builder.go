package config

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jpalmerr/statusboard"
	"github.com/jpalmerr/statusboard/backends/elastic"
	"github.com/jpalmerr/statusboard/backends/haproxy"
	"github.com/jpalmerr/statusboard/backends/httpcheck"
	"github.com/jpalmerr/statusboard/backends/redisnode"
	"github.com/jpalmerr/statusboard/backends/sqlnode"
	"github.com/jpalmerr/statusboard/internal/fetch"
	"github.com/jpalmerr/statusboard/poll"
)

// BuildNodes converts parsed configuration into pollable nodes.
//
// HTTP-based backends share one pooled client. Database and Redis clients
// connect lazily, so an unreachable server does not fail the build. On
// error, nodes built so far are closed.
func BuildNodes(ctx context.Context, cfg *Config, logger *slog.Logger) ([]poll.Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []poll.BaseOption{poll.WithNodeLogger(logger)}
	client := fetch.NewClient()

	var nodes []poll.Node
	fail := func(err error) ([]poll.Node, error) {
		CloseNodes(nodes)
		return nil, err
	}

	for _, sc := range cfg.SQL {
		opts := []sqlnode.Option{sqlnode.WithBaseOptions(base...)}
		if sc.Name != "" {
			opts = append(opts, sqlnode.WithName(sc.Name))
		}
		if sc.Group != "" {
			opts = append(opts, sqlnode.WithGroup(sc.Group))
		}
		if sc.MaxReplicationLag != 0 {
			opts = append(opts, sqlnode.WithMaxReplicationLag(sc.MaxReplicationLag.Duration()))
		}
		if sc.Interval != 0 {
			opts = append(opts, sqlnode.WithInterval(sc.Interval.Duration()))
		}
		n, err := sqlnode.Connect(ctx, sc.Key, sc.DSN, opts...)
		if err != nil {
			return fail(fmt.Errorf("sql (%s): %w", sc.Key, err))
		}
		nodes = append(nodes, n)
	}

	for _, rc := range cfg.Redis {
		opts := []redisnode.Option{redisnode.WithBaseOptions(base...)}
		if rc.Name != "" {
			opts = append(opts, redisnode.WithName(rc.Name))
		}
		if rc.Group != "" {
			opts = append(opts, redisnode.WithGroup(rc.Group))
		}
		if rc.Interval != 0 {
			opts = append(opts, redisnode.WithInterval(rc.Interval.Duration()))
		}
		n, err := redisnode.Connect(rc.Key, rc.Addr, opts...)
		if err != nil {
			return fail(fmt.Errorf("redis (%s): %w", rc.Key, err))
		}
		nodes = append(nodes, n)
	}

	for _, gc := range cfg.HAProxy {
		for _, ic := range gc.Instances {
			opts := []haproxy.Option{
				haproxy.WithClient(client),
				haproxy.WithBaseOptions(base...),
			}
			if ic.Name != "" {
				opts = append(opts, haproxy.WithName(ic.Name))
			}
			if gc.Username != "" {
				opts = append(opts, haproxy.WithCredentials(gc.Username, gc.Password))
			}
			if gc.Timeout != 0 {
				opts = append(opts, haproxy.WithTimeout(gc.Timeout.Duration()))
			}
			if gc.Interval != 0 {
				opts = append(opts, haproxy.WithInterval(gc.Interval.Duration()))
			}
			n, err := haproxy.New(gc.Group, ic.Key, ic.URL, opts...)
			if err != nil {
				return fail(fmt.Errorf("haproxy (%s/%s): %w", gc.Group, ic.Key, err))
			}
			nodes = append(nodes, n)
		}
	}

	for _, ec := range cfg.Elastic {
		opts := []elastic.Option{
			elastic.WithClient(client),
			elastic.WithBaseOptions(base...),
		}
		if ec.Name != "" {
			opts = append(opts, elastic.WithName(ec.Name))
		}
		if ec.Username != "" {
			opts = append(opts, elastic.WithCredentials(ec.Username, ec.Password))
		}
		if ec.Timeout != 0 {
			opts = append(opts, elastic.WithTimeout(ec.Timeout.Duration()))
		}
		if ec.Interval != 0 {
			opts = append(opts, elastic.WithInterval(ec.Interval.Duration()))
		}
		n, err := elastic.New(ec.Key, ec.URL, opts...)
		if err != nil {
			return fail(fmt.Errorf("elastic (%s): %w", ec.Key, err))
		}
		nodes = append(nodes, n)
	}

	for _, hc := range cfg.HTTP {
		n, err := httpcheck.New(hc.Name, hc.URL, httpOptions(httpSettings{
			group:     hc.Group,
			method:    hc.Method,
			timeout:   hc.Timeout,
			interval:  hc.Interval,
			headers:   hc.Headers,
			labels:    hc.Labels,
			extractor: hc.Extractor,
		}, client, base)...)
		if err != nil {
			return fail(fmt.Errorf("http (%s): %w", hc.Name, err))
		}
		nodes = append(nodes, n)
	}

	for _, gc := range cfg.Grids {
		checks, err := httpcheck.NewGrid(gc.Name, gc.URLTemplate, gc.Dimensions, httpOptions(httpSettings{
			group:     gc.Group,
			method:    gc.Method,
			timeout:   gc.Timeout,
			interval:  gc.Interval,
			headers:   gc.Headers,
			labels:    gc.Labels,
			extractor: gc.Extractor,
		}, client, base)...)
		if err != nil {
			return fail(fmt.Errorf("grid (%s): %w", gc.Name, err))
		}
		for _, c := range checks {
			nodes = append(nodes, c)
		}
	}

	return nodes, nil
}

// httpSettings is the part of [HTTPConfig] and [GridConfig] they share.
type httpSettings struct {
	group     string
	method    string
	timeout   Duration
	interval  Duration
	headers   map[string]string
	labels    map[string]string
	extractor ExtractorConfig
}

func httpOptions(s httpSettings, client *fetch.Client, base []poll.BaseOption) []httpcheck.Option {
	opts := []httpcheck.Option{
		httpcheck.WithClient(client),
		httpcheck.WithBaseOptions(base...),
	}
	if s.group != "" {
		opts = append(opts, httpcheck.WithGroup(s.group))
	}
	if s.method != "" {
		opts = append(opts, httpcheck.WithMethod(s.method))
	}
	if s.timeout != 0 {
		opts = append(opts, httpcheck.WithTimeout(s.timeout.Duration()))
	}
	if s.interval != 0 {
		opts = append(opts, httpcheck.WithInterval(s.interval.Duration()))
	}
	if len(s.headers) > 0 {
		opts = append(opts, httpcheck.WithHeaders(mapToKeyValuePairs(s.headers)...))
	}
	if len(s.labels) > 0 {
		opts = append(opts, httpcheck.WithLabels(mapToKeyValuePairs(s.labels)...))
	}
	if extractor := buildExtractor(s.extractor); extractor != nil {
		opts = append(opts, httpcheck.WithExtractor(extractor))
	}
	return opts
}

// mapToKeyValuePairs converts a map to key-value pairs sorted by key.
func mapToKeyValuePairs(m map[string]string) []string {
	pairs := make([]string, 0, len(m)*2)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildExtractor converts ExtractorConfig to an extractor.
// Returns nil for default/empty extractors so the check uses its default.
func buildExtractor(ec ExtractorConfig) httpcheck.Extractor {
	switch ec.Type {
	case "http":
		return httpcheck.HTTPStatusExtractor
	case "json":
		return httpcheck.JSONFieldExtractor(ec.Path)
	case "contains":
		return httpcheck.ContainsExtractor(ec.Text)
	case "regex":
		// pattern was compiled during validation
		return httpcheck.MustRegexExtractor(ec.Pattern, ec.Match)
	default:
		return nil
	}
}

// ServiceOptions converts the top-level settings into service options.
func ServiceOptions(cfg *Config, logger *slog.Logger) []statusboard.Option {
	opts := []statusboard.Option{
		statusboard.WithTitle(cfg.Title),
		statusboard.WithPort(cfg.Port),
		statusboard.WithTickInterval(cfg.TickInterval.Duration()),
		statusboard.WithMaxConcurrency(cfg.MaxConcurrency),
		statusboard.WithPollTimeout(cfg.PollTimeout.Duration()),
	}
	if cfg.PollRateLimit.PerSecond > 0 && cfg.PollRateLimit.Burst > 0 {
		opts = append(opts, statusboard.WithPollRateLimit(cfg.PollRateLimit.PerSecond, cfg.PollRateLimit.Burst))
	}
	if cfg.NATS.URL != "" {
		opts = append(opts, statusboard.WithNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix))
	}
	if logger != nil {
		opts = append(opts, statusboard.WithLogger(logger))
	}
	return opts
}

// CloseNodes releases clients held by nodes that own connections.
func CloseNodes(nodes []poll.Node) {
	for _, n := range nodes {
		switch c := n.(type) {
		case interface{ Close() }:
			c.Close()
		case interface{ Close() error }:
			_ = c.Close()
		}
	}
}
