package httpcheck

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/statusboard/internal/fetch"
	"github.com/jpalmerr/statusboard/poll"
)

// Type is the node type of HTTP checks.
const Type = "http"

// Result is the outcome of one HTTP check.
type Result struct {
	Status     poll.Status   `json:"status"`
	StatusCode int           `json:"status_code"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
}

// Node is a generic HTTP health endpoint.
//
// A transport failure or a panicking extractor is a valid Critical result,
// not a cache error: the endpoint was checked and found broken.
type Node struct {
	*poll.Base

	url       string
	group     string
	method    string
	labels    map[string]string
	headers   map[string]string
	timeout   time.Duration
	extractor Extractor
	client    *fetch.Client

	check *poll.Cache[Result]
}

// New creates an HTTP check named name against rawURL. The name is also the
// node key.
func New(name, rawURL string, opts ...Option) (*Node, error) {
	if name == "" {
		return nil, errors.New("check name cannot be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.New("invalid URL: " + err.Error())
	}
	if parsed.Scheme == "" {
		return nil, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &config{
		labels:  make(map[string]string),
		headers: make(map[string]string),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.extractor == nil {
		cfg.extractor = DefaultExtractor
	}
	if cfg.client == nil {
		cfg.client = fetch.NewClient()
	}

	n := &Node{
		Base:      poll.NewBase(Type, name, name, cfg.base...),
		url:       rawURL,
		group:     cfg.group,
		method:    cfg.method,
		labels:    cfg.labels,
		headers:   cfg.headers,
		timeout:   cfg.timeout,
		extractor: cfg.extractor,
		client:    cfg.client,
	}

	var cacheOpts []poll.CacheOption
	if cfg.interval > 0 {
		cacheOpts = append(cacheOpts, poll.WithInterval(cfg.interval))
	}
	n.check = poll.Cached(n.Base, "check", n.fetch, cacheOpts...)
	return n, nil
}

// URL returns the checked URL.
func (n *Node) URL() string { return n.url }

// GroupName returns the check's group, if any.
func (n *Node) GroupName() string { return n.group }

// Labels returns a copy of the check's labels.
func (n *Node) Labels() map[string]string { return maps.Clone(n.labels) }

// Last returns the most recent result, including stale ones.
func (n *Node) Last() (Result, bool) {
	r, _, err := n.check.GetSafe(true)
	return r, err == nil
}

func (n *Node) fetch(ctx context.Context) (Result, error) {
	resp := n.client.Do(ctx, fetch.Request{
		Method:  n.method,
		URL:     n.url,
		Headers: n.headers,
		Timeout: n.timeout,
	})

	res := Result{StatusCode: resp.StatusCode, Latency: resp.Latency}
	if resp.Error != nil {
		res.Status = poll.StatusCritical
		res.Error = resp.Error.Error()
		return res, nil
	}

	status, err := n.safeExtract(resp.Body, resp.StatusCode)
	res.Status = status
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

// safeExtract calls the extractor with panic recovery. A panic is logged with
// its stack under a correlation id and reported as Critical.
func (n *Node) safeExtract(body []byte, statusCode int) (status poll.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			n.Logger().Error("extractor panic",
				"correlation_id", correlationID,
				"node", n.Key(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			status = poll.StatusCritical
			err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
		}
	}()
	return n.extractor(body, statusCode), nil
}

// ComputeStatus combines the cache health with the last check result.
func (n *Node) ComputeStatus() poll.Health {
	base := n.Base.ComputeStatus()
	res, ok := n.Last()
	if !ok {
		return base
	}

	check := poll.Health{Status: res.Status}
	switch {
	case res.Error != "":
		check.Reason = res.Error
	case res.Status != poll.StatusGood && res.StatusCode != 0:
		check.Reason = fmt.Sprintf("HTTP %d", res.StatusCode)
	}
	return poll.Rollup([]poll.Health{base, check})
}
