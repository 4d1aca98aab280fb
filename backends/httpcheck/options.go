package httpcheck

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/statusboard/internal/fetch"
	"github.com/jpalmerr/statusboard/poll"
)

const (
	defaultTimeout = 10 * time.Second
	minInterval    = time.Second
	maxInterval    = time.Hour
)

// config holds mutable state during Node construction.
type config struct {
	group     string
	labels    map[string]string
	headers   map[string]string
	timeout   time.Duration
	extractor Extractor
	method    string
	interval  time.Duration
	client    *fetch.Client
	base      []poll.BaseOption
}

// Option configures a [Node] during construction. Options return an error if
// validation fails.
type Option func(*config) error

// WithLabels adds key-value labels, passed as alternating keys and values.
func WithLabels(keyValues ...string) Option {
	return func(cfg *config) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithHeaders adds request headers, passed as alternating names and values.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *config) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithExtractor sets how responses are turned into a status. Nil keeps
// [DefaultExtractor].
func WithExtractor(e Extractor) Option {
	return func(cfg *config) error {
		cfg.extractor = e
		return nil
	}
}

// WithMethod sets the HTTP method: GET, HEAD or POST. Defaults to GET.
func WithMethod(method string) Option {
	return func(cfg *config) error {
		m := strings.ToUpper(method)
		switch m {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = m
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithInterval sets how often the check runs, between 1 second and 1 hour.
// Zero keeps the node's cache default.
func WithInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d == 0 {
			return nil
		}
		if d < minInterval {
			return errors.New("interval must be at least 1 second")
		}
		if d > maxInterval {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}

// WithGroup places the check in a named group.
func WithGroup(name string) Option {
	return func(cfg *config) error {
		cfg.group = name
		return nil
	}
}

// WithClient shares an HTTP client between checks.
func WithClient(c *fetch.Client) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("client cannot be nil")
		}
		cfg.client = c
		return nil
	}
}

// WithBaseOptions passes options through to the node's [poll.Base].
func WithBaseOptions(opts ...poll.BaseOption) Option {
	return func(cfg *config) error {
		cfg.base = append(cfg.base, opts...)
		return nil
	}
}
