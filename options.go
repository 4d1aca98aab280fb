package statusboard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jpalmerr/statusboard/poll"
)

// config holds mutable state during Service construction.
type config struct {
	title          string
	nodes          []poll.Node
	tick           time.Duration
	port           int
	maxConcurrency int
	pollTimeout    time.Duration
	rateLimit      float64
	rateBurst      int
	logger         *slog.Logger
	callbacks      []func(StatusResult)
	natsURL        string
	subjectPrefix  string
	natsConn       *nats.Conn
}

// Option configures a [Service] during construction. Options return an
// error if validation fails.
type Option func(*config) error

// WithNodes adds nodes to poll. It can be called multiple times.
func WithNodes(nodes ...poll.Node) Option {
	return func(cfg *config) error {
		for _, n := range nodes {
			if n == nil {
				return errors.New("node cannot be nil")
			}
		}
		cfg.nodes = append(cfg.nodes, nodes...)
		return nil
	}
}

// WithTickInterval sets how often the scheduler scans for due entries.
// Values below one second are raised to one second. Defaults to 2 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTickInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		cfg.tick = d
		return nil
	}
}

// WithPort sets the HTTP port. Zero picks a free port, see [Service.Addr].
// Defaults to 8080.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *config) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets how many entry refreshes run at once. Due entries
// beyond the limit wait for a later tick. Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithPollTimeout bounds how long a waiting on-demand poll blocks before it
// reports a timeout. Defaults to 10 seconds.
func WithPollTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("poll timeout must be positive")
		}
		cfg.pollTimeout = d
		return nil
	}
}

// WithPollRateLimit caps on-demand poll requests on the HTTP API at
// perSecond, allowing bursts of burst requests.
func WithPollRateLimit(perSecond float64, burst int) Option {
	return func(cfg *config) error {
		if perSecond <= 0 || burst <= 0 {
			return errors.New("poll rate limit and burst must be positive")
		}
		cfg.rateLimit = perSecond
		cfg.rateBurst = burst
		return nil
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the title reported by the API.
func WithTitle(title string) Option {
	return func(cfg *config) error {
		cfg.title = title
		return nil
	}
}

// WithStatusCallback registers a function called after every node refresh.
//
// Callbacks run in registration order on the refreshing goroutine, after the
// snapshot store has been updated. They must not block. Panics are recovered
// and logged. Nil callbacks are ignored.
func WithStatusCallback(cb func(StatusResult)) Option {
	return func(cfg *config) error {
		if cb != nil {
			cfg.callbacks = append(cfg.callbacks, cb)
		}
		return nil
	}
}

// WithNATS publishes status transitions to the NATS server at url under
// subjectPrefix (default "statusboard.node"). The connection is made by
// [Service.Start].
func WithNATS(url, subjectPrefix string) Option {
	return func(cfg *config) error {
		if url == "" {
			return errors.New("NATS url cannot be empty")
		}
		cfg.natsURL = url
		cfg.subjectPrefix = subjectPrefix
		return nil
	}
}

// WithNATSConn publishes status transitions over an existing connection.
// The caller keeps ownership of nc.
func WithNATSConn(nc *nats.Conn, subjectPrefix string) Option {
	return func(cfg *config) error {
		if nc == nil {
			return errors.New("NATS connection cannot be nil")
		}
		cfg.natsConn = nc
		cfg.subjectPrefix = subjectPrefix
		return nil
	}
}
