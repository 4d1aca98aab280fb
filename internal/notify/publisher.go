package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "statusboard.node"

// Event is a node status transition.
type Event struct {
	Type     string    `json:"type"`
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Previous string    `json:"previous"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Changed reports whether the event is a real transition.
func (e Event) Changed() bool {
	return !strings.EqualFold(e.Previous, e.Status)
}

// Publisher publishes node status transitions to NATS.
type Publisher struct {
	nc     *nats.Conn
	owned  bool
	prefix string
	logger *slog.Logger
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Connect dials url and returns a Publisher that owns the connection.
// Disconnects and reconnects are logged; publishing while disconnected is
// buffered by the client.
func Connect(url, prefix string, logger *slog.Logger, opts ...nats.Option) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	all := []nats.Option{
		nats.Name("statusboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	all = append(all, opts...)

	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := New(nc, prefix, logger)
	p.owned = true
	return p, nil
}

// Subject returns the subject events for (nodeType, key) are published on.
func (p *Publisher) Subject(nodeType, key string) string {
	return Subject(p.prefix, nodeType, key)
}

// Subject builds "<prefix>.<type>.<key>", replacing characters that are not
// valid inside a subject token.
func Subject(prefix, nodeType, key string) string {
	return prefix + "." + token(nodeType) + "." + token(key)
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(strings.ToLower(s))
}

// Publish sends ev if it is a transition and reports whether it was sent.
func (p *Publisher) Publish(ev Event) (bool, error) {
	if !ev.Changed() {
		return false, nil
	}
	if p == nil || p.nc == nil {
		return false, errors.New("nats publisher not connected")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("failed to marshal status event: %w", err)
	}

	subject := p.Subject(ev.Type, ev.Key)
	if err := p.nc.Publish(subject, data); err != nil {
		return false, fmt.Errorf("failed to publish status event: %w", err)
	}

	p.logger.Debug("status event published",
		"subject", subject,
		"previous", ev.Previous,
		"status", ev.Status,
	)
	return true, nil
}

// Flush waits for the server to acknowledge everything published so far.
func (p *Publisher) Flush(timeout time.Duration) error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.FlushTimeout(timeout)
}

// Close drains and closes the connection if the publisher owns it.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil || !p.owned {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
