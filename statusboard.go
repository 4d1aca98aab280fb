package statusboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jpalmerr/statusboard/internal/notify"
	"github.com/jpalmerr/statusboard/internal/server"
	"github.com/jpalmerr/statusboard/internal/store"
	"github.com/jpalmerr/statusboard/poll"
)

const (
	defaultTick           = 2 * time.Second
	defaultPort           = 8080
	defaultMaxConcurrency = 10
	defaultPollTimeout    = 10 * time.Second
	publishFlushTimeout   = 2 * time.Second
)

// Service polls a fixed set of nodes and serves their status.
//
// A Service is created with [New] and run with [Service.Start]:
//
//	svc, err := statusboard.New(
//	    statusboard.WithNodes(db, cache, lb1, lb2),
//	    statusboard.WithPort(9090),
//	)
//	if err != nil {
//	    slog.Error("failed to create statusboard", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	svc.Start(ctx) // blocks until ctx is cancelled
//
// Every completed node refresh is written to the snapshot store, published
// to NATS when the status changed, and handed to status callbacks, in that
// order.
type Service struct {
	title          string
	port           int
	tick           time.Duration
	maxConcurrency int
	pollTimeout    time.Duration
	rateLimit      float64
	rateBurst      int
	logger         *slog.Logger
	callbacks      []func(StatusResult)

	natsURL       string
	subjectPrefix string
	publisher     *notify.Publisher

	registry  *poll.Registry
	store     store.Store
	scheduler *poll.Scheduler

	mu      sync.Mutex
	started bool
	addr    string
}

// New creates a [Service] from opts.
//
// At least one node is required. A node whose (type, key) is already taken
// is logged, closed and skipped.
// Defaults: tick 2s, port 8080, max concurrency 10, poll timeout 10s.
func New(opts ...Option) (*Service, error) {
	cfg := &config{
		tick:           defaultTick,
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
		pollTimeout:    defaultPollTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.nodes) == 0 {
		return nil, errors.New("at least one node is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	// overlapping configuration can build a node twice; the first one wins
	registry := poll.NewRegistry()
	for _, n := range cfg.nodes {
		if registry.Register(n) {
			continue
		}
		logger.Warn("skipping duplicate node", "type", n.Type(), "node", n.Key())
		closeNode(n, logger)
	}

	s := &Service{
		title:          cfg.title,
		port:           cfg.port,
		tick:           cfg.tick,
		maxConcurrency: cfg.maxConcurrency,
		pollTimeout:    cfg.pollTimeout,
		rateLimit:      cfg.rateLimit,
		rateBurst:      cfg.rateBurst,
		logger:         logger,
		callbacks:      cfg.callbacks,
		natsURL:        cfg.natsURL,
		subjectPrefix:  cfg.subjectPrefix,
		registry:       registry,
		store:          store.NewMemoryStore(),
	}
	if cfg.natsConn != nil {
		s.publisher = notify.New(cfg.natsConn, cfg.subjectPrefix, logger)
	}
	s.scheduler = poll.NewScheduler(registry,
		poll.WithTick(cfg.tick),
		poll.WithMaxConcurrency(cfg.maxConcurrency),
		poll.WithSchedulerLogger(logger),
		poll.WithUpdateHandler(s.handleUpdate),
	)
	return s, nil
}

// Start runs the scheduler and the HTTP server until ctx is cancelled.
//
// The first scan starts immediately. Start returns nil on graceful shutdown
// and an error if NATS or the HTTP listener cannot be set up. A Service can
// only be started once.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("service already started")
	}
	s.started = true
	s.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}

	s.logger.Info("statusboard starting",
		"node_count", s.registry.Len(),
		"types", s.registry.Types(),
		"tick", s.tick.String(),
	)

	if s.publisher == nil && s.natsURL != "" {
		pub, err := notify.Connect(s.natsURL, s.subjectPrefix, s.logger)
		if err != nil {
			return err
		}
		s.publisher = pub
		defer pub.Close()
	}

	metrics := prometheus.NewRegistry()
	if err := poll.RegisterMetrics(metrics); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	metrics.MustRegister(collectors.NewGoCollector())

	srvOpts := []server.Option{
		server.WithPort(s.port),
		server.WithPollTimeout(s.pollTimeout),
		server.WithTitle(s.title),
		server.WithGatherer(metrics),
		server.WithLogger(s.logger),
	}
	if s.rateLimit > 0 {
		srvOpts = append(srvOpts, server.WithPollRateLimit(s.rateLimit, s.rateBurst))
	}
	httpServer := server.NewServer(s.store, s.registry, s.scheduler, srvOpts...)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.mu.Lock()
	s.addr = httpServer.Addr().String()
	s.mu.Unlock()
	s.logger.Info("api available", "addr", s.addr)

	s.scheduler.Start(ctx)

	<-ctx.Done()
	s.scheduler.Stop()
	if s.publisher != nil {
		if err := s.publisher.Flush(publishFlushTimeout); err != nil {
			s.logger.Warn("failed to flush status events", "error", err)
		}
	}
	s.logger.Info("statusboard stopped")
	return nil
}

// PollNow refreshes the given nodes of nodeType on demand. With no keys every
// node of the type is polled. When wait is set it blocks until the polls
// finish or the poll timeout elapses.
func (s *Service) PollNow(ctx context.Context, nodeType string, keys []string, wait bool) []poll.PollOutcome {
	if len(keys) == 0 {
		for _, n := range s.registry.AllOfType(nodeType) {
			keys = append(keys, n.Key())
		}
	}
	return s.scheduler.Poll(ctx, poll.PollRequest{
		Type:    nodeType,
		Keys:    keys,
		Wait:    wait,
		Timeout: s.pollTimeout,
	})
}

// Registry returns the node registry.
func (s *Service) Registry() *poll.Registry { return s.registry }

// Snapshots returns the stored status of every node that has completed a
// refresh, ordered by type then key.
func (s *Service) Snapshots() []store.NodeSnapshot { return s.store.GetAll() }

// Port returns the configured HTTP port.
func (s *Service) Port() int { return s.port }

// Addr returns the bound listen address once [Service.Start] is serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Tick returns the scheduler scan period.
func (s *Service) Tick() time.Duration { return s.scheduler.Tick() }

// labeled is implemented by nodes that carry labels.
type labeled interface {
	Labels() map[string]string
}

// handleUpdate fans a completed refresh out to the store, NATS and callbacks.
func (s *Service) handleUpdate(u poll.NodeUpdate) {
	snap := store.NodeSnapshot{
		Type:      u.Node.Type(),
		Key:       u.Node.Key(),
		Name:      u.Node.Name(),
		Status:    u.Health.Status.String(),
		Reason:    u.Health.Reason,
		UpdatedAt: u.At,
	}
	if gm, ok := u.Node.(poll.GroupMember); ok {
		snap.Group = gm.GroupName()
	}
	if l, ok := u.Node.(labeled); ok {
		snap.Labels = l.Labels()
	}

	prev, existed := s.store.Update(snap)
	previous := poll.StatusUnknown
	if existed {
		if p, err := poll.ParseStatus(prev.Status); err == nil {
			previous = p
		}
	}

	if s.publisher != nil {
		ev := notify.Event{
			Type:     snap.Type,
			Key:      snap.Key,
			Name:     snap.Name,
			Previous: previous.String(),
			Status:   snap.Status,
			Reason:   snap.Reason,
			At:       snap.UpdatedAt,
		}
		if _, err := s.publisher.Publish(ev); err != nil {
			s.logger.Warn("failed to publish status change",
				"type", snap.Type,
				"node", snap.Key,
				"error", err,
			)
		}
	}

	if len(s.callbacks) > 0 {
		result := StatusResult{
			Type:          snap.Type,
			Key:           snap.Key,
			Name:          snap.Name,
			Group:         snap.Group,
			Status:        u.Health.Status,
			Previous:      previous,
			Reason:        u.Health.Reason,
			CheckedAt:     u.At,
			OnDemand:      u.OnDemand,
			CorrelationID: u.CorrelationID,
		}
		for _, cb := range s.callbacks {
			// each callback gets its own labels
			result.Labels = maps.Clone(snap.Labels)
			invokeCallbackSafe(cb, result, s.logger)
		}
	}

	logAttrs := []any{
		"type", snap.Type,
		"node", snap.Key,
		"status", snap.Status,
	}
	if previous != u.Health.Status {
		s.logger.Info("node status changed", append(logAttrs, "previous", previous.String(), "reason", snap.Reason)...)
	} else {
		s.logger.Debug("node refreshed", logAttrs...)
	}
}

// closeNode releases the client of a node that owns one.
func closeNode(n poll.Node, logger *slog.Logger) {
	switch c := n.(type) {
	case interface{ Close() }:
		c.Close()
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			logger.Warn("failed to close node", "type", n.Type(), "node", n.Key(), "error", err)
		}
	}
}

// invokeCallbackSafe calls a status callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(StatusResult), result StatusResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status callback panicked",
				"panic", r,
				"type", result.Type,
				"node", result.Key,
			)
		}
	}()
	cb(result)
}
