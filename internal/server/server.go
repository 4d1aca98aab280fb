package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jpalmerr/statusboard/internal/store"
	"github.com/jpalmerr/statusboard/poll"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultPollTimeout = 10 * time.Second
	defaultTitle       = "Statusboard"
)

// Poller runs on-demand polls and reports scheduler state.
// *poll.Scheduler implements it.
type Poller interface {
	Poll(ctx context.Context, req poll.PollRequest) []poll.PollOutcome
	State() poll.SchedulerState
	LastScan() time.Time
}

// Server serves the statusboard HTTP API.
//
// Routes:
//   - GET  /api/nodes: stored snapshots of every node
//   - GET  /api/nodes/{type}: module rollup with its members
//   - GET  /api/nodes/{type}/{key}: live health and entries of one node
//   - GET  /api/groups/{type}: group rollups
//   - GET  /api/caches: cache diagnostics
//   - POST /api/poll/{type}: poll now and wait for the result
//   - POST /api/poll/{type}/async: poll now in the background
//   - GET  /api/sse: Server-Sent Events stream of snapshot updates
//   - GET  /metrics: Prometheus exposition
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store       store.Store
	registry    *poll.Registry
	poller      Poller
	gatherer    prometheus.Gatherer
	limiter     *rate.Limiter
	port        int
	pollTimeout time.Duration
	title       string
	logger      *slog.Logger

	httpServer *http.Server
	addr       net.Addr
}

// serverConfig holds mutable state during Server construction.
type serverConfig struct {
	port        int
	pollTimeout time.Duration
	title       string
	gatherer    prometheus.Gatherer
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option configures a [Server].
type Option func(*serverConfig)

// WithPort sets the TCP port. Zero picks a free port.
func WithPort(port int) Option {
	return func(cfg *serverConfig) { cfg.port = port }
}

// WithPollTimeout bounds how long a synchronous poll-now request waits.
func WithPollTimeout(d time.Duration) Option {
	return func(cfg *serverConfig) {
		if d > 0 {
			cfg.pollTimeout = d
		}
	}
}

// WithTitle sets the title reported by the API root.
func WithTitle(title string) Option {
	return func(cfg *serverConfig) { cfg.title = title }
}

// WithGatherer sets the registry exposed on /metrics. Without it /metrics
// serves the default Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(cfg *serverConfig) { cfg.gatherer = g }
}

// WithPollRateLimit caps poll-now requests at perSecond with the given
// burst. Requests over the limit get 429.
func WithPollRateLimit(perSecond float64, burst int) Option {
	return func(cfg *serverConfig) {
		if perSecond > 0 && burst > 0 {
			cfg.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serverConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// NewServer creates a [Server]. It is not listening until [Server.Start].
func NewServer(st store.Store, reg *poll.Registry, poller Poller, opts ...Option) *Server {
	cfg := serverConfig{
		pollTimeout: defaultPollTimeout,
		title:       defaultTitle,
		gatherer:    prometheus.DefaultGatherer,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.title == "" {
		cfg.title = defaultTitle
	}

	return &Server{
		store:       st,
		registry:    reg,
		poller:      poller,
		gatherer:    cfg.gatherer,
		limiter:     cfg.limiter,
		port:        cfg.port,
		pollTimeout: cfg.pollTimeout,
		title:       cfg.title,
		logger:      cfg.logger,
	}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/nodes", s.handleNodes)
		r.Get("/nodes/{type}", s.handleModule)
		r.Get("/nodes/{type}/{key}", s.handleNode)
		r.Get("/groups/{type}", s.handleGroups)
		r.Get("/caches", s.handleCaches)
		r.Post("/poll/{type}", s.handlePoll(true))
		r.Post("/poll/{type}/async", s.handlePoll(false))
		r.Get("/sse", s.handleSSE)
	})
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// shuts down gracefully when ctx is cancelled.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address after [Server.Start], or nil.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"title": s.title,
		"types": s.registry.Types(),
		"nodes": s.registry.Len(),
	}, s.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg, RequestID: requestIDFrom(r.Context())}, s.logger)
}
