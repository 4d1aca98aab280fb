package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	defaultTick           = 2 * time.Second
	minTick               = time.Second
	defaultMaxConcurrency = 10
)

// SchedulerState is the phase of the scheduling loop.
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateScanning
	StateDispatching
)

func (s SchedulerState) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateDispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// NodeUpdate is delivered to the update handler after a node's entries
// change, from either the scheduled or the on-demand path.
type NodeUpdate struct {
	Node          Node
	Health        Health
	At            time.Time
	OnDemand      bool
	CorrelationID string
}

// DueEntry pairs an entry with the node that owns it.
type DueEntry struct {
	Node  Node
	Entry Entry
}

// PollResult classifies the outcome of an on-demand poll of one key.
type PollResult string

const (
	PollPolled   PollResult = "polled"
	PollQueued   PollResult = "queued"
	PollNotFound PollResult = "not_found"
	PollTimeout  PollResult = "timeout"
	PollFailed   PollResult = "failed"
)

// PollRequest is a user-triggered refresh of one or more nodes of one type.
type PollRequest struct {
	Type          string
	Keys          []string
	CorrelationID string

	// Wait blocks until the polls finish or Timeout passes. Without Wait the
	// polls are queued and Poll returns immediately.
	Wait    bool
	Timeout time.Duration
}

// PollOutcome is the result of polling one key of a [PollRequest].
type PollOutcome struct {
	Key    string     `json:"key"`
	Result PollResult `json:"result"`
	Error  string     `json:"error,omitempty"`
	Err    error      `json:"-"`
}

// Scheduler refreshes every due entry of every registered node on a fixed
// tick, under a bounded concurrency budget, and serves on-demand polls.
//
// Each tick scans the registry for entries that are supported, idle and past
// their interval. Entries are dispatched while the budget has room; the rest
// are picked up again by the next scan, so no entry waits forever and no
// unbounded backlog builds up behind a slow backend.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	registry       *Registry
	tick           time.Duration
	maxConcurrency int
	sem            *semaphore.Weighted
	logger         *slog.Logger
	now            func() time.Time
	onUpdate       func(NodeUpdate)

	state    atomic.Int32
	lastScan atomic.Int64

	// life outlives Start's context; Stop cancels it to release on-demand waiters
	life       context.Context
	cancelLife context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	bg      sync.WaitGroup

	// notifyMu holds one *sync.Mutex per lower-cased "type/key"
	notifyMu sync.Map
}

// schedulerConfig holds mutable state during Scheduler construction.
type schedulerConfig struct {
	tick           time.Duration
	maxConcurrency int
	logger         *slog.Logger
	now            func() time.Time
	onUpdate       func(NodeUpdate)
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*schedulerConfig)

// WithTick sets the scan period. Values below one second are raised to one
// second to avoid spinning. Defaults to 2 seconds.
func WithTick(d time.Duration) SchedulerOption {
	return func(cfg *schedulerConfig) {
		cfg.tick = d
	}
}

// WithMaxConcurrency sets how many refreshes the scheduler runs at once.
// Defaults to 10.
func WithMaxConcurrency(n int) SchedulerOption {
	return func(cfg *schedulerConfig) {
		if n > 0 {
			cfg.maxConcurrency = n
		}
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(cfg *schedulerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSchedulerClock replaces time.Now for due decisions.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(cfg *schedulerConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithUpdateHandler registers the function called after each node refresh.
// It runs on the refreshing goroutine and must not block; panics are
// recovered and logged.
func WithUpdateHandler(fn func(NodeUpdate)) SchedulerOption {
	return func(cfg *schedulerConfig) {
		cfg.onUpdate = fn
	}
}

// NewScheduler creates a [Scheduler] over reg. It must be started with
// [Scheduler.Start] and stopped with [Scheduler.Stop]; on-demand polls work
// before Start as well.
func NewScheduler(reg *Registry, opts ...SchedulerOption) *Scheduler {
	cfg := schedulerConfig{
		tick:           defaultTick,
		maxConcurrency: defaultMaxConcurrency,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tick < minTick {
		cfg.tick = minTick
	}

	life, cancelLife := context.WithCancel(context.Background())
	return &Scheduler{
		registry:       reg,
		tick:           cfg.tick,
		maxConcurrency: cfg.maxConcurrency,
		sem:            semaphore.NewWeighted(int64(cfg.maxConcurrency)),
		logger:         cfg.logger,
		now:            cfg.now,
		onUpdate:       cfg.onUpdate,
		life:           life,
		cancelLife:     cancelLife,
	}
}

// Registry returns the registry the scheduler scans.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Tick returns the scan period.
func (s *Scheduler) Tick() time.Duration {
	return s.tick
}

// State returns the current phase of the loop.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// LastScan returns when the last scan started, or the zero time.
func (s *Scheduler) LastScan() time.Time {
	ns := s.lastScan.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Start begins the scheduling loop in a background goroutine.
//
// The loop scans once immediately, then on every tick, until [Scheduler.Stop]
// is called or ctx is cancelled. Start is idempotent; after Stop it is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		s.runOnce(loopCtx)

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.runOnce(loopCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for dispatched refreshes and queued
// on-demand polls to return. Fetches that are still running keep going in
// the background and update their entries when they finish.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
		s.cancelLife()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.bg.Wait()
}

// runOnce performs one scan and dispatch cycle.
func (s *Scheduler) runOnce(ctx context.Context) {
	now := s.now()
	s.lastScan.Store(now.UnixNano())

	s.state.Store(int32(StateScanning))
	due := s.Due(now)

	s.state.Store(int32(StateDispatching))
	dispatched := s.dispatch(ctx, due)

	s.state.Store(int32(StateIdle))

	if deferred := len(due) - dispatched; deferred > 0 {
		s.logger.Debug("concurrency budget exhausted",
			"dispatched", dispatched,
			"deferred", deferred,
		)
	}
}

// Due returns the entries that a scan at now would dispatch, in registry
// order.
func (s *Scheduler) Due(now time.Time) []DueEntry {
	var due []DueEntry
	for _, n := range s.registry.All() {
		for _, e := range n.DataPollers() {
			if !e.Supported() || e.InFlight() || !e.Due(now) {
				continue
			}
			due = append(due, DueEntry{Node: n, Entry: e})
		}
	}
	return due
}

// dispatch starts refreshes while the budget allows and returns how many
// were started. The loop goroutine holds a wg slot, so Add here cannot race
// with Stop's Wait.
func (s *Scheduler) dispatch(ctx context.Context, due []DueEntry) int {
	started := 0
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		if !s.sem.TryAcquire(1) {
			break
		}
		started++
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.refresh(ctx, d)
		}()
	}
	return started
}

// refresh brings one entry up to date and reports the owning node.
func (s *Scheduler) refresh(ctx context.Context, d DueEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler worker panic",
				"panic", fmt.Sprintf("%v", r),
				"entry", d.Entry.Key(),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := d.Entry.EnsureFresh(ctx, false); err != nil && ctx.Err() != nil {
		return
	}
	s.notify(d.Node, false, "")
}

// Poll runs an on-demand poll of every key in req, bypassing entry intervals
// and node throttles. Keys are polled concurrently and outcomes are returned
// in key order. Unknown keys yield [PollNotFound] rather than an error.
func (s *Scheduler) Poll(ctx context.Context, req PollRequest) []PollOutcome {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	outcomes := make([]PollOutcome, len(req.Keys))
	var wg sync.WaitGroup
	for i, key := range req.Keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = s.pollOne(ctx, req, key)
		}()
	}
	wg.Wait()
	return outcomes
}

// PollNode polls one node on demand. It returns an error wrapping
// [ErrNotFound], [ErrTimeout] or the first fetch error.
func (s *Scheduler) PollNode(ctx context.Context, nodeType, key string, wait bool, timeout time.Duration) error {
	out := s.Poll(ctx, PollRequest{
		Type:    nodeType,
		Keys:    []string{key},
		Wait:    wait,
		Timeout: timeout,
	})
	return out[0].Err
}

func (s *Scheduler) pollOne(ctx context.Context, req PollRequest, key string) PollOutcome {
	node := s.registry.Find(req.Type, key)
	if node == nil {
		err := fmt.Errorf("%w: %s/%s", ErrNotFound, req.Type, key)
		return outcome(key, PollNotFound, err)
	}

	s.logger.Info("on-demand poll",
		"type", node.Type(),
		"node", node.Key(),
		"correlation_id", req.CorrelationID,
		"wait", req.Wait,
	)

	if !req.Wait {
		if s.background(context.WithoutCancel(ctx), node, req.CorrelationID) == nil {
			return outcome(key, PollFailed, errors.New("scheduler stopped"))
		}
		return outcome(key, PollQueued, nil)
	}

	pollCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// the poll outlives pollCtx so a timed out request still lands
	done := s.background(context.WithoutCancel(ctx), node, req.CorrelationID)
	if done == nil {
		return outcome(key, PollFailed, errors.New("scheduler stopped"))
	}
	select {
	case err := <-done:
		if err != nil {
			return outcome(key, PollFailed, err)
		}
		return outcome(key, PollPolled, nil)
	case <-pollCtx.Done():
		if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
			return outcome(key, PollTimeout, fmt.Errorf("%w: %s/%s", ErrTimeout, node.Type(), node.Key()))
		}
		return outcome(key, PollFailed, pollCtx.Err())
	}
}

// pollNow force-polls node and reports it, unless ctx ended first.
func (s *Scheduler) pollNow(ctx context.Context, node Node, correlationID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("node poll panic",
				"correlation_id", correlationID,
				"type", node.Type(),
				"node", node.Key(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = &PanicError{CorrelationID: correlationID, Value: r}
		}
	}()

	err = node.Poll(ctx, true)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.notify(node, true, correlationID)
	return err
}

// background polls node once on a goroutine tied to the scheduler's lifetime
// and returns a channel that receives the result. Stop cancels the poll.
// It returns nil once the scheduler has been stopped.
func (s *Scheduler) background(ctx context.Context, node Node, correlationID string) <-chan error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.bg.Add(1)
	s.mu.Unlock()

	pollCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.life, cancel)

	done := make(chan error, 1)
	go func() {
		defer s.bg.Done()
		defer cancel()
		defer stop()

		err := s.pollNow(pollCtx, node, correlationID)
		if err != nil && s.life.Err() == nil {
			s.logger.Warn("on-demand poll failed",
				"type", node.Type(),
				"node", node.Key(),
				"correlation_id", correlationID,
				"error", err.Error(),
			)
		}
		done <- err
	}()
	return done
}

// nodeLock returns the mutex that orders updates for node.
func (s *Scheduler) nodeLock(node Node) *sync.Mutex {
	mu, _ := s.notifyMu.LoadOrStore(strings.ToLower(node.Type()+"/"+node.Key()), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// notify computes the node's health and hands it to the update handler.
// Updates for one node are computed and delivered in order, so a slower
// earlier computation never overwrites a newer one.
func (s *Scheduler) notify(node Node, onDemand bool, correlationID string) {
	if s.onUpdate == nil {
		return
	}
	mu := s.nodeLock(node)
	mu.Lock()
	defer mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("update handler panicked",
				"panic", r,
				"type", node.Type(),
				"node", node.Key(),
			)
		}
	}()

	s.onUpdate(NodeUpdate{
		Node:          node,
		Health:        node.ComputeStatus(),
		At:            s.now(),
		OnDemand:      onDemand,
		CorrelationID: correlationID,
	})
}

func outcome(key string, result PollResult, err error) PollOutcome {
	o := PollOutcome{Key: key, Result: result, Err: err}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}
