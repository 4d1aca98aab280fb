package poll

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock for due and staleness decisions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testNode is a minimal backend used across the package tests.
type testNode struct {
	*Base
	group string
}

func newTestNode(nodeType, key string, opts ...BaseOption) *testNode {
	opts = append([]BaseOption{WithNodeLogger(testLogger())}, opts...)
	return &testNode{Base: NewBase(nodeType, key, "", opts...)}
}

func (n *testNode) GroupName() string { return n.group }

// constant returns a fetch function that always yields v.
func constant[T any](v T) FetchFunc[T] {
	return func(ctx context.Context) (T, error) { return v, nil }
}
