package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache[T any](clock *fakeClock, fetch FetchFunc[T], opts ...CacheOption) *Cache[T] {
	opts = append([]CacheOption{WithCacheLogger(testLogger()), WithCacheClock(clock.Now)}, opts...)
	return NewCache("sql", "db1", "version", fetch, opts...)
}

// TestCache_Defaults verifies the stale window and retry interval derive from
// the refresh interval.
func TestCache_Defaults(t *testing.T) {
	c := newTestCache(newFakeClock(), constant(1), WithInterval(10*time.Second))
	info := c.Info()

	assert.Equal(t, "sql/db1/version", info.Key)
	assert.Equal(t, 10*time.Second, info.Interval)
	assert.Equal(t, 20*time.Second, info.StaleAfter)
	assert.Equal(t, 10*time.Second, c.retryInterval)

	d := NewCache("sql", "db1", "x", constant(1))
	assert.Equal(t, defaultCacheInterval, d.Interval())
	assert.Equal(t, DefaultFetchTimeout, d.timeout)
}

// TestCache_GetSafeBeforeFetch verifies reads never trigger a fetch and report
// the value as not available.
func TestCache_GetSafeBeforeFetch(t *testing.T) {
	var calls atomic.Int32
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	})

	_, _, err := c.GetSafe(true)
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.Zero(t, calls.Load())

	h := c.Health()
	assert.Equal(t, StatusUnknown, h.Status)
}

// TestCache_SingleFlight verifies that concurrent refreshes of one entry run
// the fetch function exactly once and all callers see its result.
func TestCache_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	})

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.EnsureFresh(context.Background(), false)
		}()
	}

	require.Eventually(t, c.InFlight, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.NoError(t, err)
	}
	v, stale, err := c.GetSafe(false)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, 42, v)
}

// TestCache_ForceJoinsInFlight verifies a forced refresh joins the running
// one instead of starting a second fetch.
func TestCache_ForceJoinsInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 1, nil
	})

	done := make(chan error, 2)
	go func() { done <- c.EnsureFresh(context.Background(), false) }()
	require.Eventually(t, c.InFlight, time.Second, time.Millisecond)
	go func() { done <- c.EnsureFresh(context.Background(), true) }()

	close(release)
	assert.NoError(t, <-done)
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

// TestCache_DueSchedule walks the 10 second interval scenario: due before the
// first poll, not due 5 seconds after it, due again after 11.
func TestCache_DueSchedule(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, constant("15.4"), WithInterval(10*time.Second))

	assert.True(t, c.Due(clock.Now()))
	require.NoError(t, c.EnsureFresh(context.Background(), false))

	clock.Advance(5 * time.Second)
	assert.False(t, c.Due(clock.Now()))

	// not due means not refetched
	require.NoError(t, c.EnsureFresh(context.Background(), false))
	assert.Equal(t, int64(1), c.Info().Polls)

	clock.Advance(6 * time.Second)
	assert.True(t, c.Due(clock.Now()))
}

// TestCache_FailureKeepsValue verifies a failed fetch records the error but
// keeps the previous value and its timestamp.
func TestCache_FailureKeepsValue(t *testing.T) {
	clock := newFakeClock()
	fail := errors.New("connection refused")
	var broken atomic.Bool
	c := newTestCache(clock, func(ctx context.Context) (string, error) {
		if broken.Load() {
			return "", fail
		}
		return "v1", nil
	}, WithInterval(10*time.Second))

	require.NoError(t, c.EnsureFresh(context.Background(), false))
	firstSuccess := c.Info().LastSuccess

	clock.Advance(3 * time.Second)
	broken.Store(true)
	err := c.EnsureFresh(context.Background(), true)
	assert.ErrorIs(t, err, fail)

	v, stale, err := c.GetSafe(false)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.False(t, stale)

	info := c.Info()
	assert.Equal(t, firstSuccess, info.LastSuccess)
	assert.Equal(t, "connection refused", info.LastError)
	assert.Equal(t, int64(2), info.Polls)
	assert.Equal(t, int64(1), info.Failures)
	assert.Equal(t, StatusWarning, info.Health.Status)
	assert.Contains(t, info.Health.Reason, "last poll failed")
}

// TestCache_RetryInterval verifies failed entries come due on the retry
// interval rather than the refresh interval.
func TestCache_RetryInterval(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	}, WithInterval(time.Minute), WithRetryInterval(5*time.Second))

	_ = c.EnsureFresh(context.Background(), false)

	clock.Advance(4 * time.Second)
	assert.False(t, c.Due(clock.Now()))
	clock.Advance(time.Second)
	assert.True(t, c.Due(clock.Now()))
}

// TestCache_Stale verifies values turn stale after the stale window and are
// only returned when stale reads are allowed.
func TestCache_Stale(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, constant(7), WithInterval(10*time.Second))
	require.NoError(t, c.EnsureFresh(context.Background(), false))

	clock.Advance(20 * time.Second)
	_, stale, err := c.GetSafe(false)
	require.NoError(t, err)
	assert.False(t, stale, "exactly at the window is still fresh")

	clock.Advance(time.Second)
	_, stale, err = c.GetSafe(false)
	assert.ErrorIs(t, err, ErrStale)
	assert.True(t, stale)

	v, stale, err := c.GetSafe(true)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, 7, v)

	h := c.Health()
	assert.Equal(t, StatusWarning, h.Status)
	assert.Contains(t, h.Reason, "stale")
}

// TestCache_CriticalWithoutValue verifies an entry that never succeeded and
// has an error is Critical.
func TestCache_CriticalWithoutValue(t *testing.T) {
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		return 0, errors.New("auth failed")
	})
	_ = c.EnsureFresh(context.Background(), false)

	h := c.Health()
	assert.Equal(t, StatusCritical, h.Status)
	assert.Equal(t, "version: auth failed", h.Reason)

	_, _, err := c.GetSafe(true)
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.ErrorContains(t, err, "auth failed")
}

// TestCache_PanicRecovery verifies a panicking fetch is reported as a failure
// with a correlation id and leaves the prior value untouched.
func TestCache_PanicRecovery(t *testing.T) {
	clock := newFakeClock()
	var explode atomic.Bool
	c := newTestCache(clock, func(ctx context.Context) (int, error) {
		if explode.Load() {
			panic("simulated failure")
		}
		return 5, nil
	})
	require.NoError(t, c.EnsureFresh(context.Background(), false))

	explode.Store(true)
	err := c.EnsureFresh(context.Background(), true)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.NotEmpty(t, pe.CorrelationID)
	assert.Equal(t, "simulated failure", pe.Value)
	assert.Contains(t, err.Error(), "correlation_id")

	v, stale, err := c.GetSafe(false)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, 5, v)
	assert.False(t, c.InFlight())
}

// TestCache_CallerCancellation verifies a cancelled caller returns early while
// the fetch finishes and updates the entry.
func TestCache_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		<-release
		return 9, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.EnsureFresh(ctx, false) }()

	require.Eventually(t, c.InFlight, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, c.InFlight())

	close(release)
	require.Eventually(t, func() bool { return !c.InFlight() }, time.Second, time.Millisecond)

	v, _, err := c.GetSafe(false)
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

// TestCache_FetchTimeout verifies the fetch context carries the configured
// deadline.
func TestCache_FetchTimeout(t *testing.T) {
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, WithFetchTimeout(20*time.Millisecond))

	err := c.EnsureFresh(context.Background(), false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusCritical, c.Health().Status)
}

// TestCache_DefaultFetchDeadline verifies a fetch gets a deadline even when
// no timeout is configured.
func TestCache_DefaultFetchDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		deadline, ok = ctx.Deadline()
		return 1, nil
	})

	before := time.Now()
	require.NoError(t, c.EnsureFresh(context.Background(), false))
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(DefaultFetchTimeout), deadline, 5*time.Second)
}

// TestCache_Unsupported verifies unsupported entries are never fetched.
func TestCache_Unsupported(t *testing.T) {
	var calls atomic.Int32
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}, WithSupport(func() bool { return false }))

	assert.NoError(t, c.EnsureFresh(context.Background(), true))
	assert.Zero(t, calls.Load())
	assert.False(t, c.Supported())

	info := c.Info()
	assert.False(t, info.Supported)
	assert.Equal(t, StatusUnknown, info.Health.Status)
	assert.Contains(t, info.Health.Reason, "not supported")
}

// TestCache_Set verifies Set stores a fresh value and clears the error.
func TestCache_Set(t *testing.T) {
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	_ = c.EnsureFresh(context.Background(), false)

	c.Set(3)
	v, _, err := c.GetSafe(false)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, StatusGood, c.Health().Status)
}

// TestCache_Totals verifies process-wide counters move with refreshes.
func TestCache_Totals(t *testing.T) {
	before := CacheTotals()
	c := newTestCache(newFakeClock(), func(ctx context.Context) (int, error) {
		return 0, errors.New("x")
	})
	_ = c.EnsureFresh(context.Background(), false)

	after := CacheTotals()
	assert.GreaterOrEqual(t, after.Polls-before.Polls, int64(1))
	assert.GreaterOrEqual(t, after.Failures-before.Failures, int64(1))
}
