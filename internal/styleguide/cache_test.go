package styleguide_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/email-mcp/internal/metrics"
	"github.com/hal9000y/email-mcp/internal/styleguide"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type fetcherMock struct {
	GetFunc func(ctx context.Context, url string) (string, error)
	calls   atomic.Int32
}

func (m *fetcherMock) Get(ctx context.Context, url string) (string, error) {
	m.calls.Add(1)
	return m.GetFunc(ctx, url)
}

func contentPerURL() *fetcherMock {
	return &fetcherMock{GetFunc: func(_ context.Context, url string) (string, error) {
		return "guide:" + url, nil
	}}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestFetchHitWithinTTL(t *testing.T) {
	f := contentPerURL()
	clk := newClock()
	m := metrics.New()
	c := styleguide.NewCache(f, time.Hour, styleguide.WithClock(clk), styleguide.WithMetrics(m))

	got, err := c.Fetch(context.Background(), "https://x/guide")
	require.NoError(t, err)
	assert.Equal(t, "guide:https://x/guide", got)

	clk.Advance(59 * time.Minute)
	got, err = c.Fetch(context.Background(), "https://x/guide")
	require.NoError(t, err)
	assert.Equal(t, "guide:https://x/guide", got)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups().WithLabelValues(metrics.CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups().WithLabelValues(metrics.CacheMiss)))
}

func TestFetchRefetchesAfterTTL(t *testing.T) {
	var version atomic.Int32
	f := &fetcherMock{GetFunc: func(context.Context, string) (string, error) {
		if version.Add(1) == 1 {
			return "v1", nil
		}
		return "v2", nil
	}}
	clk := newClock()
	c := styleguide.NewCache(f, time.Hour, styleguide.WithClock(clk))

	got, err := c.Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	clk.Advance(time.Hour)
	got, err = c.Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestFetchOtherURLEvictsSingleSlot(t *testing.T) {
	f := contentPerURL()
	c := styleguide.NewCache(f, time.Hour, styleguide.WithClock(newClock()))

	for _, u := range []string{"a", "b", "a"} {
		got, err := c.Fetch(context.Background(), u)
		require.NoError(t, err)
		assert.Equal(t, "guide:"+u, got)
	}

	assert.Equal(t, int32(3), f.calls.Load())
}

func TestFetchWithCapacityKeepsBoth(t *testing.T) {
	f := contentPerURL()
	clk := newClock()
	c := styleguide.NewCache(f, time.Hour, styleguide.WithClock(clk), styleguide.WithCapacity(2))

	for _, u := range []string{"a", "b", "a", "b"} {
		_, err := c.Fetch(context.Background(), u)
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}
	assert.Equal(t, int32(2), f.calls.Load())

	// "c" evicts "a", the entry fetched first
	_, err := c.Fetch(context.Background(), "c")
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())

	_, err = c.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int32(4), f.calls.Load())
}

func TestFetchFailureLeavesCacheUntouched(t *testing.T) {
	failing := errors.New("connection refused")
	f := &fetcherMock{GetFunc: func(_ context.Context, url string) (string, error) {
		if url == "bad" {
			return "", failing
		}
		return "good content", nil
	}}
	clk := newClock()
	c := styleguide.NewCache(f, time.Hour, styleguide.WithClock(clk))

	_, err := c.Fetch(context.Background(), "good")
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "bad")
	require.Error(t, err)
	require.ErrorIs(t, err, failing)

	var fetchErr *styleguide.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "bad", fetchErr.URL)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "connection refused")

	got, err := c.Fetch(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "good content", got)
	assert.Equal(t, int32(2), f.calls.Load(), "good entry survived the failed fetch")
}

func TestFetchConcurrentMissesShareOneCall(t *testing.T) {
	release := make(chan struct{})
	f := &fetcherMock{GetFunc: func(context.Context, string) (string, error) {
		<-release
		return "shared", nil
	}}
	c := styleguide.NewCache(f, time.Hour)

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(context.Background(), "u")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestFetchCancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := &fetcherMock{GetFunc: func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "shared", nil
	}}
	c := styleguide.NewCache(f, time.Hour)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctxA, "u")
		errA <- err
	}()
	<-started

	type result struct {
		content string
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		content, err := c.Fetch(context.Background(), "u")
		resB <- result{content, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	require.ErrorIs(t, err, context.Canceled)
	var fetchErr *styleguide.FetchError
	require.True(t, errors.As(err, &fetchErr))

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "shared", b.content)
	assert.Equal(t, int32(1), f.calls.Load())

	// the shared result was stored
	got, err := c.Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "shared", got)
	assert.Equal(t, int32(1), f.calls.Load())
}
