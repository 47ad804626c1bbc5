// Package styleguide fetches style guide documents by URL and keeps them for a fixed time.
package styleguide

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hal9000y/email-mcp/internal/metrics"
)

// Clock abstracts time for TTL checks.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// FetchError is returned when a style guide could not be retrieved.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type entry struct {
	content   string
	url       string
	fetchedAt time.Time
}

type Option func(*Cache)

// WithCapacity sets how many URLs are kept. Storing beyond it evicts the
// entry fetched longest ago. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithClock(clk Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache keeps fetched style guides in memory for ttl. By default it holds a
// single URL: fetching another one replaces the stored entry.
type Cache struct {
	fetcher fetcher
	ttl     time.Duration
	clock   Clock
	metrics *metrics.Metrics
	group   singleflight.Group

	mu       sync.Mutex
	capacity int
	entries  map[string]entry
}

func NewCache(f fetcher, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  f,
		ttl:      ttl,
		clock:    realClock{},
		capacity: 1,
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the style guide at url, from memory when it was fetched less
// than ttl ago. A failed fetch leaves the cache as it was.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	if content, ok := c.lookup(url); ok {
		c.metrics.CacheLookup(true)
		return content, nil
	}
	c.metrics.CacheLookup(false)

	// the flight is shared, so it must outlive the caller that started it
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		// a flight that finished while we waited may have stored it
		if content, ok := c.lookup(url); ok {
			return content, nil
		}

		content, err := c.fetcher.Get(flightCtx, url)
		if err != nil {
			return "", err
		}

		c.store(url, content)
		return content, nil
	})

	select {
	case <-ctx.Done():
		return "", &FetchError{URL: url, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", &FetchError{URL: url, Err: res.Err}
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) lookup(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok || c.clock.Now().Sub(e.fetchedAt) >= c.ttl {
		return "", false
	}

	return e.content, true
}

func (c *Cache) store(url, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[url]; !ok {
		for len(c.entries) >= c.capacity {
			c.evictOldest()
		}
	}

	c.entries[url] = entry{
		content:   content,
		url:       url,
		fetchedAt: c.clock.Now(),
	}
}

func (c *Cache) evictOldest() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.fetchedAt.Before(at) {
			oldest, at, found = k, e.fetchedAt, true
		}
	}
	delete(c.entries, oldest)
}
