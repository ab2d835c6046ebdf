package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/austin-starks/nexttrade/internal/types"
)

// CachedProvider wraps a Provider and memoizes repeated queries. Many
// concurrent runs over the same calendar window hit identical history and
// snapshot queries, so this cuts provider round trips dramatically.
type CachedProvider struct {
	underlying    Provider
	historyCache  map[string][]types.Bar
	historyErrs   map[string]error
	snapshotCache map[string]types.PriceSnapshot
	snapshotErrs  map[string]error
	mu            sync.RWMutex
}

// NewCachedProvider creates a CachedProvider wrapping the given Provider.
func NewCachedProvider(underlying Provider) *CachedProvider {
	return &CachedProvider{
		underlying:    underlying,
		historyCache:  make(map[string][]types.Bar),
		historyErrs:   make(map[string]error),
		snapshotCache: make(map[string]types.PriceSnapshot),
		snapshotErrs:  make(map[string]error),
	}
}

// ClearCache drops all memoized entries.
func (c *CachedProvider) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyCache = make(map[string][]types.Bar)
	c.historyErrs = make(map[string]error)
	c.snapshotCache = make(map[string]types.PriceSnapshot)
	c.snapshotErrs = make(map[string]error)
}

// GetMarketHistory implements Provider with caching.
func (c *CachedProvider) GetMarketHistory(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	key := fmt.Sprintf("%s|%d|%d", symbol, start.UnixNano(), end.UnixNano())

	c.mu.RLock()
	if bars, ok := c.historyCache[key]; ok {
		err := c.historyErrs[key]
		c.mu.RUnlock()

		return bars, err
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock
	if bars, ok := c.historyCache[key]; ok {
		return bars, c.historyErrs[key]
	}

	bars, err := c.underlying.GetMarketHistory(ctx, symbol, start, end)
	c.historyCache[key] = bars
	c.historyErrs[key] = err

	return bars, err
}

// GetBacktestPrices implements Provider with caching. Misses are cached too:
// a holiday stays a holiday no matter how many runs probe it.
func (c *CachedProvider) GetBacktestPrices(ctx context.Context, t time.Time, interval types.Interval) (types.PriceSnapshot, error) {
	key := fmt.Sprintf("%d|%s", t.UnixNano(), interval)

	c.mu.RLock()
	if snapshot, ok := c.snapshotCache[key]; ok {
		err := c.snapshotErrs[key]
		c.mu.RUnlock()

		return snapshot, err
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if snapshot, ok := c.snapshotCache[key]; ok {
		return snapshot, c.snapshotErrs[key]
	}

	snapshot, err := c.underlying.GetBacktestPrices(ctx, t, interval)
	c.snapshotCache[key] = snapshot
	c.snapshotErrs[key] = err

	return snapshot, err
}
