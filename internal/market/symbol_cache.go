package market

import (
	"context"
	"sync"
	"time"

	"github.com/austin-starks/nexttrade/pkg/errors"
)

// SymbolLoader fetches the full set of currently valid symbols.
type SymbolLoader func(ctx context.Context) ([]string, error)

// SymbolCache is an explicitly owned cache of validated symbols with a
// time-to-live refresh policy checked on access.
type SymbolCache struct {
	loader      SymbolLoader
	ttl         time.Duration
	mu          sync.Mutex
	symbols     map[string]struct{}
	refreshedAt time.Time
	now         func() time.Time
}

// NewSymbolCache creates a cache that reloads symbols through loader once the
// previous load is older than ttl.
func NewSymbolCache(loader SymbolLoader, ttl time.Duration) *SymbolCache {
	return &SymbolCache{
		loader:  loader,
		ttl:     ttl,
		symbols: nil,
		now:     time.Now,
	}
}

// Contains reports whether symbol is a validated symbol, refreshing the cache
// first if it is stale.
func (c *SymbolCache) Contains(ctx context.Context, symbol string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx); err != nil {
		return false, err
	}

	_, ok := c.symbols[symbol]

	return ok, nil
}

// Validate returns a typed error when symbol is not recognized.
func (c *SymbolCache) Validate(ctx context.Context, symbol string) error {
	ok, err := c.Contains(ctx, symbol)
	if err != nil {
		return err
	}

	if !ok {
		return errors.Newf(errors.ErrCodeSymbolNotRecognized, "symbol %s is not a recognized instrument", symbol)
	}

	return nil
}

func (c *SymbolCache) refreshLocked(ctx context.Context) error {
	if c.symbols != nil && c.now().Sub(c.refreshedAt) < c.ttl {
		return nil
	}

	loaded, err := c.loader(ctx)
	if err != nil {
		// Keep serving the previous set if we have one.
		if c.symbols != nil {
			return nil
		}

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to load symbol list", err)
	}

	symbols := make(map[string]struct{}, len(loaded))
	for _, s := range loaded {
		symbols[s] = struct{}{}
	}

	c.symbols = symbols
	c.refreshedAt = c.now()

	return nil
}
