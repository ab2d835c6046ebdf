package market

import (
	"context"
	"sort"
	"time"

	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// Provider supplies historical OHLCV bars and point-in-time price snapshots
// to a backtest run. A snapshot miss returns an ErrCodeSnapshotMissing error;
// the backtester interprets that as "market closed" rather than a failure.
type Provider interface {
	// GetMarketHistory returns the ordered bars for a symbol in [start, end].
	GetMarketHistory(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error)
	// GetBacktestPrices returns the price snapshot at the given simulated
	// timestamp, or an ErrCodeSnapshotMissing error when no data exists.
	GetBacktestPrices(ctx context.Context, t time.Time, interval types.Interval) (types.PriceSnapshot, error)
}

// HistoryProvider serves bars and snapshots from an in-memory MarketHistory.
// The map is read-only after construction, so a single HistoryProvider can
// back many concurrent runs.
type HistoryProvider struct {
	history types.MarketHistory
}

// NewHistoryProvider creates a provider over the given history map.
func NewHistoryProvider(history types.MarketHistory) *HistoryProvider {
	return &HistoryProvider{history: history}
}

// History returns the underlying history map. Callers that want to mutate it
// must clone first.
func (p *HistoryProvider) History() types.MarketHistory {
	return p.history
}

// GetMarketHistory implements Provider.
func (p *HistoryProvider) GetMarketHistory(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	bars, ok := p.history[symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no market history for symbol %s", symbol)
	}

	filtered := make([]types.Bar, 0, len(bars))

	for _, bar := range bars {
		if bar.Time.Before(start) || bar.Time.After(end) {
			continue
		}

		filtered = append(filtered, bar)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Time.Before(filtered[j].Time) })

	return filtered, nil
}

// GetBacktestPrices implements Provider. For day granularity the quote is the
// bar's open before the close bell and the bar's close at or after it; finer
// granularities require an exact bar-time match.
func (p *HistoryProvider) GetBacktestPrices(ctx context.Context, t time.Time, interval types.Interval) (types.PriceSnapshot, error) {
	quotes := make(map[string]types.Quote)

	for symbol, bars := range p.history {
		bar, ok := barAt(bars, t, interval)
		if !ok {
			continue
		}

		price := bar.Open
		if interval == types.IntervalDay && t.Hour() >= 16 {
			price = bar.Close
		}

		quotes[symbol] = types.Quote{Bid: price, Ask: price}
	}

	if len(quotes) == 0 {
		return types.PriceSnapshot{}, errors.Newf(errors.ErrCodeSnapshotMissing,
			"no price snapshot at %s", t.Format(time.RFC3339))
	}

	return types.PriceSnapshot{Time: t, Quotes: quotes}, nil
}

func barAt(bars []types.Bar, t time.Time, interval types.Interval) (types.Bar, bool) {
	for _, bar := range bars {
		if interval == types.IntervalDay {
			if sameDate(bar.Time, t) {
				return bar, true
			}

			continue
		}

		if bar.Time.Equal(t) {
			return bar, true
		}
	}

	return types.Bar{}, false
}

func sameDate(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()

	return ya == yb && ma == mb && da == db
}
