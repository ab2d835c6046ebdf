package types

import (
	"time"

	"github.com/austin-starks/nexttrade/pkg/errors"
)

// Interval is the simulation granularity of a backtest run.
type Interval string

const (
	IntervalDay    Interval = "1d"
	IntervalHour   Interval = "1h"
	IntervalMinute Interval = "1m"
)

// Bar is one OHLCV observation for a symbol at a given time.
type Bar struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// MarketHistory maps a symbol to its date-ordered bar sequence.
type MarketHistory map[string][]Bar

// Clone returns a copy of the history map with copied bar slices. Mutating
// the clone never touches the original, so shared provider caches stay safe.
func (h MarketHistory) Clone() MarketHistory {
	clone := make(MarketHistory, len(h))
	for symbol, bars := range h {
		copied := make([]Bar, len(bars))
		copy(copied, bars)
		clone[symbol] = copied
	}

	return clone
}

// Quote is a two-sided price for one symbol at one instant.
type Quote struct {
	Bid float64 `yaml:"bid" json:"bid"`
	Ask float64 `yaml:"ask" json:"ask"`
}

// Mid returns the midpoint of the quote.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// PriceSnapshot holds the quotes observed at a single simulated timestamp.
type PriceSnapshot struct {
	Time   time.Time        `yaml:"time" json:"time"`
	Quotes map[string]Quote `yaml:"quotes" json:"quotes"`
}

// DynamicPrice selects an execution price for a symbol from the snapshot
// using the configured fill policy. When no policy is set, buys pay the ask
// and sells receive the bid.
func (s PriceSnapshot) DynamicPrice(symbol string, side OrderSide, policy FillPolicy) (float64, error) {
	quote, ok := s.Quotes[symbol]
	if !ok {
		return 0, errors.Newf(errors.ErrCodePriceUnavailable, "no quote for symbol %s at %s", symbol, s.Time.Format(time.RFC3339))
	}

	switch policy {
	case FillPolicyBid:
		return quote.Bid, nil
	case FillPolicyAsk:
		return quote.Ask, nil
	case FillPolicyMid:
		return quote.Mid(), nil
	case "":
		if side == OrderSideBuy {
			return quote.Ask, nil
		}

		return quote.Bid, nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "unknown fill policy %q", policy)
	}
}

// PositionPrice returns the marking price for an open position. Long
// positions mark against the bid, short positions against the ask.
func (s PriceSnapshot) PositionPrice(position Position, policy FillPolicy) (float64, error) {
	side := OrderSideSell
	if position.Quantity < 0 {
		side = OrderSideBuy
	}

	return s.DynamicPrice(position.Symbol, side, policy)
}
