// Package portfolio implements the simulated ledger: cash and position
// bookkeeping, commission charging, and per-step history capture for one
// backtest run.
package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// Ledger tracks cash, open positions and the per-step history series of one
// simulated run. It performs order arithmetic unconditionally; callers are
// responsible for pre-checking buying power before constructing an order.
type Ledger struct {
	InitialValue float64                    `yaml:"initial_value" json:"initial_value"`
	BuyingPower  float64                    `yaml:"buying_power" json:"buying_power"`
	Positions    map[string]*types.Position `yaml:"positions" json:"positions"`
	Strategies   []*Strategy                `yaml:"strategies" json:"strategies"`
	Config       TradeConfig                `yaml:"config" json:"config"`

	// The four series below stay index-aligned: UpdateHistory appends to
	// the first four together, GenerateBaselineComparison fills the fifth
	// against the same timeline.
	ValueHistory      []float64          `yaml:"value_history" json:"value_history"`
	DeltaHistory      []float64          `yaml:"delta_history" json:"delta_history"`
	PositionHistory   [][]types.Position `yaml:"position_history" json:"position_history"`
	HistoryDates      []time.Time        `yaml:"history_dates" json:"history_dates"`
	ComparisonHistory []float64          `yaml:"comparison_history" json:"comparison_history"`
}

// NewLedger creates a ledger with all cash and no positions.
func NewLedger(initialValue float64, config TradeConfig, strategies []*Strategy) *Ledger {
	return &Ledger{
		InitialValue: initialValue,
		BuyingPower:  initialValue,
		Positions:    make(map[string]*types.Position),
		Strategies:   strategies,
		Config:       config,
	}
}

// Buy applies a buy fill: cash out, position in, commission charged by the
// order's asset class. No buying-power check happens here.
func (l *Ledger) Buy(order *types.Order) {
	l.BuyingPower -= order.Quantity * order.Price

	position, ok := l.Positions[order.Symbol]
	if !ok {
		position = &types.Position{
			Symbol:     order.Symbol,
			Name:       order.Name,
			Class:      order.Class,
			Expiration: order.Expiration,
		}
		l.Positions[order.Symbol] = position
	}

	position.ApplyFill(order.Quantity, order.Price)
	position.LastPrice = order.Price

	l.BuyingPower -= l.Config.Commission(order.Class, order.Quantity, order.Price)
}

// Sell applies a sell fill: cash in, position reduced, commission charged.
// A position reduced to zero is removed from the book.
func (l *Ledger) Sell(order *types.Order) {
	l.BuyingPower += order.Quantity * order.Price

	if position, ok := l.Positions[order.Symbol]; ok {
		position.ApplyFill(-order.Quantity, order.Price)
		position.LastPrice = order.Price

		if position.IsClosed() {
			delete(l.Positions, order.Symbol)
		}
	}

	l.BuyingPower -= l.Config.Commission(order.Class, order.Quantity, order.Price)
}

// CalculateValue returns cash plus the marked value of every open position,
// rounded half-up to the cent. Positions missing from the snapshot are
// marked at their last known price.
func (l *Ledger) CalculateValue(snapshot types.PriceSnapshot) float64 {
	total := decimal.NewFromFloat(l.BuyingPower)

	for _, position := range l.Positions {
		price, err := snapshot.PositionPrice(*position, l.Config.FillPolicy)
		if err != nil {
			price = position.LastPrice
		}

		total = total.Add(decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(price)))
	}

	return total.Round(2).InexactFloat64()
}

// UpdateHistory records one step: portfolio value, value delta against the
// previous entry (or the initial value for the first entry), and a value
// snapshot of every open position. Call at most once per simulated step so
// the series stay aligned with the comparison history.
func (l *Ledger) UpdateHistory(snapshot types.PriceSnapshot, date time.Time) {
	value := l.CalculateValue(snapshot)

	previous := l.InitialValue
	if len(l.ValueHistory) > 0 {
		previous = l.ValueHistory[len(l.ValueHistory)-1]
	}

	l.ValueHistory = append(l.ValueHistory, value)
	l.DeltaHistory = append(l.DeltaHistory, value-previous)
	l.PositionHistory = append(l.PositionHistory, l.snapshotPositions())
	l.HistoryDates = append(l.HistoryDates, date)
}

// RefreshLastPrices re-marks every open position from the snapshot. Symbols
// absent from the snapshot keep their previous mark.
func (l *Ledger) RefreshLastPrices(snapshot types.PriceSnapshot) {
	for _, position := range l.Positions {
		if price, err := snapshot.PositionPrice(*position, l.Config.FillPolicy); err == nil {
			position.LastPrice = price
		}
	}
}

// GenerateBaselineComparison replays the recorded value-history timeline as
// a buy-and-hold of the comparison asset bought with the initial capital,
// net of one purchase commission. No-op when no history was recorded.
func (l *Ledger) GenerateBaselineComparison(ctx context.Context, provider market.Provider, interval types.Interval, comparisonAsset types.Asset) error {
	if len(l.ValueHistory) == 0 {
		return nil
	}

	firstSnapshot, err := provider.GetBacktestPrices(ctx, l.HistoryDates[0], interval)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeHistoryUnavailable, err, "no %s prices at comparison start %s", comparisonAsset.Symbol, l.HistoryDates[0])
	}

	entryPrice, err := firstSnapshot.DynamicPrice(comparisonAsset.Symbol, types.OrderSideBuy, l.Config.FillPolicy)
	if err != nil {
		return err
	}

	quantity := l.InitialValue / entryPrice
	commission := l.Config.Commission(comparisonAsset.Class, quantity, entryPrice)

	comparison := make([]float64, 0, len(l.HistoryDates))
	price := entryPrice

	for _, date := range l.HistoryDates {
		snapshot, err := provider.GetBacktestPrices(ctx, date, interval)
		if err == nil {
			if p, perr := snapshot.DynamicPrice(comparisonAsset.Symbol, types.OrderSideSell, l.Config.FillPolicy); perr == nil {
				price = p
			}
		}

		value := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Sub(decimal.NewFromFloat(commission))
		comparison = append(comparison, value.Round(2).InexactFloat64())
	}

	l.ComparisonHistory = comparison

	return nil
}

// DeleteExpiredOptions removes positions whose instrument expired before
// the given date.
func (l *Ledger) DeleteExpiredOptions(currentDate time.Time) {
	for symbol, position := range l.Positions {
		if position.IsExpired(currentDate) {
			delete(l.Positions, symbol)
		}
	}
}

// Reset returns the ledger to its initial state and clears per-run
// condition state inside every strategy.
func (l *Ledger) Reset() {
	l.BuyingPower = l.InitialValue
	l.Positions = make(map[string]*types.Position)
	l.ValueHistory = nil
	l.DeltaHistory = nil
	l.PositionHistory = nil
	l.HistoryDates = nil
	l.ComparisonHistory = nil

	for _, strategy := range l.Strategies {
		strategy.Reset()
	}
}

// EarliestLookbackDays is the longest lookback any strategy's conditions
// require; run validation needs history available this far before the start.
func (l *Ledger) EarliestLookbackDays() int {
	max := 0

	for _, strategy := range l.Strategies {
		if strategy.LookbackDays() > max {
			max = strategy.LookbackDays()
		}
	}

	return max
}

// snapshotPositions copies positions by value, sorted by symbol, so history
// entries never alias live book state.
func (l *Ledger) snapshotPositions() []types.Position {
	positions := make([]types.Position, 0, len(l.Positions))
	for _, position := range l.Positions {
		positions = append(positions, *position)
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	return positions
}
