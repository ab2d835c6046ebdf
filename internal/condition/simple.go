package condition

import (
	"context"
	"fmt"

	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// PriceThreshold fires when the asset's current price is above or below a
// fixed value.
type PriceThreshold struct {
	Asset      types.Asset `yaml:"asset" json:"asset"`
	Comparator Comparator  `yaml:"comparator" json:"comparator"`
	Value      float64     `yaml:"value" json:"value"`
}

func (c *PriceThreshold) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) {
	price, err := ec.Snapshot.DynamicPrice(c.Asset.Symbol, types.OrderSideBuy, ec.FillPolicy)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeConditionEvaluation, err,
			"price threshold condition failed for %s", c.Asset.Symbol)
	}

	return c.Comparator.compare(price, c.Value), nil
}

func (c *PriceThreshold) Name() string {
	return fmt.Sprintf("Price of %s is %s %.2f", c.Asset.Symbol, c.Comparator, c.Value)
}

func (c *PriceThreshold) LookbackDays() int { return 0 }

func (c *PriceThreshold) Symbols() []string { return []string{c.Asset.Symbol} }

func (c *PriceThreshold) Reset() {}

// PriceChange fires when the asset's price has moved by more (or less) than
// Percent relative to its close LookbackDays calendar days ago.
type PriceChange struct {
	Asset      types.Asset `yaml:"asset" json:"asset"`
	Comparator Comparator  `yaml:"comparator" json:"comparator"`
	Percent    float64     `yaml:"percent" json:"percent"`
	Lookback   int         `yaml:"lookback_days" json:"lookback_days" validate:"gt=0"`
}

func (c *PriceChange) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) {
	current, err := ec.Snapshot.DynamicPrice(c.Asset.Symbol, types.OrderSideBuy, ec.FillPolicy)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeConditionEvaluation, err,
			"price change condition failed for %s", c.Asset.Symbol)
	}

	start := ec.CurrentTime.AddDate(0, 0, -c.Lookback)

	bars, err := ec.Provider.GetMarketHistory(ctx, c.Asset.Symbol, start, ec.CurrentTime)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeConditionLookback, err,
			"lookback history unavailable for %s", c.Asset.Symbol)
	}

	if len(bars) == 0 || bars[0].Close == 0 {
		return false, errors.Newf(errors.ErrCodeConditionLookback,
			"lookback history empty for %s over %d days", c.Asset.Symbol, c.Lookback)
	}

	change := (current - bars[0].Close) / bars[0].Close * 100

	return c.Comparator.compare(change, c.Percent), nil
}

func (c *PriceChange) Name() string {
	return fmt.Sprintf("%d-day change of %s is %s %.2f%%", c.Lookback, c.Asset.Symbol, c.Comparator, c.Percent)
}

func (c *PriceChange) LookbackDays() int { return c.Lookback }

func (c *PriceChange) Symbols() []string { return []string{c.Asset.Symbol} }

func (c *PriceChange) Reset() {}

// PositionProfit fires on the unrealized profit percentage of the position
// under evaluation. It evaluates to false when no position is supplied, so
// it is only meaningful as a sell condition.
type PositionProfit struct {
	Comparator Comparator `yaml:"comparator" json:"comparator"`
	Percent    float64    `yaml:"percent" json:"percent"`
}

func (c *PositionProfit) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) {
	if ec.Position.IsNone() {
		return false, nil
	}

	position := ec.Position.Unwrap()
	if position.AverageCost == 0 {
		return false, nil
	}

	price, err := ec.Snapshot.PositionPrice(position, ec.FillPolicy)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeConditionEvaluation, err,
			"position profit condition failed for %s", position.Symbol)
	}

	profit := (price - position.AverageCost) / position.AverageCost * 100

	return c.Comparator.compare(profit, c.Percent), nil
}

func (c *PositionProfit) Name() string {
	return fmt.Sprintf("Position profit is %s %.2f%%", c.Comparator, c.Percent)
}

func (c *PositionProfit) LookbackDays() int { return 0 }

func (c *PositionProfit) Symbols() []string { return nil }

func (c *PositionProfit) Reset() {}

// Always fires unconditionally. Useful for buy-and-hold baselines and tests.
type Always struct{}

func (c *Always) IsTrue(ctx context.Context, ec *EvalContext) (bool, error) { return true, nil }

func (c *Always) Name() string { return "Always" }

func (c *Always) LookbackDays() int { return 0 }

func (c *Always) Symbols() []string { return nil }

func (c *Always) Reset() {}
