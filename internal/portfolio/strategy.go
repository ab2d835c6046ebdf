package portfolio

import (
	"github.com/austin-starks/nexttrade/internal/allocation"
	"github.com/austin-starks/nexttrade/internal/condition"
	"github.com/austin-starks/nexttrade/internal/types"
)

// Strategy pairs one target asset with the buy and sell rules that trade it.
// Amount specs size the orders; conditions decide when they fire.
type Strategy struct {
	Name           string                `yaml:"name" json:"name" validate:"required"`
	TargetAsset    types.Asset           `yaml:"target_asset" json:"target_asset" validate:"required"`
	BuyAmount      allocation.AmountSpec `yaml:"buy_amount" json:"buy_amount"`
	SellAmount     allocation.AmountSpec `yaml:"sell_amount" json:"sell_amount"`
	BuyConditions  []condition.Condition `yaml:"-" json:"-"`
	SellConditions []condition.Condition `yaml:"-" json:"-"`
}

// LookbackDays is the longest history window any of the strategy's
// conditions needs.
func (s *Strategy) LookbackDays() int {
	max := 0

	for _, c := range s.BuyConditions {
		if c.LookbackDays() > max {
			max = c.LookbackDays()
		}
	}

	for _, c := range s.SellConditions {
		if c.LookbackDays() > max {
			max = c.LookbackDays()
		}
	}

	return max
}

// Symbols lists the target symbol plus every symbol referenced by the
// strategy's condition trees, deduplicated.
func (s *Strategy) Symbols() []string {
	seen := map[string]bool{s.TargetAsset.Symbol: true}
	symbols := []string{s.TargetAsset.Symbol}

	for _, c := range append(append([]condition.Condition{}, s.BuyConditions...), s.SellConditions...) {
		for _, symbol := range c.Symbols() {
			if !seen[symbol] {
				seen[symbol] = true
				symbols = append(symbols, symbol)
			}
		}
	}

	return symbols
}

// Reset clears per-run evaluation state in every condition tree.
func (s *Strategy) Reset() {
	for _, c := range s.BuyConditions {
		c.Reset()
	}

	for _, c := range s.SellConditions {
		c.Reset()
	}
}
