// Package allocation computes order quantities from strategy amount specs.
package allocation

import (
	"math"

	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// AmountType selects how an AmountSpec's value is interpreted.
type AmountType string

const (
	AmountTypeDollars              AmountType = "DOLLARS"
	AmountTypePercentOfBuyingPower AmountType = "PERCENT_OF_BUYING_POWER"
	AmountTypePercentOfPortfolio   AmountType = "PERCENT_OF_PORTFOLIO"
	AmountTypeShares               AmountType = "SHARES"
)

// AmountSpec describes how much of an asset a strategy trades per signal.
type AmountSpec struct {
	Type  AmountType `yaml:"type" json:"type" validate:"required,oneof=DOLLARS PERCENT_OF_BUYING_POWER PERCENT_OF_PORTFOLIO SHARES"`
	Value float64    `yaml:"value" json:"value" validate:"gte=0"`
}

// QuantityToBuy converts an amount spec into a whole-share buy quantity,
// capped by available buying power. Returns 0 when the spec cannot be
// afforded; a non-positive quantity is the caller's signal to skip the buy.
func QuantityToBuy(spec AmountSpec, price, buyingPower, portfolioValue float64) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "price must be positive, got %f", price)
	}

	var budget float64

	switch spec.Type {
	case AmountTypeDollars:
		budget = spec.Value
	case AmountTypePercentOfBuyingPower:
		budget = buyingPower * spec.Value / 100
	case AmountTypePercentOfPortfolio:
		budget = portfolioValue * spec.Value / 100
	case AmountTypeShares:
		if spec.Value*price > buyingPower {
			return math.Floor(buyingPower / price), nil
		}

		return math.Floor(spec.Value), nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidAmountSpec, "unknown amount type %q", spec.Type)
	}

	if budget > buyingPower {
		budget = buyingPower
	}

	return math.Floor(budget / price), nil
}

// QuantityToSell converts an amount spec into a whole-share sell quantity,
// capped by the open position size.
func QuantityToSell(spec AmountSpec, price float64, position types.Position, portfolioValue float64) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "price must be positive, got %f", price)
	}

	held := math.Abs(position.Quantity)

	var quantity float64

	switch spec.Type {
	case AmountTypeDollars:
		quantity = math.Floor(spec.Value / price)
	case AmountTypePercentOfPortfolio:
		quantity = math.Floor(portfolioValue * spec.Value / 100 / price)
	case AmountTypePercentOfBuyingPower:
		// Selling frees buying power rather than consuming it, so a
		// percent-of-buying-power sell is measured against the position.
		quantity = math.Floor(held * spec.Value / 100)
	case AmountTypeShares:
		quantity = math.Floor(spec.Value)
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidAmountSpec, "unknown amount type %q", spec.Type)
	}

	if quantity > held {
		quantity = held
	}

	return quantity, nil
}
