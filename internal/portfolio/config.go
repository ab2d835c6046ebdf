package portfolio

import (
	"github.com/austin-starks/nexttrade/internal/types"
)

// CommissionType selects how a commission schedule charges a fill.
type CommissionType string

const (
	CommissionFlat    CommissionType = "FLAT"
	CommissionPercent CommissionType = "PERCENT"
)

// CommissionSpec is one entry of the per-asset-class commission schedule:
// either a flat dollar amount per fill or a percentage of notional.
type CommissionSpec struct {
	Type  CommissionType `yaml:"type" json:"type" validate:"required,oneof=FLAT PERCENT"`
	Value float64        `yaml:"value" json:"value" validate:"gte=0"`
}

// Amount returns the commission charged for a fill of the given size.
func (c CommissionSpec) Amount(quantity, price float64) float64 {
	switch c.Type {
	case CommissionPercent:
		return quantity * price * c.Value / 100
	default:
		return c.Value
	}
}

// TradeConfig holds brokerage-level simulation settings shared by every
// order the ledger processes.
type TradeConfig struct {
	Commissions map[types.AssetClass]CommissionSpec `yaml:"commissions" json:"commissions"`
	FillPolicy  types.FillPolicy                    `yaml:"fill_policy" json:"fill_policy" validate:"omitempty,oneof=BID ASK MID"`
}

// Commission looks up the schedule for the asset class. Classes without a
// schedule trade free.
func (c TradeConfig) Commission(class types.AssetClass, quantity, price float64) float64 {
	spec, ok := c.Commissions[class]
	if !ok {
		return 0
	}

	return spec.Amount(quantity, price)
}
