package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// Position represents current holdings of one instrument. Quantity is
// signed: a negative quantity is a short or written position.
type Position struct {
	Symbol      string                     `yaml:"symbol" json:"symbol"`
	Name        string                     `yaml:"name" json:"name"`
	Class       AssetClass                 `yaml:"class" json:"class"`
	Quantity    float64                    `yaml:"quantity" json:"quantity"`
	AverageCost float64                    `yaml:"average_cost" json:"average_cost"`
	LastPrice   float64                    `yaml:"last_price" json:"last_price"`
	Expiration  optional.Option[time.Time] `yaml:"expiration" json:"expiration"`
}

// ApplyFill mutates quantity and average cost together. Fills that grow the
// position fold the fill price into a quantity-weighted running average;
// fills that shrink it leave the average cost untouched. A fill that flips
// the position through zero restarts the average at the fill price.
func (p *Position) ApplyFill(quantity, price float64) {
	newQuantity := p.Quantity + quantity

	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, newQuantity) && abs(newQuantity) > abs(p.Quantity):
		if newQuantity != 0 {
			p.AverageCost = (p.Quantity*p.AverageCost + quantity*price) / newQuantity
		}
	case !sameSign(p.Quantity, newQuantity) && newQuantity != 0:
		p.AverageCost = price
	}

	p.Quantity = newQuantity
	if p.Quantity == 0 {
		p.AverageCost = 0
	}
}

// IsClosed reports whether the position has been reduced to nothing.
func (p *Position) IsClosed() bool {
	return p.Quantity == 0
}

// IsExpired reports whether the instrument has expired as of the given date.
// Non-expiring instruments never expire.
func (p *Position) IsExpired(currentDate time.Time) bool {
	if p.Expiration.IsNone() {
		return false
	}

	return p.Expiration.Unwrap().Before(currentDate)
}

// MarketValue is quantity times the last observed price.
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.LastPrice
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
