package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/austin-starks/nexttrade/pkg/errors"
)

type OrderSide string

type FillPolicy string

type AssetClass string

type Status string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	FillPolicyBid FillPolicy = "BID"
	FillPolicyAsk FillPolicy = "ASK"
	FillPolicyMid FillPolicy = "MID"
)

const (
	AssetClassEquity AssetClass = "EQUITY"
	AssetClassOption AssetClass = "OPTION"
	AssetClassCrypto AssetClass = "CRYPTO"
)

const (
	StatusPending  Status = "PENDING"
	StatusRunning  Status = "RUNNING"
	StatusComplete Status = "COMPLETE"
	StatusError    Status = "ERROR"
)

// Asset identifies a tradeable instrument.
type Asset struct {
	Symbol string     `yaml:"symbol" json:"symbol" validate:"required"`
	Name   string     `yaml:"name" json:"name"`
	Class  AssetClass `yaml:"class" json:"class" validate:"required,oneof=EQUITY OPTION CRYPTO"`
	// Expiration is set only for expiring instruments such as options.
	Expiration optional.Option[time.Time] `yaml:"expiration" json:"expiration"`
}

// Order is an immutable record of a simulated fill. It is written once into
// the action logs and never mutated afterwards.
type Order struct {
	ID       string     `yaml:"id" json:"id" validate:"required,uuid"`
	Symbol   string     `yaml:"symbol" json:"symbol" validate:"required"`
	Name     string     `yaml:"name" json:"name"`
	Class    AssetClass `yaml:"class" json:"class" validate:"required,oneof=EQUITY OPTION CRYPTO"`
	Side     OrderSide  `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Quantity float64    `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	Price    float64    `yaml:"price" json:"price" validate:"required,gt=0"`
	FilledAt time.Time  `yaml:"filled_at" json:"filled_at" validate:"required"`
	// Expiration carries the instrument expiry into the resulting position.
	Expiration  optional.Option[time.Time] `yaml:"expiration" json:"expiration"`
	StrategyID  string                     `yaml:"strategy_id" json:"strategy_id" validate:"required"`
	PortfolioID string                     `yaml:"portfolio_id" json:"portfolio_id"`
	UserID      string                     `yaml:"user_id" json:"user_id"`
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	return nil
}

// Action is one entry in a buy or sell history log. Append-only; exposed
// externally re-sorted by fill timestamp.
type Action struct {
	Date          time.Time `yaml:"date" json:"date"`
	Symbol        string    `yaml:"symbol" json:"symbol"`
	StrategyName  string    `yaml:"strategy_name" json:"strategy_name"`
	BuyingPower   float64   `yaml:"buying_power" json:"buying_power"`
	ConditionName string    `yaml:"condition_name" json:"condition_name"`
	Quantity      float64   `yaml:"quantity" json:"quantity"`
	Price         float64   `yaml:"price" json:"price"`
	Order         Order     `yaml:"order" json:"order"`
}
