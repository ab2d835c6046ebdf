package backtest

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v2"

	"github.com/austin-starks/nexttrade/internal/allocation"
	"github.com/austin-starks/nexttrade/internal/condition"
	"github.com/austin-starks/nexttrade/internal/portfolio"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

const dateLayout = "2006-01-02"

// ConditionConfig is the declarative form of one condition-tree node. Type
// selects the variant; the remaining fields apply only to the variants that
// read them. Compound variants nest children.
type ConditionConfig struct {
	Type         string            `yaml:"type" json:"type" jsonschema:"title=Type,enum=PRICE_THRESHOLD,enum=PRICE_CHANGE,enum=POSITION_PROFIT,enum=ALWAYS,enum=AND,enum=OR,enum=THEN"`
	Asset        types.Asset       `yaml:"asset,omitempty" json:"asset,omitempty"`
	Comparator   string            `yaml:"comparator,omitempty" json:"comparator,omitempty" jsonschema:"enum=ABOVE,enum=BELOW"`
	Value        float64           `yaml:"value,omitempty" json:"value,omitempty"`
	Percent      float64           `yaml:"percent,omitempty" json:"percent,omitempty"`
	LookbackDays int               `yaml:"lookback_days,omitempty" json:"lookback_days,omitempty"`
	Children     []ConditionConfig `yaml:"children,omitempty" json:"children,omitempty"`
}

// Build constructs the condition variant the config describes.
func (c ConditionConfig) Build() (condition.Condition, error) {
	switch c.Type {
	case "PRICE_THRESHOLD":
		return &condition.PriceThreshold{
			Asset:      c.Asset,
			Comparator: condition.Comparator(c.Comparator),
			Value:      c.Value,
		}, nil
	case "PRICE_CHANGE":
		return &condition.PriceChange{
			Asset:      c.Asset,
			Comparator: condition.Comparator(c.Comparator),
			Percent:    c.Percent,
			Lookback:   c.LookbackDays,
		}, nil
	case "POSITION_PROFIT":
		return &condition.PositionProfit{
			Comparator: condition.Comparator(c.Comparator),
			Percent:    c.Percent,
		}, nil
	case "ALWAYS":
		return &condition.Always{}, nil
	case "AND", "OR", "THEN":
		children, err := buildConditions(c.Children)
		if err != nil {
			return nil, err
		}

		switch c.Type {
		case "AND":
			return &condition.And{Children: children}, nil
		case "OR":
			return &condition.Or{Children: children}, nil
		default:
			return &condition.Then{Children: children}, nil
		}
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown condition type %q", c.Type)
	}
}

func buildConditions(configs []ConditionConfig) ([]condition.Condition, error) {
	conditions := make([]condition.Condition, 0, len(configs))

	for _, c := range configs {
		built, err := c.Build()
		if err != nil {
			return nil, err
		}

		conditions = append(conditions, built)
	}

	return conditions, nil
}

// StrategyConfig is the declarative form of one strategy.
type StrategyConfig struct {
	Name           string                `yaml:"name" json:"name" validate:"required" jsonschema:"title=Name"`
	TargetAsset    types.Asset           `yaml:"target_asset" json:"target_asset" jsonschema:"title=Target Asset"`
	BuyAmount      allocation.AmountSpec `yaml:"buy_amount" json:"buy_amount" jsonschema:"title=Buy Amount"`
	SellAmount     allocation.AmountSpec `yaml:"sell_amount" json:"sell_amount" jsonschema:"title=Sell Amount"`
	BuyConditions  []ConditionConfig     `yaml:"buy_conditions" json:"buy_conditions" jsonschema:"title=Buy Conditions"`
	SellConditions []ConditionConfig     `yaml:"sell_conditions" json:"sell_conditions" jsonschema:"title=Sell Conditions"`
}

// Build constructs the runtime strategy, including its condition trees.
func (c StrategyConfig) Build() (*portfolio.Strategy, error) {
	buys, err := buildConditions(c.BuyConditions)
	if err != nil {
		return nil, err
	}

	sells, err := buildConditions(c.SellConditions)
	if err != nil {
		return nil, err
	}

	return &portfolio.Strategy{
		Name:           c.Name,
		TargetAsset:    c.TargetAsset,
		BuyAmount:      c.BuyAmount,
		SellAmount:     c.SellAmount,
		BuyConditions:  buys,
		SellConditions: sells,
	}, nil
}

// Config describes one backtest run.
type Config struct {
	Name             string                `yaml:"name" json:"name" validate:"required" jsonschema:"title=Name,description=Human-readable name of the run"`
	UserID           string                `yaml:"user_id" json:"user_id" jsonschema:"title=User ID"`
	StartDate        string                `yaml:"start_date" json:"start_date" validate:"required" jsonschema:"title=Start Date,description=Inclusive start date in YYYY-MM-DD,format=date"`
	EndDate          string                `yaml:"end_date" json:"end_date" validate:"required" jsonschema:"title=End Date,description=Exclusive end date in YYYY-MM-DD,format=date"`
	Interval         types.Interval        `yaml:"interval" json:"interval" validate:"required,oneof=1d 1h 1m" jsonschema:"title=Interval,enum=1d,enum=1h,enum=1m"`
	InitialValue     float64               `yaml:"initial_value" json:"initial_value" validate:"required,gt=0" jsonschema:"title=Initial Value,description=Starting capital in USD,minimum=0"`
	Trade            portfolio.TradeConfig `yaml:"trade" json:"trade" jsonschema:"title=Trade Settings"`
	Strategies       []StrategyConfig      `yaml:"strategies" json:"strategies" validate:"required,min=1,dive" jsonschema:"title=Strategies"`
	ComparisonSymbol string                `yaml:"comparison_symbol,omitempty" json:"comparison_symbol,omitempty" jsonschema:"title=Comparison Symbol,description=Buy-and-hold benchmark symbol,default=SPY"`
}

// ParseConfig unmarshals and validates a YAML run configuration.
func ParseConfig(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeBacktestConfigError, "failed to parse backtest config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks required fields and date formats.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid backtest config", err)
	}

	if _, _, err := c.DateRange(); err != nil {
		return err
	}

	return nil
}

// ComparisonAsset returns the configured benchmark asset, defaulting to SPY.
func (c Config) ComparisonAsset() types.Asset {
	symbol := c.ComparisonSymbol
	if symbol == "" {
		symbol = "SPY"
	}

	return types.Asset{Symbol: symbol, Class: types.AssetClassEquity}
}

// DateRange parses the configured start and end dates. The end date must
// not be before the start date.
func (c Config) DateRange() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrCodeInvalidDateRange, err, "invalid start date %q", c.StartDate)
	}

	end, err := time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrCodeInvalidDateRange, err, "invalid end date %q", c.EndDate)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.Newf(errors.ErrCodeInvalidDateRange, "end date %s is before start date %s", c.EndDate, c.StartDate)
	}

	return start, end, nil
}

// GenerateSchema generates a JSON schema for the run configuration.
func (c *Config) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for a backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates an indented JSON schema string for the run
// configuration.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
