package backtest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/austin-starks/nexttrade/internal/condition"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

const sampleConfig = `
name: momentum-spy
user_id: user-1
start_date: "2020-01-02"
end_date: "2020-06-30"
interval: 1d
initial_value: 10000
trade:
  fill_policy: MID
  commissions:
    EQUITY:
      type: FLAT
      value: 1
strategies:
  - name: momentum
    target_asset:
      symbol: SPY
      class: EQUITY
    buy_amount:
      type: PERCENT_OF_BUYING_POWER
      value: 25
    sell_amount:
      type: SHARES
      value: 100
    buy_conditions:
      - type: THEN
        children:
          - type: PRICE_CHANGE
            asset:
              symbol: SPY
              class: EQUITY
            comparator: BELOW
            percent: -2
            lookback_days: 10
          - type: PRICE_CHANGE
            asset:
              symbol: SPY
              class: EQUITY
            comparator: ABOVE
            percent: 1
            lookback_days: 5
    sell_conditions:
      - type: POSITION_PROFIT
        comparator: ABOVE
        percent: 10
`

func (s *ConfigTestSuite) TestParseConfig() {
	config, err := ParseConfig([]byte(sampleConfig))
	s.Require().NoError(err)

	s.Equal("momentum-spy", config.Name)
	s.Require().Len(config.Strategies, 1)

	strategy, err := config.Strategies[0].Build()
	s.Require().NoError(err)
	s.Equal("momentum", strategy.Name)
	s.Require().Len(strategy.BuyConditions, 1)

	seq, ok := strategy.BuyConditions[0].(*condition.Then)
	s.Require().True(ok)
	s.Len(seq.Children, 2)
	s.Equal(10, strategy.BuyConditions[0].LookbackDays())
}

func (s *ConfigTestSuite) TestParseConfigRejectsMissingFields() {
	_, err := ParseConfig([]byte("name: incomplete"))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeBacktestConfigError))
}

func (s *ConfigTestSuite) TestBuildRejectsUnknownConditionType() {
	c := ConditionConfig{Type: "MOON_PHASE"}

	_, err := c.Build()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestComparisonAssetDefaultsToSPY() {
	config := Config{}
	s.Equal("SPY", config.ComparisonAsset().Symbol)

	config.ComparisonSymbol = "VTI"
	s.Equal("VTI", config.ComparisonAsset().Symbol)
}

func (s *ConfigTestSuite) TestGenerateSchemaJSON() {
	config := &Config{}

	schemaJSON, err := config.GenerateSchemaJSON()
	s.Require().NoError(err)

	var schema map[string]any
	s.Require().NoError(json.Unmarshal([]byte(schemaJSON), &schema))
	s.Contains(schema, "properties")
}
