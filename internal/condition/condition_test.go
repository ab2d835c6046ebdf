package condition

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

type ConditionTestSuite struct {
	suite.Suite
	ec *EvalContext
}

func TestConditionSuite(t *testing.T) {
	suite.Run(t, new(ConditionTestSuite))
}

func spyAsset() types.Asset {
	return types.Asset{Symbol: "SPY", Name: "SPDR S&P 500", Class: types.AssetClassEquity}
}

func (suite *ConditionTestSuite) SetupTest() {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, 30)

	for i := range bars {
		price := 100.0 + float64(i)
		bars[i] = types.Bar{
			Symbol: "SPY",
			Time:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}

	current := start.AddDate(0, 0, 29)
	suite.ec = &EvalContext{
		StrategyName: "test",
		Snapshot: types.PriceSnapshot{
			Time: current,
			Quotes: map[string]types.Quote{
				"SPY": {Bid: 129, Ask: 129},
			},
		},
		Position:       optional.None[types.Position](),
		BuyingPower:    10000,
		PortfolioValue: 10000,
		CurrentTime:    current,
		Provider:       market.NewHistoryProvider(types.MarketHistory{"SPY": bars}),
		FillPolicy:     types.FillPolicyMid,
	}
}

func (suite *ConditionTestSuite) TestPriceThreshold() {
	tests := []struct {
		name       string
		comparator Comparator
		value      float64
		expected   bool
	}{
		{"above lower value", ComparatorAbove, 120, true},
		{"above higher value", ComparatorAbove, 140, false},
		{"below higher value", ComparatorBelow, 140, true},
		{"below lower value", ComparatorBelow, 120, false},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			c := &PriceThreshold{Asset: spyAsset(), Comparator: tc.comparator, Value: tc.value}
			ok, err := c.IsTrue(context.Background(), suite.ec)
			suite.NoError(err)
			suite.Equal(tc.expected, ok)
		})
	}
}

func (suite *ConditionTestSuite) TestPriceThresholdMissingQuote() {
	c := &PriceThreshold{
		Asset:      types.Asset{Symbol: "AAPL", Class: types.AssetClassEquity},
		Comparator: ComparatorAbove,
		Value:      1,
	}

	_, err := c.IsTrue(context.Background(), suite.ec)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeConditionEvaluation))
}

func (suite *ConditionTestSuite) TestPriceChange() {
	// Price 10 days ago closed at 119; current is 129, a gain of ~8.4%.
	c := &PriceChange{Asset: spyAsset(), Comparator: ComparatorAbove, Percent: 5, Lookback: 10}
	ok, err := c.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.True(ok)
	suite.Equal(10, c.LookbackDays())

	c = &PriceChange{Asset: spyAsset(), Comparator: ComparatorAbove, Percent: 20, Lookback: 10}
	ok, err = c.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)
}

func (suite *ConditionTestSuite) TestPositionProfit() {
	c := &PositionProfit{Comparator: ComparatorAbove, Percent: 10}

	// No position: never fires, never errors.
	ok, err := c.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)

	suite.ec.Position = optional.Some(types.Position{
		Symbol:      "SPY",
		Class:       types.AssetClassEquity,
		Quantity:    10,
		AverageCost: 100,
	})

	// Marked at 129 against a 100 average cost: +29%.
	ok, err = c.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.True(ok)
}

func (suite *ConditionTestSuite) TestAndOr() {
	trueCond := &Always{}
	falseCond := &PriceThreshold{Asset: spyAsset(), Comparator: ComparatorAbove, Value: 1000}

	and := &And{Children: []Condition{trueCond, falseCond}}
	ok, err := and.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)

	or := &Or{Children: []Condition{falseCond, trueCond}}
	ok, err = or.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.True(ok)

	empty := &And{}
	ok, err = empty.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)
}

func (suite *ConditionTestSuite) TestThenSequencing() {
	first := &PriceThreshold{Asset: spyAsset(), Comparator: ComparatorAbove, Value: 1000}
	second := &Always{}
	then := &Then{Children: []Condition{first, second}}

	// First leg not satisfied: the sequence does not fire and makes no
	// progress.
	ok, err := then.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)

	// Satisfy the first leg; both legs fire within the same step.
	first.Value = 1
	ok, err = then.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.True(ok)

	// The sequence rearms after firing.
	first.Value = 1000
	ok, err = then.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)
}

func (suite *ConditionTestSuite) TestThenKeepsProgressAcrossSteps() {
	first := &Always{}
	second := &PriceThreshold{Asset: spyAsset(), Comparator: ComparatorAbove, Value: 1000}
	then := &Then{Children: []Condition{first, second}}

	ok, err := then.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.False(ok)

	// Next step: only the pending second leg is evaluated.
	second.Value = 1
	ok, err = then.IsTrue(context.Background(), suite.ec)
	suite.NoError(err)
	suite.True(ok)

	// Reset clears progress.
	then.progress = 1
	then.Reset()
	suite.Equal(0, then.progress)
}

func (suite *ConditionTestSuite) TestCompoundMetadata() {
	group := &Or{Children: []Condition{
		&PriceChange{Asset: spyAsset(), Comparator: ComparatorAbove, Percent: 5, Lookback: 14},
		&PriceThreshold{Asset: types.Asset{Symbol: "QQQ", Class: types.AssetClassEquity}, Comparator: ComparatorBelow, Value: 300},
		&PriceThreshold{Asset: spyAsset(), Comparator: ComparatorAbove, Value: 100},
	}}

	suite.Equal(14, group.LookbackDays())
	suite.ElementsMatch([]string{"SPY", "QQQ"}, group.Symbols())
	suite.Contains(group.Name(), "ANY of")
}

func (suite *ConditionTestSuite) TestErrorPropagatesThroughCompound() {
	bad := &PriceThreshold{
		Asset:      types.Asset{Symbol: "MISSING", Class: types.AssetClassEquity},
		Comparator: ComparatorAbove,
		Value:      1,
	}
	and := &And{Children: []Condition{&Always{}, bad}}

	_, err := and.IsTrue(context.Background(), suite.ec)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeConditionEvaluation))
}
