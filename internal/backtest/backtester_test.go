package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/austin-starks/nexttrade/internal/allocation"
	"github.com/austin-starks/nexttrade/internal/condition"
	"github.com/austin-starks/nexttrade/internal/logger"
	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

type BacktesterTestSuite struct {
	suite.Suite

	start time.Time
}

func TestBacktesterSuite(t *testing.T) {
	suite.Run(t, new(BacktesterTestSuite))
}

func (s *BacktesterTestSuite) SetupTest() {
	s.start = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
}

// memSaver records every persisted snapshot of the run.
type memSaver struct {
	statuses []types.Status
	lastErr  string
}

func (m *memSaver) Save(ctx context.Context, b *Backtester) error {
	m.statuses = append(m.statuses, b.Status)
	m.lastErr = b.Error

	return nil
}

// closedMarketProvider has history for validation but never has a snapshot.
type closedMarketProvider struct {
	bars []types.Bar
}

func (p *closedMarketProvider) GetMarketHistory(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	return p.bars, nil
}

func (p *closedMarketProvider) GetBacktestPrices(ctx context.Context, t time.Time, interval types.Interval) (types.PriceSnapshot, error) {
	return types.PriceSnapshot{}, errors.Newf(errors.ErrCodeSnapshotMissing, "no prices at %s", t)
}

// failFromCondition evaluates false until a cutoff time and fails afterward.
type failFromCondition struct {
	failFrom time.Time
}

func (c *failFromCondition) IsTrue(ctx context.Context, ec *condition.EvalContext) (bool, error) {
	if !ec.CurrentTime.Before(c.failFrom) {
		return false, errors.New(errors.ErrCodeConditionEvaluation, "condition exploded")
	}

	return false, nil
}

func (c *failFromCondition) Name() string { return "fail-from" }

func (c *failFromCondition) LookbackDays() int { return 0 }

func (c *failFromCondition) Symbols() []string { return nil }

func (c *failFromCondition) Reset() {}

// dailyProvider builds a HistoryProvider over one symbol with the given
// per-day open and close prices starting at s.start.
func (s *BacktesterTestSuite) dailyProvider(symbol string, opens, closes []float64) *market.HistoryProvider {
	bars := make([]types.Bar, 0, len(opens))
	for i := range opens {
		day := s.start.AddDate(0, 0, i)
		bars = append(bars, types.Bar{
			Symbol: symbol,
			Time:   day,
			Open:   opens[i],
			High:   closes[i],
			Low:    opens[i],
			Close:  closes[i],
			Volume: 1000,
		})
	}

	return market.NewHistoryProvider(types.MarketHistory{symbol: bars})
}

func (s *BacktesterTestSuite) baseConfig(buy []ConditionConfig, sell []ConditionConfig) Config {
	return Config{
		Name:         "test-run",
		UserID:       "user-1",
		StartDate:    "2020-01-02",
		EndDate:      "2020-01-07",
		Interval:     types.IntervalDay,
		InitialValue: 10000,
		Strategies: []StrategyConfig{{
			Name:           "spy-strategy",
			TargetAsset:    types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
			BuyAmount:      allocation.AmountSpec{Type: allocation.AmountTypeDollars, Value: 1000},
			SellAmount:     allocation.AmountSpec{Type: allocation.AmountTypeShares, Value: 100},
			BuyConditions:  buy,
			SellConditions: sell,
		}},
	}
}

func (s *BacktesterTestSuite) TestFlatPricesPreserveValue() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 100, 100, 100, 100},
		[]float64{100, 100, 100, 100, 100})
	config := s.baseConfig([]ConditionConfig{{Type: "ALWAYS"}}, nil)

	b, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().NoError(err)
	s.Equal(types.StatusPending, b.Status)

	b.Run(context.Background(), RunOptions{})

	s.Equal(types.StatusComplete, b.Status)
	s.Empty(b.Error)
	s.Equal(10, b.StepCount)
	s.InDelta(10000.0, b.Portfolio.ValueHistory[len(b.Portfolio.ValueHistory)-1], 1e-9)
	s.InDelta(0.0, b.Stats.PercentChange, 1e-9)
	s.InDelta(0.0, b.Stats.TotalChange, 1e-9)
}

func (s *BacktesterTestSuite) TestRisingPricesHeldPosition() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 102.5, 105, 107.5, 110},
		[]float64{102.5, 105, 107.5, 110, 110})
	buy := []ConditionConfig{{
		Type:       "PRICE_THRESHOLD",
		Asset:      types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
		Comparator: "BELOW",
		Value:      100.5,
	}}
	config := s.baseConfig(buy, nil)

	b, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().NoError(err)

	b.Run(context.Background(), RunOptions{})

	s.Equal(types.StatusComplete, b.Status)
	s.Len(b.BuyHistory, 1)
	s.InDelta(10.0, b.BuyHistory[0].Quantity, 1e-9)
	s.InDelta(100.0, b.BuyHistory[0].Price, 1e-9)

	// Buying power is recorded at decision time, before the fill.
	s.InDelta(10000.0, b.BuyHistory[0].BuyingPower, 1e-9)
	s.InDelta(100.0, b.Stats.TotalChange, 1e-9)
	s.InDelta(1.0, b.Stats.PercentChange, 1e-9)
}

func (s *BacktesterTestSuite) TestEveryDayClosedCompletesCleanly() {
	provider := &closedMarketProvider{bars: []types.Bar{{
		Symbol: "SPY", Time: s.start, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1,
	}}}
	config := s.baseConfig([]ConditionConfig{{Type: "ALWAYS"}}, nil)
	saver := &memSaver{}

	b, err := New(context.Background(), config, provider, saver, logger.NewNopLogger())
	s.Require().NoError(err)

	b.Run(context.Background(), RunOptions{SaveOnRun: true})

	s.Equal(types.StatusComplete, b.Status)
	s.Equal(10, b.StepCount)
	s.Equal(10, b.SnapshotMisses)
	s.Empty(b.Portfolio.ValueHistory)
	s.InDelta(10000.0, b.Portfolio.BuyingPower, 1e-9)
	s.Equal([]types.Status{types.StatusRunning, types.StatusComplete}, saver.statuses)
}

func (s *BacktesterTestSuite) TestConditionFailureMidRun() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 100, 100, 100, 100},
		[]float64{100, 100, 100, 100, 100})
	config := s.baseConfig([]ConditionConfig{{Type: "ALWAYS"}}, nil)
	saver := &memSaver{}

	b, err := New(context.Background(), config, provider, saver, logger.NewNopLogger())
	s.Require().NoError(err)

	// Fails at day 3 market open, after two full days of buys.
	failing := &failFromCondition{failFrom: s.start.AddDate(0, 0, 2)}
	b.Portfolio.Strategies[0].BuyConditions = append(
		[]condition.Condition{failing},
		b.Portfolio.Strategies[0].BuyConditions...)

	b.Run(context.Background(), RunOptions{})

	s.Equal(types.StatusError, b.Status)
	s.Contains(b.Error, "condition exploded")
	s.Len(b.BuyHistory, 4)

	// Error outcomes persist even without SaveOnRun.
	s.Equal([]types.Status{types.StatusError}, saver.statuses)
	s.Contains(saver.lastErr, "condition exploded")
}

func (s *BacktesterTestSuite) TestSellFlowFiresOnEveryTrueCondition() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 102.5, 105, 107.5, 110},
		[]float64{102.5, 105, 107.5, 110, 110})
	buy := []ConditionConfig{{
		Type:       "PRICE_THRESHOLD",
		Asset:      types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
		Comparator: "BELOW",
		Value:      100.5,
	}}
	sell := []ConditionConfig{{
		Type:       "PRICE_THRESHOLD",
		Asset:      types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
		Comparator: "ABOVE",
		Value:      109,
	}}
	config := s.baseConfig(buy, sell)

	b, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().NoError(err)

	b.Run(context.Background(), RunOptions{})

	s.Equal(types.StatusComplete, b.Status)
	s.Len(b.BuyHistory, 1)
	s.Require().NotEmpty(b.SellHistory)
	s.InDelta(10.0, b.SellHistory[0].Quantity, 1e-9)
	s.InDelta(110.0, b.SellHistory[0].Price, 1e-9)
	s.InDelta(9000.0, b.SellHistory[0].BuyingPower, 1e-9)
	s.Empty(b.Portfolio.Positions)
	s.InDelta(100.0, b.Stats.TotalChange, 1e-9)
}

func (s *BacktesterTestSuite) TestGetActionsMergesSorted() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 102.5, 105, 107.5, 110},
		[]float64{102.5, 105, 107.5, 110, 110})
	buy := []ConditionConfig{{
		Type:       "PRICE_THRESHOLD",
		Asset:      types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
		Comparator: "BELOW",
		Value:      103,
	}}
	sell := []ConditionConfig{{
		Type:       "PRICE_THRESHOLD",
		Asset:      types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
		Comparator: "ABOVE",
		Value:      106,
	}}
	config := s.baseConfig(buy, sell)

	b, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().NoError(err)

	b.Run(context.Background(), RunOptions{})
	s.Equal(types.StatusComplete, b.Status)

	actions := b.GetActions()
	s.Equal(len(b.BuyHistory)+len(b.SellHistory), len(actions))

	for i := 1; i < len(actions); i++ {
		s.False(actions[i].Order.FilledAt.Before(actions[i-1].Order.FilledAt))
	}
}

func (s *BacktesterTestSuite) TestResetAndRerunIsDeterministic() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 102.5, 105, 107.5, 110},
		[]float64{102.5, 105, 107.5, 110, 110})
	buy := []ConditionConfig{{
		Type:       "PRICE_THRESHOLD",
		Asset:      types.Asset{Symbol: "SPY", Class: types.AssetClassEquity},
		Comparator: "BELOW",
		Value:      100.5,
	}}
	config := s.baseConfig(buy, nil)

	b, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().NoError(err)

	b.Run(context.Background(), RunOptions{})
	firstValue := b.Portfolio.ValueHistory[len(b.Portfolio.ValueHistory)-1]
	firstSteps := b.StepCount

	b.Reset()
	s.Equal(types.StatusPending, b.Status)
	s.Zero(b.StepCount)
	s.Empty(b.BuyHistory)

	b.Run(context.Background(), RunOptions{})

	s.Equal(types.StatusComplete, b.Status)
	s.Equal(firstSteps, b.StepCount)
	s.InDelta(firstValue, b.Portfolio.ValueHistory[len(b.Portfolio.ValueHistory)-1], 1e-9)
}

func (s *BacktesterTestSuite) TestBaselineGeneration() {
	provider := s.dailyProvider("SPY",
		[]float64{100, 102.5, 105, 107.5, 110},
		[]float64{102.5, 105, 107.5, 110, 110})
	config := s.baseConfig([]ConditionConfig{{Type: "ALWAYS"}}, nil)

	b, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().NoError(err)

	b.Run(context.Background(), RunOptions{GenerateBaseline: true})

	s.Equal(types.StatusComplete, b.Status)
	s.Equal(len(b.Portfolio.ValueHistory), len(b.Portfolio.ComparisonHistory))
}

func (s *BacktesterTestSuite) TestValidationRejectsBadDateRange() {
	provider := s.dailyProvider("SPY", []float64{100}, []float64{100})
	config := s.baseConfig([]ConditionConfig{{Type: "ALWAYS"}}, nil)
	config.StartDate = "2020-01-07"
	config.EndDate = "2020-01-02"

	_, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidDateRange))
}

func (s *BacktesterTestSuite) TestValidationRejectsNonEquity() {
	provider := s.dailyProvider("BTC", []float64{100}, []float64{100})
	config := s.baseConfig([]ConditionConfig{{Type: "ALWAYS"}}, nil)
	config.Strategies[0].TargetAsset = types.Asset{Symbol: "BTC", Class: types.AssetClassCrypto}

	_, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnsupportedAssetClass))
}

func (s *BacktesterTestSuite) TestValidationRequiresHistoryBeforeStart() {
	// History exists only from the start date, but the strategy needs a
	// 10-day lookback window before it.
	provider := s.dailyProvider("SPY",
		[]float64{100, 100, 100, 100, 100},
		[]float64{100, 100, 100, 100, 100})
	buy := []ConditionConfig{{
		Type:         "PRICE_CHANGE",
		Asset:        types.Asset{Symbol: "QQQ", Class: types.AssetClassEquity},
		Comparator:   "ABOVE",
		Percent:      5,
		LookbackDays: 10,
	}}
	config := s.baseConfig(buy, nil)

	_, err := New(context.Background(), config, provider, nil, logger.NewNopLogger())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeHistoryUnavailable))
}
