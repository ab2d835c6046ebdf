package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/austin-starks/nexttrade/internal/allocation"
	"github.com/austin-starks/nexttrade/internal/condition"
	"github.com/austin-starks/nexttrade/internal/logger"
	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/portfolio"
	"github.com/austin-starks/nexttrade/internal/stats"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// minBuyingPowerFraction stops the buy flow once buying power drops below
// this fraction of the run's initial value.
const minBuyingPowerFraction = 0.01

// Saver persists a run document. The store package provides the production
// implementation; tests use in-memory fakes.
type Saver interface {
	Save(ctx context.Context, b *Backtester) error
}

// RunOptions controls one Run invocation.
type RunOptions struct {
	// SaveOnRun persists the run at start and on completion. Error
	// outcomes are always persisted regardless of this flag.
	SaveOnRun bool
	// GenerateBaseline computes the buy-and-hold comparison series after
	// the loop finishes.
	GenerateBaseline bool
	// OnStep, when set, is called after every simulated step with the
	// steps completed so far and the projected total.
	OnStep func(current, total int)
}

// Backtester drives one simulated run from PENDING through RUNNING to
// COMPLETE or ERROR. It owns its ledger and cursor exclusively; only the
// price provider is shared across concurrent runs.
type Backtester struct {
	ID          string    `yaml:"id" json:"id"`
	UserID      string    `yaml:"user_id" json:"user_id"`
	Name        string    `yaml:"name" json:"name"`
	StartDate   time.Time `yaml:"start_date" json:"start_date"`
	EndDate     time.Time `yaml:"end_date" json:"end_date"`
	CurrentDate time.Time `yaml:"current_date" json:"current_date"`

	Interval types.Interval `yaml:"interval" json:"interval"`
	Status   types.Status   `yaml:"status" json:"status"`
	Error    string         `yaml:"error,omitempty" json:"error,omitempty"`

	StepCount int `yaml:"step_count" json:"step_count"`
	// SnapshotMisses counts loop steps where no price snapshot existed.
	// Market-closed days and genuinely missing data both land here; the
	// counter is the only way to tell a quiet run from a data gap.
	SnapshotMisses int `yaml:"snapshot_misses" json:"snapshot_misses"`

	Portfolio   *portfolio.Ledger `yaml:"portfolio" json:"portfolio"`
	Stats       stats.Statistics  `yaml:"stats" json:"stats"`
	BuyHistory  []types.Action    `yaml:"buy_history" json:"buy_history"`
	SellHistory []types.Action    `yaml:"sell_history" json:"sell_history"`

	ComparisonAsset types.Asset `yaml:"comparison_asset" json:"comparison_asset"`

	// SourceConfig is the declarative configuration the run was built
	// from. Persisted so a stored run can rebuild its condition trees.
	SourceConfig Config `yaml:"source_config" json:"source_config"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`

	cursor   *TimeCursor
	provider market.Provider
	saver    Saver
	log      *logger.Logger
}

// New validates the configuration and constructs a PENDING run. Validation
// covers the date range, the equity-only restriction, and history
// availability far enough before the start date to satisfy every strategy's
// lookback requirement.
func New(ctx context.Context, config Config, provider market.Provider, saver Saver, log *logger.Logger) (*Backtester, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	start, end, err := config.DateRange()
	if err != nil {
		return nil, err
	}

	if provider == nil {
		return nil, errors.New(errors.ErrCodeBacktestNoProvider, "backtest requires a price-history provider")
	}

	strategies := make([]*portfolio.Strategy, 0, len(config.Strategies))

	for _, sc := range config.Strategies {
		strategy, err := sc.Build()
		if err != nil {
			return nil, err
		}

		if strategy.TargetAsset.Class != types.AssetClassEquity {
			return nil, errors.Newf(errors.ErrCodeUnsupportedAssetClass, "strategy %q targets asset class %s; only EQUITY is supported", strategy.Name, strategy.TargetAsset.Class)
		}

		strategies = append(strategies, strategy)
	}

	ledger := portfolio.NewLedger(config.InitialValue, config.Trade, strategies)

	if err := validateHistory(ctx, provider, ledger, start); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	now := time.Now()

	return &Backtester{
		ID:              uuid.NewString(),
		UserID:          config.UserID,
		Name:            config.Name,
		StartDate:       start,
		EndDate:         end,
		CurrentDate:     start,
		Interval:        config.Interval,
		Status:          types.StatusPending,
		Portfolio:       ledger,
		ComparisonAsset: config.ComparisonAsset(),
		SourceConfig:    config,
		CreatedAt:       now,
		UpdatedAt:       now,
		cursor:          NewTimeCursor(config.Interval),
		provider:        provider,
		saver:           saver,
		log:             log,
	}, nil
}

// validateHistory checks that every symbol any strategy references has
// price history available from lookback days before the start date.
func validateHistory(ctx context.Context, provider market.Provider, ledger *portfolio.Ledger, start time.Time) error {
	lookback := ledger.EarliestLookbackDays()
	from := start.AddDate(0, 0, -lookback)

	for _, strategy := range ledger.Strategies {
		for _, symbol := range strategy.Symbols() {
			bars, err := provider.GetMarketHistory(ctx, symbol, from, start)
			if err != nil {
				return errors.Wrapf(errors.ErrCodeHistoryUnavailable, err, "no price history for %s from %s", symbol, from.Format(dateLayout))
			}

			if len(bars) == 0 {
				return errors.Newf(errors.ErrCodeHistoryUnavailable, "no price history for %s from %s to %s", symbol, from.Format(dateLayout), start.Format(dateLayout))
			}
		}
	}

	return nil
}

// Rehydrate reattaches runtime collaborators to a run loaded from the store
// and rebuilds the condition trees from the persisted configuration. The
// cursor restarts at market open; persisted runs only resume via a full
// reset-and-rerun.
func (b *Backtester) Rehydrate(provider market.Provider, saver Saver, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}

	strategies := make([]*portfolio.Strategy, 0, len(b.SourceConfig.Strategies))

	for _, sc := range b.SourceConfig.Strategies {
		strategy, err := sc.Build()
		if err != nil {
			return err
		}

		strategies = append(strategies, strategy)
	}

	b.Portfolio.Strategies = strategies
	b.cursor = NewTimeCursor(b.Interval)
	b.provider = provider
	b.saver = saver
	b.log = log

	return nil
}

// Reset returns the run to its pre-execution state so it can be re-run.
func (b *Backtester) Reset() {
	b.Status = types.StatusPending
	b.Error = ""
	b.StepCount = 0
	b.SnapshotMisses = 0
	b.CurrentDate = b.StartDate
	b.Stats = stats.Statistics{}
	b.BuyHistory = nil
	b.SellHistory = nil
	b.Portfolio.Reset()
	b.cursor.Reset()
}

// Run executes the simulation loop. Any failure inside the loop is absorbed
// into a terminal ERROR status with the message captured, and the run is
// persisted regardless of SaveOnRun so the outcome stays inspectable;
// callers detect failure by reading Status, not by catching an error.
func (b *Backtester) Run(ctx context.Context, opts RunOptions) {
	b.Status = types.StatusRunning
	b.log.Info("backtest started",
		zap.String("id", b.ID),
		zap.String("name", b.Name),
		zap.Time("start", b.StartDate),
		zap.Time("end", b.EndDate))

	if opts.SaveOnRun {
		b.save(ctx)
	}

	if err := b.runLoop(ctx, opts); err != nil {
		b.Status = types.StatusError
		b.Error = err.Error()
		b.log.Error("backtest failed", zap.String("id", b.ID), zap.Error(err))
		b.save(ctx)

		return
	}

	b.Stats = stats.Compute(b.Portfolio.ValueHistory, b.Portfolio.DeltaHistory, b.Portfolio.InitialValue)

	if opts.GenerateBaseline {
		if err := b.Portfolio.GenerateBaselineComparison(ctx, b.provider, b.Interval, b.ComparisonAsset); err != nil {
			b.Status = types.StatusError
			b.Error = err.Error()
			b.log.Error("baseline comparison failed", zap.String("id", b.ID), zap.Error(err))
			b.save(ctx)

			return
		}
	}

	b.Status = types.StatusComplete
	b.log.Info("backtest complete",
		zap.String("id", b.ID),
		zap.Int("steps", b.StepCount),
		zap.Int("snapshot_misses", b.SnapshotMisses),
		zap.Float64("final_value", finalValue(b.Portfolio)))

	if opts.SaveOnRun {
		b.save(ctx)
	}
}

func (b *Backtester) runLoop(ctx context.Context, opts RunOptions) error {
	totalSteps := b.projectedSteps()

	for b.CurrentDate.Before(b.EndDate) {
		now, err := b.cursor.At(b.CurrentDate)
		if err != nil {
			return err
		}

		if snapshot, open := b.marketSnapshot(ctx, now); open {
			for _, strategy := range b.Portfolio.Strategies {
				if err := b.buyFlow(ctx, strategy, snapshot, now); err != nil {
					return err
				}

				if err := b.sellFlow(ctx, strategy, snapshot, now); err != nil {
					return err
				}
			}

			b.Portfolio.UpdateHistory(snapshot, now)
			b.Portfolio.RefreshLastPrices(snapshot)
		}

		eod := b.cursor.IsEOD()
		b.cursor.Next()

		if eod {
			b.CurrentDate = b.CurrentDate.AddDate(0, 0, 1)
		}

		b.StepCount++
		b.Portfolio.DeleteExpiredOptions(b.CurrentDate)

		if opts.OnStep != nil {
			opts.OnStep(b.StepCount, totalSteps)
		}
	}

	return nil
}

// marketSnapshot probes whether the market is open by speculatively
// fetching prices. Any failure to obtain a snapshot means closed; holidays,
// weekends and missing data all flow through this one path.
func (b *Backtester) marketSnapshot(ctx context.Context, now time.Time) (types.PriceSnapshot, bool) {
	snapshot, err := b.provider.GetBacktestPrices(ctx, now, b.Interval)
	if err != nil {
		b.SnapshotMisses++

		return types.PriceSnapshot{}, false
	}

	return snapshot, true
}

// buyFlow evaluates the strategy's buy conditions in order. Quantity and
// fill price are computed once up front. The first condition that evaluates
// true places the order and ends the flow; the flow also stops once buying
// power falls below 1% of the initial value or the quantity is non-positive.
func (b *Backtester) buyFlow(ctx context.Context, strategy *portfolio.Strategy, snapshot types.PriceSnapshot, now time.Time) error {
	price, err := snapshot.DynamicPrice(strategy.TargetAsset.Symbol, types.OrderSideBuy, b.Portfolio.Config.FillPolicy)
	if err != nil {
		// The target simply has no quote this step.
		return nil
	}

	portfolioValue := b.Portfolio.CalculateValue(snapshot)

	quantity, err := allocation.QuantityToBuy(strategy.BuyAmount, price, b.Portfolio.BuyingPower, portfolioValue)
	if err != nil {
		return err
	}

	ec := b.evalContext(strategy, snapshot, portfolioValue, now)

	for _, cond := range strategy.BuyConditions {
		if b.Portfolio.BuyingPower < b.Portfolio.InitialValue*minBuyingPowerFraction || quantity <= 0 {
			return nil
		}

		fire, err := cond.IsTrue(ctx, ec)
		if err != nil {
			return err
		}

		if !fire {
			continue
		}

		order := b.newOrder(strategy, types.OrderSideBuy, quantity, price, now)
		if err := order.Validate(); err != nil {
			return err
		}

		// The action records buying power at decision time, before the fill.
		buyingPower := b.Portfolio.BuyingPower

		b.Portfolio.Buy(order)
		b.BuyHistory = append(b.BuyHistory, types.Action{
			Date:          now,
			Symbol:        order.Symbol,
			StrategyName:  strategy.Name,
			BuyingPower:   buyingPower,
			ConditionName: cond.Name(),
			Quantity:      quantity,
			Price:         price,
			Order:         *order,
		})

		return nil
	}

	return nil
}

// sellFlow evaluates every sell condition against the open position in the
// strategy's target asset. Every condition that evaluates true fires an
// independent sell order; there is no early exit.
func (b *Backtester) sellFlow(ctx context.Context, strategy *portfolio.Strategy, snapshot types.PriceSnapshot, now time.Time) error {
	for _, cond := range strategy.SellConditions {
		position, ok := b.Portfolio.Positions[strategy.TargetAsset.Symbol]
		if !ok {
			continue
		}

		portfolioValue := b.Portfolio.CalculateValue(snapshot)
		ec := b.evalContext(strategy, snapshot, portfolioValue, now)

		fire, err := cond.IsTrue(ctx, ec)
		if err != nil {
			return err
		}

		if !fire {
			continue
		}

		price, err := snapshot.DynamicPrice(position.Symbol, types.OrderSideSell, b.Portfolio.Config.FillPolicy)
		if err != nil {
			continue
		}

		quantity, err := allocation.QuantityToSell(strategy.SellAmount, price, *position, portfolioValue)
		if err != nil {
			return err
		}

		if quantity <= 0 {
			continue
		}

		order := b.newOrder(strategy, types.OrderSideSell, quantity, price, now)
		if err := order.Validate(); err != nil {
			return err
		}

		buyingPower := b.Portfolio.BuyingPower

		b.Portfolio.Sell(order)
		b.SellHistory = append(b.SellHistory, types.Action{
			Date:          now,
			Symbol:        order.Symbol,
			StrategyName:  strategy.Name,
			BuyingPower:   buyingPower,
			ConditionName: cond.Name(),
			Quantity:      quantity,
			Price:         price,
			Order:         *order,
		})
	}

	return nil
}

func (b *Backtester) evalContext(strategy *portfolio.Strategy, snapshot types.PriceSnapshot, portfolioValue float64, now time.Time) *condition.EvalContext {
	position := optional.None[types.Position]()
	if p, ok := b.Portfolio.Positions[strategy.TargetAsset.Symbol]; ok {
		position = optional.Some(*p)
	}

	return &condition.EvalContext{
		StrategyName:   strategy.Name,
		Snapshot:       snapshot,
		Position:       position,
		BuyingPower:    b.Portfolio.BuyingPower,
		PortfolioValue: portfolioValue,
		CurrentTime:    now,
		Provider:       b.provider,
		FillPolicy:     b.Portfolio.Config.FillPolicy,
	}
}

func (b *Backtester) newOrder(strategy *portfolio.Strategy, side types.OrderSide, quantity, price float64, now time.Time) *types.Order {
	return &types.Order{
		ID:          uuid.NewString(),
		Symbol:      strategy.TargetAsset.Symbol,
		Name:        strategy.TargetAsset.Name,
		Class:       strategy.TargetAsset.Class,
		Side:        side,
		Quantity:    quantity,
		Price:       price,
		FilledAt:    now,
		Expiration:  strategy.TargetAsset.Expiration,
		StrategyID:  strategy.Name,
		PortfolioID: b.ID,
		UserID:      b.UserID,
	}
}

// GetActions merges the buy and sell logs, sorted by fill timestamp.
func (b *Backtester) GetActions() []types.Action {
	actions := make([]types.Action, 0, len(b.BuyHistory)+len(b.SellHistory))
	actions = append(actions, b.BuyHistory...)
	actions = append(actions, b.SellHistory...)

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Order.FilledAt.Before(actions[j].Order.FilledAt)
	})

	return actions
}

// projectedSteps estimates the total loop iterations for progress reporting.
func (b *Backtester) projectedSteps() int {
	days := int(b.EndDate.Sub(b.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}

	return days * b.cursor.StepsPerDay()
}

func (b *Backtester) save(ctx context.Context) {
	if b.saver == nil {
		return
	}

	b.UpdatedAt = time.Now()

	if err := b.saver.Save(ctx, b); err != nil {
		b.log.Error("failed to persist backtest", zap.String("id", b.ID), zap.Error(err))
	}
}

func finalValue(ledger *portfolio.Ledger) float64 {
	if len(ledger.ValueHistory) == 0 {
		return ledger.InitialValue
	}

	return ledger.ValueHistory[len(ledger.ValueHistory)-1]
}
