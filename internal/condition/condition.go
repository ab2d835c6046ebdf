// Package condition implements trading-rule evaluation as a closed set of
// variants behind one interface: simple price comparisons plus AND, OR and
// THEN groups that recursively evaluate their children.
package condition

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/types"
)

// Comparator orders an observed value against a reference value.
type Comparator string

const (
	ComparatorAbove Comparator = "ABOVE"
	ComparatorBelow Comparator = "BELOW"
)

// EvalContext carries everything a condition may inspect at one simulated
// instant. Conditions never mutate it.
type EvalContext struct {
	StrategyName   string
	Snapshot       types.PriceSnapshot
	Position       optional.Option[types.Position]
	BuyingPower    float64
	PortfolioValue float64
	CurrentTime    time.Time
	Provider       market.Provider
	FillPolicy     types.FillPolicy
}

// Condition is a trading rule. The backtester treats conditions as opaque
// except for this contract.
type Condition interface {
	// IsTrue evaluates the rule at the instant described by ec.
	IsTrue(ctx context.Context, ec *EvalContext) (bool, error)
	// Name is the textual identity recorded in action logs when the
	// condition fires.
	Name() string
	// LookbackDays is the longest historical window the condition needs;
	// run validation requires history availability this far before the
	// backtest start.
	LookbackDays() int
	// Symbols lists every asset symbol the condition references.
	Symbols() []string
	// Reset clears any per-run evaluation state (sequential groups keep
	// progress between steps).
	Reset()
}

func (c Comparator) compare(observed, reference float64) bool {
	if c == ComparatorBelow {
		return observed < reference
	}

	return observed > reference
}
