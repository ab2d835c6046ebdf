// Package stats computes risk-adjusted performance metrics from the value
// and delta-value histories recorded by a backtest ledger.
package stats

import "math"

// Statistics holds the six scalar performance metrics of one run. Values are
// immutable after computation; Add and Divide return new values so that an
// optimizer can average statistics across repeated perturbed runs.
type Statistics struct {
	Sortino       float64 `yaml:"sortino" json:"sortino"`
	Sharpe        float64 `yaml:"sharpe" json:"sharpe"`
	PercentChange float64 `yaml:"percent_change" json:"percent_change"`
	TotalChange   float64 `yaml:"total_change" json:"total_change"`
	AverageChange float64 `yaml:"average_change" json:"average_change"`
	MaxDrawdown   float64 `yaml:"max_drawdown" json:"max_drawdown"`
}

// Compute derives all six metrics from a value history and its aligned
// per-step delta history. An empty value history yields zero statistics;
// Sharpe and Sortino are defined as exactly 0 whenever the relevant standard
// deviation is 0, never NaN or Inf.
func Compute(valueHistory, deltaHistory []float64, initialValue float64) Statistics {
	if len(valueHistory) == 0 || initialValue == 0 {
		return Statistics{}
	}

	finalValue := valueHistory[len(valueHistory)-1]
	totalChange := finalValue - initialValue
	percentChange := totalChange / initialValue * 100
	averageChange := mean(deltaHistory)

	// Fixed per-step risk-free rate, uncompounded: a risk-free account earns
	// initialValue*0.001 each step, so the total risk-free return is 0.1%
	// per step.
	steps := float64(len(valueHistory))
	riskFreeValue := initialValue + initialValue*0.001*steps
	riskFreePercent := (riskFreeValue - initialValue) / initialValue * 100

	sd := standardDeviation(deltaHistory, averageChange, false)
	negativeSd := standardDeviation(deltaHistory, averageChange, true)

	sharpe := 0.0
	if sd != 0 {
		sharpe = (percentChange - riskFreePercent) / sd
	}

	sortino := 0.0
	if negativeSd != 0 {
		sortino = (totalChange - riskFreePercent) / negativeSd
	}

	return Statistics{
		Sortino:       sortino,
		Sharpe:        sharpe,
		PercentChange: percentChange,
		TotalChange:   totalChange,
		AverageChange: averageChange,
		MaxDrawdown:   MaxDrawdown(valueHistory),
	}
}

// MaxDrawdown is the largest peak-to-trough decline in the value history, in
// value units. The running peak and trough reset together whenever a new
// all-time high is observed.
func MaxDrawdown(valueHistory []float64) float64 {
	if len(valueHistory) == 0 {
		return 0
	}

	peak := valueHistory[0]
	trough := valueHistory[0]
	maxDrawdown := 0.0

	for _, value := range valueHistory[1:] {
		if value > peak {
			peak = value
			trough = value

			continue
		}

		if value < trough {
			trough = value
			if drawdown := peak - trough; drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// Add returns the element-wise sum of two statistics. The receiver is not
// mutated.
func (s Statistics) Add(other Statistics) Statistics {
	return Statistics{
		Sortino:       s.Sortino + other.Sortino,
		Sharpe:        s.Sharpe + other.Sharpe,
		PercentChange: s.PercentChange + other.PercentChange,
		TotalChange:   s.TotalChange + other.TotalChange,
		AverageChange: s.AverageChange + other.AverageChange,
		MaxDrawdown:   s.MaxDrawdown + other.MaxDrawdown,
	}
}

// Divide returns the statistics scaled by 1/n. Dividing by zero returns the
// receiver unchanged.
func (s Statistics) Divide(n float64) Statistics {
	if n == 0 {
		return s
	}

	return Statistics{
		Sortino:       s.Sortino / n,
		Sharpe:        s.Sharpe / n,
		PercentChange: s.PercentChange / n,
		TotalChange:   s.TotalChange / n,
		AverageChange: s.AverageChange / n,
		MaxDrawdown:   s.MaxDrawdown / n,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// standardDeviation computes the deviation of values about the supplied mean.
// When negativeOnly is set, only negative values contribute (downside
// deviation), but they still deviate about the same mean.
func standardDeviation(values []float64, about float64, negativeOnly bool) float64 {
	count := 0
	sumSquares := 0.0

	for _, v := range values {
		if negativeOnly && v >= 0 {
			continue
		}

		diff := v - about
		sumSquares += diff * diff
		count++
	}

	if count == 0 {
		return 0
	}

	return math.Sqrt(sumSquares / float64(count))
}
