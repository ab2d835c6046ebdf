package market

import (
	"math"
	"math/rand"
	"time"

	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// TransformerConfig controls the synthetic price generator.
type TransformerConfig struct {
	// MeanDeviation shifts the drift of the synthetic series. Half of it is
	// added to the open-to-close mean, half to the close-to-next-open mean,
	// leaving volatility characteristics untouched.
	MeanDeviation float64 `yaml:"mean_deviation" json:"mean_deviation"`
	// Ratio (0-100) is the percentage of constructions that transform at
	// all. 0 always returns the original history; 100 always transforms.
	Ratio float64 `yaml:"ratio" json:"ratio" validate:"gte=0,lte=100"`
	// Seed makes sampling deterministic when non-zero.
	Seed int64 `yaml:"seed" json:"seed"`
}

// Transformer fits a parametric model to a historical price window and
// resamples a perturbed price path over the same calendar window. It is the
// stress-testing half of the optimizer loop: strategies are re-run against
// statistically plausible alternate histories.
type Transformer struct {
	config TransformerConfig
	rng    *rand.Rand
}

// distribution captures the mean and standard deviation of one empirical
// bar-to-bar delta series.
type distribution struct {
	Mean float64
	Sd   float64
}

// NewTransformer creates a Transformer. A zero seed falls back to a
// time-based seed.
func NewTransformer(config TransformerConfig) *Transformer {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Transformer{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Transform returns a copy of the full history with the bars inside
// [start, end] perturbed. Bars outside the window, such as lookback history
// before the start date, are carried through unchanged so both outcomes of
// the ratio gate cover the same dates. The gate is rolled once per call:
// below the gate the untouched clone is returned. The input map is never
// mutated; the generator works on a copy.
func (t *Transformer) Transform(history types.MarketHistory, start, end time.Time) (types.MarketHistory, error) {
	if len(history) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyMarketHistory, "market history cannot be empty")
	}

	clone := history.Clone()

	apply := t.rng.Float64()*100 < t.config.Ratio
	if !apply {
		return clone, nil
	}

	for symbol, bars := range clone {
		lo, hi := rangeBounds(bars, start, end)
		if lo == hi {
			return nil, errors.Newf(errors.ErrCodeEmptyMarketHistory,
				"market history cannot be empty: no bars for %s in range", symbol)
		}

		transformed, err := t.transformSymbol(bars[lo:hi])
		if err != nil {
			return nil, err
		}

		copy(bars[lo:hi], transformed)
	}

	return clone, nil
}

// transformSymbol rebuilds a bar sequence by sampling the four fitted delta
// distributions. The first bar anchors the walk and is carried unchanged.
func (t *Transformer) transformSymbol(bars []types.Bar) ([]types.Bar, error) {
	highDist, lowDist, closeDist, openDist := fitDistributions(bars)

	// Split the drift shift between the intraday and overnight legs.
	closeDist.Mean += t.config.MeanDeviation / 2
	openDist.Mean += t.config.MeanDeviation / 2

	result := make([]types.Bar, len(bars))
	result[0] = bars[0]

	for i := 1; i < len(bars); i++ {
		prev := result[i-1]

		openSample := t.sampleNormal(openDist)
		closeSample := t.sampleNormal(closeDist)
		highSample := t.sampleNormal(highDist)
		lowSample := t.sampleNormal(lowDist)

		open := round2(prev.Close + prev.Close*openSample)
		close := round2(open + prev.Open*closeSample)
		high := round2(open + prev.Open*highSample)
		low := round2(open + prev.Open*lowSample)

		result[i] = types.Bar{
			Symbol: bars[i].Symbol,
			Time:   bars[i].Time,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			// Volume is carried through from the original bar.
			Volume: bars[i].Volume,
		}
	}

	return result, nil
}

// fitDistributions computes the empirical mean and standard deviation of the
// four historical delta series: (high-open)/open, (low-open)/open,
// (close-open)/low (the denominator is low, mirroring the historical
// computation), and (open-prevClose)/prevClose.
func fitDistributions(bars []types.Bar) (high, low, close, open distribution) {
	highDeltas := make([]float64, 0, len(bars))
	lowDeltas := make([]float64, 0, len(bars))
	closeDeltas := make([]float64, 0, len(bars))
	openDeltas := make([]float64, 0, len(bars))

	for i, bar := range bars {
		if bar.Open != 0 {
			highDeltas = append(highDeltas, (bar.High-bar.Open)/bar.Open)
			lowDeltas = append(lowDeltas, (bar.Low-bar.Open)/bar.Open)
		}

		if bar.Low != 0 {
			closeDeltas = append(closeDeltas, (bar.Close-bar.Open)/bar.Low)
		}

		if i > 0 && bars[i-1].Close != 0 {
			openDeltas = append(openDeltas, (bar.Open-bars[i-1].Close)/bars[i-1].Close)
		}
	}

	return fit(highDeltas), fit(lowDeltas), fit(closeDeltas), fit(openDeltas)
}

func fit(deltas []float64) distribution {
	if len(deltas) == 0 {
		return distribution{}
	}

	sum := 0.0
	for _, d := range deltas {
		sum += d
	}

	mean := sum / float64(len(deltas))

	sumSquares := 0.0
	for _, d := range deltas {
		diff := d - mean
		sumSquares += diff * diff
	}

	return distribution{
		Mean: mean,
		Sd:   math.Sqrt(sumSquares / float64(len(deltas))),
	}
}

// sampleNormal draws from Normal(mean, sd) via the Box-Muller transform.
func (t *Transformer) sampleNormal(d distribution) float64 {
	u1 := t.rng.Float64()
	for u1 == 0 {
		u1 = t.rng.Float64()
	}

	u2 := t.rng.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

	return d.Mean + d.Sd*z
}

// rangeBounds returns the half-open index range of bars inside [start, end].
// Bars are sorted by time, so the range is contiguous.
func rangeBounds(bars []types.Bar, start, end time.Time) (int, int) {
	lo := len(bars)
	hi := len(bars)

	for i, bar := range bars {
		if bar.Time.Before(start) {
			continue
		}

		lo = i
		break
	}

	for i := lo; i < len(bars); i++ {
		if bars[i].Time.After(end) {
			hi = i
			break
		}
	}

	return lo, hi
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
