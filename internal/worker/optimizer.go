package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/austin-starks/nexttrade/internal/backtest"
	"github.com/austin-starks/nexttrade/internal/logger"
	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/stats"
	"github.com/austin-starks/nexttrade/internal/types"
	"github.com/austin-starks/nexttrade/pkg/errors"
)

// AverageStatistics stress-tests one configuration by running it against
// `runs` synthetically perturbed copies of the price history and averaging
// the resulting statistics. Each run gets its own resampled history from
// the transformer config (the seed is offset per run so paths differ);
// the transformer's ratio controls what share of runs see a perturbed
// history at all. Runs that end in ERROR are excluded from the average.
func AverageStatistics(ctx context.Context, config backtest.Config, history types.MarketHistory, tc market.TransformerConfig, runs, poolSize int, log *logger.Logger) (stats.Statistics, error) {
	if runs < 1 {
		return stats.Statistics{}, errors.Newf(errors.ErrCodeInvalidParameter, "runs must be positive, got %d", runs)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	start, end, err := config.DateRange()
	if err != nil {
		return stats.Statistics{}, err
	}

	pool := NewPool(poolSize, nil, nil, log)
	pool.Start(ctx)

	submitErr := make(chan error, 1)

	go func() {
		defer pool.Close()

		for i := 0; i < runs; i++ {
			runConfig := tc
			if runConfig.Seed != 0 {
				runConfig.Seed += int64(i)
			}

			transformed, err := market.NewTransformer(runConfig).Transform(history, start, end)
			if err != nil {
				submitErr <- err

				return
			}

			job := Job{
				Config:   config,
				Provider: market.NewHistoryProvider(transformed),
			}
			job.Config.Name = fmt.Sprintf("%s-perturbed-%d", config.Name, i)

			pool.Submit(job)
		}

		submitErr <- nil
	}()

	total := stats.Statistics{}
	completed := 0

	for result := range pool.Results() {
		if result.Status != types.StatusComplete {
			log.Warn("perturbed run excluded from average",
				zap.String("name", result.Name),
				zap.String("error", result.Error))

			continue
		}

		total = total.Add(result.Stats)
		completed++
	}

	if err := <-submitErr; err != nil {
		return stats.Statistics{}, err
	}

	if completed == 0 {
		return stats.Statistics{}, errors.New(errors.ErrCodeGeneratorFailed, "no perturbed run completed")
	}

	return total.Divide(float64(completed)), nil
}
