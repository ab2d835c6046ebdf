// Package worker executes backtest runs on a fixed-size pool. Each run is
// one sequential unit of work; scaling comes from running independent jobs
// side by side, never from parallelism inside a run. Jobs and results cross
// the pool boundary by copy, so no mutable state is shared between a
// submitter and a worker.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/austin-starks/nexttrade/internal/backtest"
	"github.com/austin-starks/nexttrade/internal/logger"
	"github.com/austin-starks/nexttrade/internal/market"
	"github.com/austin-starks/nexttrade/internal/stats"
	"github.com/austin-starks/nexttrade/internal/types"
)

// Job describes one run to execute. Provider, when set, overrides the
// pool's shared provider for this job only; perturbed runs use it to hand
// each worker its own synthetic history.
type Job struct {
	Config   backtest.Config
	Options  backtest.RunOptions
	Provider market.Provider
}

// Result is the outcome summary of one job. Construction failures carry an
// empty ID and the validation message.
type Result struct {
	ID     string
	Name   string
	Status types.Status
	Error  string
	Stats  stats.Statistics
}

// Pool runs jobs on a fixed number of workers sharing one read-only price
// provider.
type Pool struct {
	size     int
	provider market.Provider
	saver    backtest.Saver
	log      *logger.Logger

	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given number of workers. The provider is
// shared read-only across workers; the saver may be nil for unpersisted runs.
func NewPool(size int, provider market.Provider, saver backtest.Saver, log *logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Pool{
		size:     size,
		provider: provider,
		saver:    saver,
		log:      log,
		jobs:     make(chan Job),
		results:  make(chan Result, size),
	}
}

// Start launches the workers. Results must be drained by the caller.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)

		go p.worker(ctx, i)
	}

	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Submit queues one job. Blocks while all workers are busy.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Close signals that no more jobs will be submitted. Workers finish their
// queues and the results channel closes once the last one exits.
func (p *Pool) Close() {
	close(p.jobs)
}

// Results is the stream of job outcomes.
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		provider := p.provider
		if job.Provider != nil {
			provider = job.Provider
		}

		b, err := backtest.New(ctx, job.Config, provider, p.saver, p.log)
		if err != nil {
			p.log.Error("job rejected at validation",
				zap.Int("worker", id),
				zap.String("name", job.Config.Name),
				zap.Error(err))
			p.results <- Result{Name: job.Config.Name, Status: types.StatusError, Error: err.Error()}

			continue
		}

		b.Run(ctx, job.Options)

		p.results <- Result{
			ID:     b.ID,
			Name:   b.Name,
			Status: b.Status,
			Error:  b.Error,
			Stats:  b.Stats,
		}
	}
}
