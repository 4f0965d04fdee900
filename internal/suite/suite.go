// Package suite runs independent scenarios concurrently.
package suite

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wondertwin-ai/apicheck/internal/scenario"
)

// Result pairs a scenario with its run. Err is set when the scenario could
// not start, in which case Run is nil.
type Result struct {
	Scenario *scenario.Scenario
	Run      *scenario.Run
	Err      error
}

// Passed reports whether the scenario ran and every step passed.
func (r Result) Passed() bool {
	return r.Err == nil && r.Run != nil && r.Run.Passed
}

// Suite runs scenarios through a shared Runner.
type Suite struct {
	runner      *scenario.Runner
	concurrency int
	logger      *zap.Logger
}

// New creates a Suite that runs at most concurrency scenarios at once.
// Values below one run scenarios one at a time.
func New(runner *scenario.Runner, concurrency int, logger *zap.Logger) *Suite {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{runner: runner, concurrency: concurrency, logger: logger}
}

// Run executes every scenario and returns results in input order.
// A scenario that fails to start does not stop the others; cancelling ctx
// stops scenarios that have not started yet.
func (s *Suite) Run(ctx context.Context, scenarios []*scenario.Scenario) ([]Result, error) {
	results := make([]Result, len(scenarios))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, sc := range scenarios {
		results[i].Scenario = sc
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			run, err := s.runner.Run(ctx, sc)
			if err != nil {
				s.logger.Warn("scenario did not start", zap.String("scenario", sc.Name), zap.Error(err))
			}
			results[i].Run = run
			results[i].Err = err
			return nil
		})
	}

	_ = g.Wait()
	return results, ctx.Err()
}
