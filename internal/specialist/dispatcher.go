package specialist

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Dispatcher caps how many specialist runs execute at once. Each run makes
// model calls, so the cap keeps parallel fan-out under the model's request
// budget.
type Dispatcher struct {
	runner *Runner
	sem    *semaphore.Weighted
	limit  int
}

// NewDispatcher wraps a runner with a concurrency cap (minimum 1).
func NewDispatcher(runner *Runner, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		limit:  maxConcurrent,
	}
}

// Limit returns the configured cap.
func (d *Dispatcher) Limit() int { return d.limit }

// Dispatch runs one request once a slot is free. If ctx ends while waiting
// the run is reported as forced done without calling the model.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	err := ctx.Err()
	if err == nil {
		err = d.sem.Acquire(ctx, 1)
	}
	if err != nil {
		return Result{
			FinalText:  budgetExhaustedText,
			ForcedDone: true,
			Diagnostic: fmt.Sprintf("dispatch slot unavailable: %v", err),
		}
	}
	defer d.sem.Release(1)
	return d.runner.Run(ctx, req)
}

// DispatchAll runs requests in parallel under the cap and returns results
// in request order.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = d.Dispatch(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
