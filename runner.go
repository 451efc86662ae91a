package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner lets the scheduler dispatch work onto any concurrency model.
type Runner interface {
	Go(fn func() error) // schedule, may block while the pool is full
	Wait() error        // join every scheduled fn
}

// RunnerFactory builds a Runner for one batch with at most limit tasks in flight.
type RunnerFactory func(ctx context.Context, limit int) Runner

// NewLimitedRunner creates a runner with bounded concurrency.
func NewLimitedRunner(ctx context.Context, maxConcurrency int) Runner {
	return newErrGroupRunner(ctx, maxConcurrency)
}

// errGroupRunner is the default implementation backed by errgroup.Group.
type errGroupRunner struct {
	ctx context.Context // derived ctx shared by all tasks
	eg  *errgroup.Group
}

func newErrGroupRunner(parent context.Context, maxConcurrency int) *errGroupRunner {
	eg, ctx := errgroup.WithContext(parent)
	if maxConcurrency > 0 {
		eg.SetLimit(maxConcurrency)
	}
	return &errGroupRunner{ctx: ctx, eg: eg}
}

func (r *errGroupRunner) Go(fn func() error) { r.eg.Go(fn) }

func (r *errGroupRunner) Wait() error { return r.eg.Wait() }
