package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Scheduler fans a batch of requests out over a bounded worker pool and
// collects one attempt per request in request order.
type Scheduler struct {
	exec *RetryingExecutor
	opts Options
	log  *zap.Logger
}

// NewScheduler builds a scheduler around a fresh executor for client.
func NewScheduler(client CompletionClient, optFns ...func(*Options)) (*Scheduler, error) {
	if isNilClient(client) {
		return nil, ErrNoClient
	}
	opts := buildOptions(defaultOptions(), optFns...)
	return &Scheduler{
		exec: newExecutor(client, opts),
		opts: opts,
		log:  opts.Logger,
	}, nil
}

// Stats returns a snapshot of the executor counters.
func (s *Scheduler) Stats() StatsSnapshot {
	if s == nil || s.exec == nil {
		return StatsSnapshot{}
	}
	return s.exec.stats.Snapshot()
}

// Executor exposes the executor driving each request.
func (s *Scheduler) Executor() *RetryingExecutor { return s.exec }

// RunBatch executes every request and returns attempts aligned with reqs.
// Failures of single requests are reported in their slots; the only error
// returned is ErrNoClient. Options given here override the scheduler's
// pool size, progress and attempt hooks for this batch.
func (s *Scheduler) RunBatch(ctx context.Context, reqs []ExtractionRequest, optFns ...func(*Options)) (BatchResult, error) {
	if s == nil || s.exec == nil || isNilClient(s.exec.client) {
		return nil, ErrNoClient
	}

	results := make(BatchResult, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	opts := buildOptions(s.opts, optFns...)
	total := len(reqs)
	start := time.Now()
	s.log.Info("batch started",
		zap.Int("requests", total),
		zap.Int("workers", opts.Concurrency),
	)

	var (
		mu        sync.Mutex
		completed int
	)
	runner := opts.Runner(ctx, opts.Concurrency)
	for i, req := range reqs {
		runner.Go(func() error {
			attempt := s.runOne(ctx, req)
			results[i] = attempt
			if opts.OnAttempt != nil {
				opts.OnAttempt(attempt)
			}

			mu.Lock()
			defer mu.Unlock()
			completed++
			if opts.Progress != nil {
				opts.Progress(completed, total)
			}
			if completed%10 == 0 || completed == total {
				s.log.Info("batch progress",
					zap.Int("completed", completed),
					zap.Int("total", total),
				)
			}
			return nil
		})
	}
	_ = runner.Wait() // workers never return an error

	s.log.Info("batch finished",
		zap.Int("requests", total),
		zap.Int("succeeded", results.Succeeded()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

// runOne turns a panic during execution into a failed attempt for the slot.
func (s *Scheduler) runOne(ctx context.Context, req ExtractionRequest) (attempt ExtractionAttempt) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("worker panic", zap.String("request", req.ID), zap.Any("panic", r))
			s.exec.stats.failed.Add(1)
			attempt = failedAttempt(req, eris.Wrapf(ErrWorkerPanic, "%v", r))
		}
	}()
	return s.exec.Execute(ctx, req)
}
