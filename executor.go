package reconcile

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// attemptState is a step of the per-request retry machine.
type attemptState int

const (
	statePending attemptState = iota
	stateRunning
	stateRetryScheduled
	stateSucceeded
	stateFailed
)

func (s attemptState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRunning:
		return "running"
	case stateRetryScheduled:
		return "retry_scheduled"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// RetryingExecutor runs one request against the completion service,
// retrying failed calls with exponential backoff.
type RetryingExecutor struct {
	client   CompletionClient
	prompts  PromptProvider
	base     time.Duration
	maxDelay time.Duration
	jitter   float64
	timeout  time.Duration
	throttle *Throttle
	stats    *Stats
	onRetry  func(ExtractionRequest, int, error)
	log      *zap.Logger
}

// NewRetryingExecutor builds an executor. A nil client yields ErrNoClient.
func NewRetryingExecutor(client CompletionClient, optFns ...func(*Options)) (*RetryingExecutor, error) {
	if isNilClient(client) {
		return nil, ErrNoClient
	}
	opts := buildOptions(defaultOptions(), optFns...)
	return newExecutor(client, opts), nil
}

func newExecutor(client CompletionClient, opts Options) *RetryingExecutor {
	return &RetryingExecutor{
		client:   client,
		prompts:  opts.Prompts,
		base:     opts.Backoff,
		maxDelay: opts.MaxBackoff,
		jitter:   opts.Jitter,
		timeout:  opts.Timeout,
		throttle: NewThrottle(opts.RateLimit),
		stats:    opts.Stats,
		onRetry:  opts.OnRetry,
		log:      opts.Logger,
	}
}

// Stats returns the executor's counters.
func (e *RetryingExecutor) Stats() *Stats { return e.stats }

// Execute drives req to a final attempt. The client is called at most
// req.MaxRetries+1 times; the first success ends the loop. A cancelled ctx
// ends in failure with the last outcome.
func (e *RetryingExecutor) Execute(ctx context.Context, req ExtractionRequest) ExtractionAttempt {
	start := time.Now()
	e.stats.total.Add(1)
	log := e.log.With(
		zap.String("request", req.ID),
		zap.Int("record", req.RecordIndex),
		zap.Int("round", req.Round),
	)

	var (
		state = statePending
		out   ExtractionAttempt
		usage Usage
		calls int
		delay time.Duration
		instr string
	)

	for {
		switch state {
		case statePending:
			var err error
			instr, err = resolveInstructions(e.prompts, req)
			if err != nil {
				out = failedAttempt(req, eris.Wrap(err, "resolve instructions"))
				state = stateFailed
				continue
			}
			state = stateRunning

		case stateRunning:
			out = e.call(ctx, req, instr)
			calls++
			usage = usage.add(out.Usage)
			switch {
			case out.Success:
				state = stateSucceeded
			case calls > req.MaxRetries || ctx.Err() != nil:
				state = stateFailed
			default:
				delay = e.backoff(calls - 1)
				state = stateRetryScheduled
			}

		case stateRetryScheduled:
			e.stats.retried.Add(1)
			log.Warn("retrying request",
				zap.Int("attempt", calls),
				zap.Duration("delay", delay),
				zap.String("kind", errorKind(out.cause)),
				zap.Error(out.cause),
			)
			if e.onRetry != nil {
				e.onRetry(req, calls, out.cause)
			}
			if !sleepCtx(ctx, delay) {
				state = stateFailed
				continue
			}
			state = stateRunning

		case stateSucceeded, stateFailed:
			out.Calls = calls
			out.Usage = usage
			out.RecordIndex = req.RecordIndex
			out.Round = req.Round
			out.Duration = time.Since(start)
			if state == stateSucceeded {
				e.stats.success.Add(1)
			} else {
				e.stats.failed.Add(1)
				log.Debug("request failed", zap.Int("calls", calls), zap.String("error", out.Error))
			}
			return out
		}
	}
}

// call makes one remote call and classifies its outcome.
func (e *RetryingExecutor) call(ctx context.Context, req ExtractionRequest, instructions string) ExtractionAttempt {
	if err := e.throttle.Wait(ctx); err != nil {
		return failedAttempt(req, eris.Wrap(err, "rate limit wait"))
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	c, err := e.client.Complete(callCtx, instructions, req.Input)
	var usage Usage
	var raw string
	if c != nil {
		usage = c.Usage
		raw = c.Raw
		e.stats.addUsage(c.Usage)
	}
	if err != nil {
		out := failedAttempt(req, err)
		out.Raw = raw
		out.Usage = usage
		return out
	}
	if c == nil {
		out := failedAttempt(req, eris.Wrap(ErrEmptyResponse, "complete"))
		return out
	}
	return ExtractionAttempt{
		Success: true,
		Data:    c.Payload,
		Raw:     raw,
		Usage:   usage,
	}
}

// backoff returns the delay before retry k (0-based): base·2^k, jittered and capped.
func (e *RetryingExecutor) backoff(k int) time.Duration {
	if e.base <= 0 {
		return 0
	}
	delay := float64(e.base) * math.Pow(2, float64(k))
	if e.maxDelay > 0 && delay > float64(e.maxDelay) {
		delay = float64(e.maxDelay)
	}
	delay = min(delay, float64(math.MaxInt64))
	if e.jitter > 0 {
		r := delay * e.jitter
		delay += (rand.Float64()*2 - 1) * r
	}
	switch {
	case delay < 0:
		delay = 0
	case delay >= float64(math.MaxInt64):
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
