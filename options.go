package reconcile

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultConcurrency = 5
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = time.Second
	DefaultRounds      = 3
	DefaultChunkSize   = 50
)

// ProgressFunc receives the number of completed units and the total.
// Calls are serialized and completed is strictly increasing.
type ProgressFunc func(completed, total int)

// SelfConsistency asks the extractor to run every record several times and
// vote on the answers.
type SelfConsistency struct {
	Enabled  bool
	Rounds   int
	Strategy Strategy
}

// Options represents functional options shared by the executor, scheduler,
// extractor and the analyzer drivers.
type Options struct {
	Model           string
	Concurrency     int           // worker pool size, ≤0 → DefaultConcurrency
	MaxRetries      int           // retries after the first call
	Backoff         time.Duration // base delay, doubled per retry
	MaxBackoff      time.Duration // 0 → uncapped
	Jitter          float64       // ±fraction applied to each delay
	RateLimit       time.Duration // minimum interval between remote calls
	Timeout         time.Duration // per remote call, 0 → none
	Instructions    string        // default instruction tag for Extract
	Prompts         PromptProvider
	SelfConsistency SelfConsistency
	Progress        ProgressFunc
	OnAttempt       func(ExtractionAttempt)
	OnRetry         func(req ExtractionRequest, attempt int, err error)
	Runner          RunnerFactory // nil → NewLimitedRunner
	ChunkSize       int           // fields per analyzer request
	Roles           []string      // discovery analyzer roles
	Logger          *zap.Logger
	Stats           *Stats
}

func defaultOptions() Options {
	return Options{
		Concurrency: DefaultConcurrency,
		MaxRetries:  DefaultMaxRetries,
		Backoff:     DefaultBaseDelay,
		ChunkSize:   DefaultChunkSize,
		SelfConsistency: SelfConsistency{
			Rounds:   DefaultRounds,
			Strategy: StrategyMajorityVote,
		},
	}
}

func buildOptions(base Options, optFns ...func(*Options)) Options {
	opts := base
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}
	if opts.Runner == nil {
		opts.Runner = NewLimitedRunner
	}
	return opts
}

// Functional option constructors
func WithModel(name string) func(*Options) {
	return func(o *Options) { o.Model = name }
}

func WithConcurrency(n int) func(*Options) {
	return func(o *Options) { o.Concurrency = n }
}

func WithRetry(max int, backoff time.Duration) func(*Options) {
	return func(o *Options) {
		o.MaxRetries = max
		o.Backoff = backoff
	}
}

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(d time.Duration) func(*Options) {
	return func(o *Options) { o.MaxBackoff = d }
}

// WithJitter spreads retry delays by ±fraction (0.2 → ±20%).
func WithJitter(fraction float64) func(*Options) {
	return func(o *Options) { o.Jitter = fraction }
}

func WithRateLimit(interval time.Duration) func(*Options) {
	return func(o *Options) { o.RateLimit = interval }
}

func WithTimeout(d time.Duration) func(*Options) {
	return func(o *Options) { o.Timeout = d }
}

func WithInstructions(tag string) func(*Options) {
	return func(o *Options) { o.Instructions = tag }
}

func WithPrompts(p PromptProvider) func(*Options) {
	return func(o *Options) { o.Prompts = p }
}

// WithSelfConsistency runs every record rounds times and keeps the answer
// chosen by strategy.
func WithSelfConsistency(rounds int, strategy Strategy) func(*Options) {
	return func(o *Options) {
		o.SelfConsistency = SelfConsistency{Enabled: true, Rounds: rounds, Strategy: strategy}
	}
}

func WithProgress(fn ProgressFunc) func(*Options) {
	return func(o *Options) { o.Progress = fn }
}

// WithOnAttempt delivers every finished attempt as soon as it completes.
// The hook runs on worker goroutines.
func WithOnAttempt(fn func(ExtractionAttempt)) func(*Options) {
	return func(o *Options) { o.OnAttempt = fn }
}

func WithOnRetry(fn func(req ExtractionRequest, attempt int, err error)) func(*Options) {
	return func(o *Options) { o.OnRetry = fn }
}

func WithRunner(f RunnerFactory) func(*Options) {
	return func(o *Options) { o.Runner = f }
}

func WithChunkSize(n int) func(*Options) {
	return func(o *Options) { o.ChunkSize = n }
}

// WithRoles sets the analyzer roles used by Discovery.
func WithRoles(roles ...string) func(*Options) {
	return func(o *Options) { o.Roles = roles }
}

func WithLogger(l *zap.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithStats shares one set of counters between components.
func WithStats(s *Stats) func(*Options) {
	return func(o *Options) { o.Stats = s }
}
