package reconcile

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConsistencyInfo describes how a record's answer was chosen across rounds.
type ConsistencyInfo struct {
	Rounds          int                 `json:"rounds"`
	Strategy        Strategy            `json:"strategy"`
	Selected        int                 `json:"selected_round"`
	AllRoundResults []ExtractionAttempt `json:"all_round_results"`
}

// RecordResult is the reconciled outcome for one input record.
type RecordResult struct {
	Index       int
	Success     bool
	Data        Value
	Error       string
	Raw         string
	Consistency *ConsistencyInfo
}

func (r RecordResult) MarshalJSON() ([]byte, error) {
	type out struct {
		Index       int              `json:"index"`
		Success     bool             `json:"success"`
		Data        *Value           `json:"data,omitempty"`
		Error       string           `json:"error,omitempty"`
		Raw         string           `json:"raw_response,omitempty"`
		Consistency *ConsistencyInfo `json:"consistency_info,omitempty"`
	}
	o := out{Index: r.Index, Success: r.Success, Error: r.Error, Consistency: r.Consistency}
	if r.Success {
		data := r.Data
		o.Data = &data
	} else {
		// full text, unlike the truncated copy in Error
		o.Raw = r.Raw
	}
	return json.Marshal(o)
}

// Extractor turns records into reconciled structured results.
type Extractor struct {
	sched *Scheduler
	opts  Options
	voter Voter
	log   *zap.Logger
}

// NewExtractor builds an extractor over client. Without WithInstructions the
// bundled extraction role is used.
func NewExtractor(client CompletionClient, optFns ...func(*Options)) (*Extractor, error) {
	sched, err := NewScheduler(client, optFns...)
	if err != nil {
		return nil, err
	}
	opts := sched.opts
	if opts.Instructions == "" {
		opts.Instructions = RoleExtract
		if opts.Prompts == nil {
			defaults, err := DefaultPrompts()
			if err != nil {
				return nil, err
			}
			opts.Prompts = defaults
			sched.exec.prompts = defaults
		}
	}
	if sc := &opts.SelfConsistency; sc.Rounds < 1 {
		sc.Rounds = 1
	}
	strategy, err := ParseStrategy(string(opts.SelfConsistency.Strategy))
	if err != nil {
		opts.Logger.Warn("unknown consistency strategy, using majority vote", zap.Error(err))
	}
	opts.SelfConsistency.Strategy = strategy
	return &Extractor{
		sched: sched,
		opts:  opts,
		voter: NewVoter(opts.SelfConsistency.Strategy, opts.Logger),
		log:   opts.Logger,
	}, nil
}

// Scheduler exposes the scheduler shared by all Extract calls.
func (x *Extractor) Scheduler() *Scheduler { return x.sched }

// Stats returns a snapshot of the request counters.
func (x *Extractor) Stats() StatsSnapshot { return x.sched.Stats() }

func (x *Extractor) rounds() int {
	if !x.opts.SelfConsistency.Enabled {
		return 1
	}
	return x.opts.SelfConsistency.Rounds
}

// Extract runs every record through the completion service and returns one
// result per record, in record order. With self-consistency each record is
// sent Rounds times and the voter picks the answer.
func (x *Extractor) Extract(ctx context.Context, records []Record) ([]RecordResult, error) {
	results := make([]RecordResult, len(records))
	if len(records) == 0 {
		return results, nil
	}
	rounds := x.rounds()
	total := len(records)
	start := time.Now()

	var (
		mu      sync.Mutex
		done    int
		groups  = make(map[int][]ExtractionAttempt, len(records))
		reqs    = make([]ExtractionRequest, 0, len(records)*rounds)
		missing []int
	)
	progress := func() {
		done++
		if x.opts.Progress != nil {
			x.opts.Progress(done, total)
		}
	}

	for i, rec := range records {
		text := ""
		if rec != nil {
			text = rec.InputText()
		}
		if strings.TrimSpace(text) == "" {
			missing = append(missing, i)
			continue
		}
		for r := 0; r < rounds; r++ {
			req := NewExtractionRequest(text, x.opts.Instructions, x.opts.MaxRetries)
			req.RecordIndex = i
			req.Round = r
			reqs = append(reqs, req)
		}
	}

	for _, i := range missing {
		results[i] = RecordResult{Index: i, Error: ErrMissingInput.Error()}
		progress()
	}

	x.log.Info("extraction started",
		zap.Int("records", total),
		zap.Int("rounds", rounds),
		zap.Int("requests", len(reqs)),
	)

	hook := x.opts.OnAttempt
	_, err := x.sched.RunBatch(ctx, reqs,
		WithProgress(nil),
		WithOnAttempt(func(a ExtractionAttempt) {
			if hook != nil {
				hook(a)
			}
			mu.Lock()
			defer mu.Unlock()
			groups[a.RecordIndex] = append(groups[a.RecordIndex], a)
			if len(groups[a.RecordIndex]) == rounds {
				progress()
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	for i, attempts := range groups {
		sort.Slice(attempts, func(a, b int) bool { return attempts[a].Round < attempts[b].Round })
		results[i] = x.reconcile(i, attempts)
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	x.log.Info("extraction finished",
		zap.Int("records", total),
		zap.Int("succeeded", succeeded),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (x *Extractor) reconcile(index int, attempts []ExtractionAttempt) RecordResult {
	if !x.opts.SelfConsistency.Enabled {
		return recordResult(index, attempts[0])
	}
	sel := x.voter.Select(attempts)
	res := recordResult(index, sel.Attempt)
	res.Consistency = &ConsistencyInfo{
		Rounds:          sel.Examined,
		Strategy:        x.opts.SelfConsistency.Strategy,
		Selected:        sel.Attempt.Round,
		AllRoundResults: attempts,
	}
	return res
}

func recordResult(index int, a ExtractionAttempt) RecordResult {
	return RecordResult{
		Index:   index,
		Success: a.Success,
		Data:    a.Data,
		Error:   a.Error,
		Raw:     a.Raw,
	}
}
