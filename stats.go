package reconcile

import "sync/atomic"

// Stats aggregates request counters across concurrent workers.
type Stats struct {
	total        atomic.Int64
	success      atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	totalTokens  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	RetryRequests      int64 `json:"retry_requests"`
	InputTokens        int64 `json:"input_tokens"`
	OutputTokens       int64 `json:"output_tokens"`
	TotalTokens        int64 `json:"total_tokens"`
}

// SuccessRate is the share of finished requests that succeeded.
func (s StatsSnapshot) SuccessRate() float64 {
	done := s.SuccessfulRequests + s.FailedRequests
	if done == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(done)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalRequests:      s.total.Load(),
		SuccessfulRequests: s.success.Load(),
		FailedRequests:     s.failed.Load(),
		RetryRequests:      s.retried.Load(),
		InputTokens:        s.inputTokens.Load(),
		OutputTokens:       s.outputTokens.Load(),
		TotalTokens:        s.totalTokens.Load(),
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	for _, c := range []*atomic.Int64{&s.total, &s.success, &s.failed, &s.retried, &s.inputTokens, &s.outputTokens, &s.totalTokens} {
		c.Store(0)
	}
}

func (s *Stats) addUsage(u Usage) {
	s.inputTokens.Add(u.InputTokens)
	s.outputTokens.Add(u.OutputTokens)
	s.totalTokens.Add(u.TotalTokens)
}
