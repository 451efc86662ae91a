package reconcile

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractionRequest is one unit of work: a single input to send with a
// single set of instructions. RecordIndex and Round identify where the
// attempt belongs when results are regrouped.
type ExtractionRequest struct {
	ID           string
	Input        string
	Instructions string // tag resolved by the PromptProvider, or literal text without one
	MaxRetries   int
	RecordIndex  int
	Round        int
}

// NewExtractionRequest builds a request with a fresh ID.
func NewExtractionRequest(input, instructions string, maxRetries int) ExtractionRequest {
	return ExtractionRequest{
		ID:           uuid.NewString(),
		Input:        input,
		Instructions: instructions,
		MaxRetries:   maxRetries,
	}
}

// ExtractionAttempt is the final outcome of one request after retries.
type ExtractionAttempt struct {
	Success     bool
	Data        Value
	Raw         string
	Error       string
	Usage       Usage
	Calls       int
	RecordIndex int
	Round       int
	Duration    time.Duration

	cause error
}

// Cause returns the underlying error of a failed attempt.
func (a ExtractionAttempt) Cause() error { return a.cause }

func failedAttempt(req ExtractionRequest, err error) ExtractionAttempt {
	return ExtractionAttempt{
		Error:       err.Error(),
		RecordIndex: req.RecordIndex,
		Round:       req.Round,
		cause:       err,
	}
}

type attemptJSON struct {
	Round      int    `json:"round"`
	Success    bool   `json:"success"`
	Data       *Value `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Raw        string `json:"raw_response,omitempty"`
	Calls      int    `json:"calls"`
	DurationMS int64  `json:"duration_ms"`
	Usage      Usage  `json:"usage"`
}

func (a ExtractionAttempt) MarshalJSON() ([]byte, error) {
	out := attemptJSON{
		Round:      a.Round,
		Success:    a.Success,
		Error:      a.Error,
		Calls:      a.Calls,
		DurationMS: a.Duration.Milliseconds(),
		Usage:      a.Usage,
	}
	if a.Success {
		data := a.Data
		out.Data = &data
	} else {
		out.Raw = a.Raw
	}
	return json.Marshal(out)
}

// BatchResult is index-aligned with the requests of a batch.
type BatchResult []ExtractionAttempt

// Succeeded counts successful attempts.
func (b BatchResult) Succeeded() int {
	n := 0
	for _, a := range b {
		if a.Success {
			n++
		}
	}
	return n
}
