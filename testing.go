package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
)

// ScriptedCall describes one call seen by a ScriptedClient.
type ScriptedCall struct {
	Instructions string
	Input        string
	N            int // 0-based count of earlier calls with the same instructions and input
}

// ScriptedClient is a CompletionClient driven by a function, for tests and
// demos that must run without a completion service.
type ScriptedClient struct {
	respond func(ctx context.Context, call ScriptedCall) (*Completion, error)

	mu    sync.Mutex
	seen  map[[2]string]int
	calls atomic.Int64
}

// NewScriptedClient returns a client answering every call with respond.
func NewScriptedClient(respond func(ctx context.Context, call ScriptedCall) (*Completion, error)) *ScriptedClient {
	return &ScriptedClient{respond: respond, seen: make(map[[2]string]int)}
}

// StaticClient answers every call with the same raw text.
func StaticClient(raw string) *ScriptedClient {
	return NewScriptedClient(func(context.Context, ScriptedCall) (*Completion, error) {
		return TextCompletion(raw)
	})
}

func (c *ScriptedClient) Complete(ctx context.Context, instructions, input string) (*Completion, error) {
	c.calls.Add(1)
	key := [2]string{instructions, input}
	c.mu.Lock()
	n := c.seen[key]
	c.seen[key] = n + 1
	c.mu.Unlock()
	return c.respond(ctx, ScriptedCall{Instructions: instructions, Input: input, N: n})
}

// Calls is the total number of calls made.
func (c *ScriptedClient) Calls() int { return int(c.calls.Load()) }

// CallsFor counts calls with the given instructions and input.
func (c *ScriptedClient) CallsFor(instructions, input string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[[2]string{instructions, input}]
}

// TextCompletion parses raw the way the bundled clients do, with a token
// estimate as usage.
func TextCompletion(raw string) (*Completion, error) {
	return completionFromText(raw, Usage{OutputTokens: int64(EstimateTokensFromText(raw))})
}
