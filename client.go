package reconcile

import "context"

// CompletionClient is the boundary to the remote text-completion service.
// Implementations parse the service's answer into a Value; output that cannot
// be parsed is reported as a *ParseError.
type CompletionClient interface {
	Complete(ctx context.Context, instructions, input string) (*Completion, error)
}

// Completion is one parsed answer from the completion service.
type Completion struct {
	Payload Value
	Raw     string
	Usage   Usage
}

// Usage counts tokens reported by the service.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

func (u Usage) add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
	}
}

// CompletionFunc adapts a function to CompletionClient.
type CompletionFunc func(ctx context.Context, instructions, input string) (*Completion, error)

func (f CompletionFunc) Complete(ctx context.Context, instructions, input string) (*Completion, error) {
	return f(ctx, instructions, input)
}

// completionFromText parses raw service text. The returned Completion is
// non-nil even on error so callers keep the raw text and usage.
func completionFromText(raw string, usage Usage) (*Completion, error) {
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	c := &Completion{Raw: raw, Usage: usage}
	payload, err := ParsePayload(raw)
	if err != nil {
		return c, err
	}
	c.Payload = payload
	return c, nil
}

// isNilClient also catches typed nil pointers of the bundled clients.
func isNilClient(client CompletionClient) bool {
	switch c := client.(type) {
	case nil:
		return true
	case *GenAIClient:
		return c == nil
	case *AnthropicClient:
		return c == nil
	case *ScriptedClient:
		return c == nil
	case CompletionFunc:
		return c == nil
	}
	return false
}
