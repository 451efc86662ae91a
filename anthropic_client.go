package reconcile

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AnthropicClient completes requests with a Claude model through the Messages API.
type AnthropicClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature *float64
	log         *zap.Logger
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

func WithAnthropicTemperature(t float64) AnthropicOption {
	return func(c *AnthropicClient) { c.temperature = &t }
}

func WithAnthropicLogger(l *zap.Logger) AnthropicOption {
	return func(c *AnthropicClient) { c.log = l }
}

// NewAnthropicClient creates a client. Request options (base URL, HTTP
// client) are passed through to the SDK; the SDK's own retries are disabled
// since the executor retries.
func NewAnthropicClient(apiKey, model string, maxTokens int64, reqOpts []option.RequestOption, opts ...AnthropicOption) *AnthropicClient {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, reqOpts...)
	c := &AnthropicClient{
		client:    sdk.NewClient(all...),
		model:     model,
		maxTokens: maxTokens,
		log:       zap.L(),
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 4096
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends input as the user message with instructions as the system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, instructions, input string) (*Completion, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(input)),
		},
	}
	if instructions != "" {
		params.System = []sdk.TextBlockParam{{Text: instructions}}
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}

	c.log.Debug("anthropic request", zap.String("model", c.model), zap.Int("input_len", len(input)))
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	usage := Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return &Completion{Usage: usage}, NewTransientError(eris.Wrap(ErrEmptyResponse, "anthropic"), 0)
	}
	return completionFromText(sb.String(), usage)
}

func classifyAnthropicError(err error) error {
	wrapped := eris.Wrap(err, "anthropic: create message")
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && IsTransientHTTPStatus(apiErr.StatusCode) {
		return NewTransientError(wrapped, apiErr.StatusCode)
	}
	return wrapped
}
