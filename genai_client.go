package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenAIClient completes requests with a Gemini model through google.golang.org/genai.
type GenAIClient struct {
	client      *genai.Client
	model       string
	temperature *float32
	maxTokens   int32
	log         *zap.Logger
}

// GenAIOption configures a GenAIClient.
type GenAIOption func(*GenAIClient)

func WithGenAITemperature(t float32) GenAIOption {
	return func(c *GenAIClient) { c.temperature = &t }
}

func WithGenAIMaxTokens(n int32) GenAIOption {
	return func(c *GenAIClient) { c.maxTokens = n }
}

func WithGenAILogger(l *zap.Logger) GenAIOption {
	return func(c *GenAIClient) { c.log = l }
}

// NewGenAIClient wraps an existing genai client.
func NewGenAIClient(client *genai.Client, model string, opts ...GenAIOption) *GenAIClient {
	c := &GenAIClient{client: client, model: model, log: zap.L()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewGenAIClientFromKey connects to the Gemini API with an API key.
func NewGenAIClientFromKey(ctx context.Context, apiKey, model string, opts ...GenAIOption) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return NewGenAIClient(client, model, opts...), nil
}

// Complete sends input with instructions as the system instruction and asks
// for a JSON answer.
func (c *GenAIClient) Complete(ctx context.Context, instructions, input string) (*Completion, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      c.temperature,
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}
	if instructions != "" {
		config.SystemInstruction = genai.NewContentFromParts(
			[]*genai.Part{genai.NewPartFromText(instructions)}, genai.RoleUser)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(input)}, genai.RoleUser),
	}

	c.log.Debug("gemini request", zap.String("model", c.model), zap.Int("input_len", len(input)))
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, classifyGenAIError(err)
	}

	var usage Usage
	if md := resp.UsageMetadata; md != nil {
		usage = Usage{
			InputTokens:  int64(md.PromptTokenCount),
			OutputTokens: int64(md.CandidatesTokenCount),
			TotalTokens:  int64(md.TotalTokenCount),
		}
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return &Completion{Usage: usage}, NewTransientError(eris.Wrap(ErrEmptyResponse, "gemini"), 0)
	}
	return completionFromText(sb.String(), usage)
}

func classifyGenAIError(err error) error {
	wrapped := eris.Wrap(err, "gemini: generate content")
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && IsTransientHTTPStatus(apiErr.Code) {
		return NewTransientError(wrapped, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && IsTransientHTTPStatus(apiErrPtr.Code) {
		return NewTransientError(wrapped, apiErrPtr.Code)
	}
	return wrapped
}
