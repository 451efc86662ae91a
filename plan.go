package reconcile

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PlanNodeType defines the type of operation a node represents.
type PlanNodeType string

const (
	BatchType  PlanNodeType = "Batch"
	RecordType PlanNodeType = "Record"
	RoundType  PlanNodeType = "Round"
	VoteType   PlanNodeType = "Vote"
)

// PlanNode represents a node in the estimated execution plan of a batch.
// Children and Metadata should not be modified after the plan is built.
type PlanNode struct {
	Type         PlanNodeType   `json:"type"`
	Label        string         `json:"label,omitempty"`
	Model        string         `json:"model,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Calls        int            `json:"calls"`              // expected remote calls, no retries
	MaxCalls     int            `json:"maxCalls"`           // worst case with every retry used
	InputTokens  int            `json:"inputTokens"`        // estimated, expected calls only
	OutputTokens int            `json:"outputTokens"`       // estimated, expected calls only
	EstCost      float64        `json:"estCost"`            // abstract cost units, includes children
	ActCost      *float64       `json:"actCost,omitempty"`  // dollars, when the model has a price
	Children     []*PlanNode    `json:"children,omitempty"` // sub-operations
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ModelPrice represents the pricing for a specific model.
type ModelPrice struct {
	PromptTokCost     float64 // Cost per 1000 input tokens
	CompletionTokCost float64 // Cost per 1000 output tokens
}

// DefaultModelPrices lists list prices of the models the bundled clients target.
func DefaultModelPrices() map[string]ModelPrice {
	return map[string]ModelPrice{
		"gemini-2.5-flash":           {PromptTokCost: 0.0003, CompletionTokCost: 0.0025},
		"gemini-2.5-pro":             {PromptTokCost: 0.00125, CompletionTokCost: 0.01},
		"gemini-2.0-flash":           {PromptTokCost: 0.0001, CompletionTokCost: 0.0004},
		"claude-haiku-4-5-20251001":  {PromptTokCost: 0.001, CompletionTokCost: 0.005},
		"claude-sonnet-4-5-20250929": {PromptTokCost: 0.003, CompletionTokCost: 0.015},
	}
}

// FormatType represents different output formats for the execution plan.
type FormatType string

const (
	FormatText FormatType = "text"
	FormatJSON FormatType = "json"
)

// PlanBuilder estimates what a batch will cost before anything is sent.
// PlanBuilder is not thread-safe.
type PlanBuilder struct {
	records []Record
	opts    Options
	prices  map[string]ModelPrice
}

// NewPlanBuilder creates a plan builder for records under the given options.
func NewPlanBuilder(records []Record, optFns ...func(*Options)) *PlanBuilder {
	opts := buildOptions(defaultOptions(), optFns...)
	if opts.Instructions == "" {
		opts.Instructions = RoleExtract
	}
	return &PlanBuilder{records: records, opts: opts, prices: DefaultModelPrices()}
}

// WithPrices replaces the price table.
func (pb *PlanBuilder) WithPrices(prices map[string]ModelPrice) *PlanBuilder {
	pb.prices = prices
	return pb
}

// Explain builds the plan tree Batch → Record → Round (→ Vote).
func (pb *PlanBuilder) Explain() (*PlanNode, error) {
	if len(pb.records) == 0 {
		return nil, eris.New("plan: no records")
	}
	rounds := 1
	sc := pb.opts.SelfConsistency
	if sc.Enabled && sc.Rounds > 1 {
		rounds = sc.Rounds
	}

	root := &PlanNode{
		Type:     BatchType,
		Label:    pb.opts.Instructions,
		Model:    pb.opts.Model,
		Metadata: map[string]any{"records": len(pb.records), "rounds": rounds, "workers": pb.opts.Concurrency},
	}
	for i, rec := range pb.records {
		text := ""
		if rec != nil {
			text = rec.InputText()
		}
		recNode := &PlanNode{Type: RecordType, Label: "#" + strconv.Itoa(i)}
		if strings.TrimSpace(text) == "" {
			recNode.Metadata = map[string]any{"skipped": ErrMissingInput.Error()}
			root.Children = append(root.Children, recNode)
			continue
		}
		for r := 0; r < rounds; r++ {
			req := ExtractionRequest{Input: text, Instructions: pb.opts.Instructions, RecordIndex: i, Round: r}
			instr, err := resolveInstructions(pb.opts.Prompts, req)
			if err != nil {
				return nil, eris.Wrapf(err, "plan record %d", i)
			}
			recNode.Children = append(recNode.Children, &PlanNode{
				Type:         RoundType,
				Label:        "round " + strconv.Itoa(r),
				Model:        pb.opts.Model,
				Instructions: req.Instructions,
				Calls:        1,
				MaxCalls:     1 + pb.opts.MaxRetries,
				InputTokens:  EstimateTokensFromText(instr) + EstimateTokensFromText(text),
				OutputTokens: estimateOutputTokens(text),
			})
		}
		if rounds > 1 {
			recNode.Children = append(recNode.Children, &PlanNode{
				Type:  VoteType,
				Label: string(sc.Strategy),
			})
		}
		root.Children = append(root.Children, recNode)
	}

	pb.calculateCosts(root)
	return root, nil
}

// calculateCosts sums calls, tokens and costs bottom-up.
func (pb *PlanBuilder) calculateCosts(node *PlanNode) {
	for _, child := range node.Children {
		pb.calculateCosts(child)
		node.Calls += child.Calls
		node.MaxCalls += child.MaxCalls
		node.InputTokens += child.InputTokens
		node.OutputTokens += child.OutputTokens
		node.EstCost += child.EstCost
	}
	if node.Type == RoundType {
		node.EstCost = 1 + float64(node.InputTokens+node.OutputTokens)/1000
	}
	if price, ok := pb.prices[pb.opts.Model]; ok && node.Calls > 0 {
		cost := float64(node.InputTokens)/1000*price.PromptTokCost +
			float64(node.OutputTokens)/1000*price.CompletionTokCost
		node.ActCost = &cost
	}
}

// Format renders a plan.
func (pb *PlanBuilder) Format(plan *PlanNode, format FormatType) (string, error) {
	switch format {
	case FormatText, "":
		return pb.formatAsText(plan), nil
	case FormatJSON:
		return pb.formatAsJSON(plan)
	}
	return "", eris.Errorf("unsupported plan format %q", format)
}

// EstimateTokensFromText provides a rough token estimate from text length.
func EstimateTokensFromText(text string) int {
	// ~4 characters per token for English text
	return (len(text) + 3) / 4
}

// estimateOutputTokens assumes the answer restates about half of the input
// as JSON, with a floor for the envelope.
func estimateOutputTokens(input string) int {
	return 16 + EstimateTokensFromText(input)/2
}

// Explain estimates the plan for records under the extractor's settings.
func (x *Extractor) Explain(records []Record, format FormatType) (string, error) {
	pb := &PlanBuilder{records: records, opts: x.opts, prices: DefaultModelPrices()}
	plan, err := pb.Explain()
	if err != nil {
		return "", err
	}
	return pb.Format(plan, format)
}
