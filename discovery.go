package reconcile

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// DuplicateThreshold is the similarity above which two discovered fields of
// one record count as the same field.
const DuplicateThreshold = 0.7

const defaultFieldConfidence = 0.7

// DiscoveredField is one attribute an analyzer found in a record.
type DiscoveredField struct {
	Key          string  `json:"key"`
	Value        Value   `json:"value"`
	SourcePhrase string  `json:"source_phrase"`
	Description  string  `json:"description,omitempty"`
	Confidence   float64 `json:"confidence"`
	Role         string  `json:"role"`
	Record       int     `json:"record"`
}

// Discovery runs several analyzer roles over every record and turns what they
// find into attribute proposals.
type Discovery struct {
	sched *Scheduler
	opts  Options
	log   *zap.Logger
}

// DefaultDiscoveryRoles are the analyzer roles used unless WithRoles is given.
var DefaultDiscoveryRoles = []string{RoleDiscovery, RoleAnalyst, RoleValidator}

// NewDiscovery builds a discovery driver over client.
func NewDiscovery(client CompletionClient, optFns ...func(*Options)) (*Discovery, error) {
	opts := buildOptions(defaultOptions(), optFns...)
	if opts.Prompts == nil {
		defaults, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		optFns = append(optFns, WithPrompts(defaults))
		opts.Prompts = defaults
	}
	if len(opts.Roles) == 0 {
		opts.Roles = DefaultDiscoveryRoles
	}
	sched, err := NewScheduler(client, optFns...)
	if err != nil {
		return nil, err
	}
	return &Discovery{sched: sched, opts: opts, log: opts.Logger}, nil
}

// Discover returns the deduplicated fields per record and the proposals they
// add up to, in order of first appearance.
func (d *Discovery) Discover(ctx context.Context, records []Record) ([][]DiscoveredField, []AttributeProposal, error) {
	var reqs []ExtractionRequest
	for i, rec := range records {
		if rec == nil || strings.TrimSpace(rec.InputText()) == "" {
			continue
		}
		for r, role := range d.opts.Roles {
			req := NewExtractionRequest(rec.InputText(), role, d.opts.MaxRetries)
			req.RecordIndex = i
			req.Round = r
			reqs = append(reqs, req)
		}
	}

	results, err := d.sched.RunBatch(ctx, reqs)
	if err != nil {
		return nil, nil, err
	}

	perRecord := make([][]DiscoveredField, len(records))
	for i, a := range results {
		req := reqs[i]
		if !a.Success {
			d.log.Warn("analyzer failed",
				zap.Int("record", req.RecordIndex),
				zap.String("role", req.Instructions),
				zap.String("error", a.Error),
			)
			continue
		}
		perRecord[req.RecordIndex] = append(perRecord[req.RecordIndex],
			parseDiscoveredFields(a.Data, req.Instructions, req.RecordIndex)...)
	}

	var (
		proposals []AttributeProposal
		byName    = make(map[string]int)
	)
	for i, fields := range perRecord {
		perRecord[i] = DedupeFields(fields)
		for _, f := range perRecord[i] {
			id, ok := byName[f.Key]
			if !ok {
				id = len(proposals)
				byName[f.Key] = id
				proposals = append(proposals, AttributeProposal{Name: f.Key})
			}
			p := &proposals[id]
			if p.Description == "" {
				p.Description = f.Description
			}
			p.Sources = unionSources(p.Sources, []string{f.SourcePhrase})
		}
	}

	d.log.Info("discovery finished",
		zap.Int("records", len(records)),
		zap.Int("proposals", len(proposals)),
	)
	return perRecord, proposals, nil
}

// parseDiscoveredFields reads {"fields": [...]} or a bare array of fields.
func parseDiscoveredFields(v Value, role string, record int) []DiscoveredField {
	list := v
	if inner, ok := v.Get("fields"); ok {
		list = inner
	}
	var items []Value
	switch list.Kind() {
	case KindArray:
		items = list.Items()
	case KindObject:
		items = []Value{list}
	}

	var out []DiscoveredField
	for _, it := range items {
		key := strings.TrimSpace(stringMember(it, "key"))
		if key == "" {
			continue
		}
		f := DiscoveredField{
			Key:          key,
			SourcePhrase: stringMember(it, "source_phrase"),
			Description:  stringMember(it, "description"),
			Confidence:   defaultFieldConfidence,
			Role:         role,
			Record:       record,
		}
		if f.Description == "" {
			f.Description = stringMember(it, "context")
		}
		if val, ok := it.Get("value"); ok {
			f.Value = val
		}
		if c, ok := it.Get("confidence"); ok && c.Kind() == KindNumber {
			f.Confidence = c.AsNumber()
		}
		out = append(out, f)
	}
	return out
}

func stringMember(v Value, key string) string {
	m, ok := v.Get(key)
	if !ok {
		return ""
	}
	return m.Text()
}

// DedupeFields drops fields too similar to an earlier one, keeping whichever
// of the pair has the higher confidence.
func DedupeFields(fields []DiscoveredField) []DiscoveredField {
	var unique []DiscoveredField
	for _, f := range fields {
		dup := false
		for i, u := range unique {
			if FieldSimilarity(f, u) > DuplicateThreshold {
				dup = true
				if f.Confidence > u.Confidence {
					unique = append(unique[:i], unique[i+1:]...)
					unique = append(unique, f)
				}
				break
			}
		}
		if !dup {
			unique = append(unique, f)
		}
	}
	return unique
}

// FieldSimilarity weighs name, source phrase and value overlap 0.4/0.3/0.3.
func FieldSimilarity(a, b DiscoveredField) float64 {
	return 0.4*wordSimilarity(a.Key, b.Key) +
		0.3*wordSimilarity(a.SourcePhrase, b.SourcePhrase) +
		0.3*wordSimilarity(a.Value.Text(), b.Value.Text())
}

// wordSimilarity is the case-insensitive Jaccard index of word sets; empty
// text matches nothing.
func wordSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return jaccard(strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b)))
}
