package reconcile

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DebateResult is the consensus outcome together with every proposal the
// analyzer roles made.
type DebateResult struct {
	ConsensusResult
	Merges  []MergeAction  `json:"merges"`
	Renames []RenameAction `json:"renames"`
	Reviews []ReviewAction `json:"reviews"`
}

// Debate asks three analyzer roles about a field set: the consolidator
// proposes merges, the specializer proposes renames, the critic reviews both.
// Vetted actions are then applied by a ConsensusEngine.
type Debate struct {
	sched *Scheduler
	opts  Options
	log   *zap.Logger
}

// NewDebate builds a debate driver over client. Without WithPrompts the
// bundled role instructions are used.
func NewDebate(client CompletionClient, optFns ...func(*Options)) (*Debate, error) {
	opts := buildOptions(defaultOptions(), optFns...)
	if opts.Prompts == nil {
		defaults, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		optFns = append(optFns, WithPrompts(defaults))
		opts.Prompts = defaults
	}
	sched, err := NewScheduler(client, optFns...)
	if err != nil {
		return nil, err
	}
	return &Debate{sched: sched, opts: opts, log: opts.Logger}, nil
}

// Run debates proposals and applies the surviving actions.
func (d *Debate) Run(ctx context.Context, proposals []AttributeProposal) (*DebateResult, error) {
	engine := NewConsensusEngine(proposals, d.log)
	fields := engine.Registry().Fields()
	d.log.Info("debate started", zap.Int("fields", len(fields)))

	items := make([]any, len(fields))
	for i, f := range fields {
		items[i] = f
	}

	mergeOut, err := d.ask(ctx, RoleConsolidator, items)
	if err != nil {
		return nil, err
	}
	merges := decodeActions[MergeAction](mergeOut, d.log, func(m MergeAction) bool {
		return len(m.Fields) > 0 && m.NewName != ""
	})

	renameOut, err := d.ask(ctx, RoleSpecializer, items)
	if err != nil {
		return nil, err
	}
	renames := decodeActions[RenameAction](renameOut, d.log, func(r RenameAction) bool {
		return r.OldName != "" && r.NewName != ""
	})

	var reviews []ReviewAction
	if len(merges)+len(renames) > 0 {
		reviewOut, err := d.ask(ctx, RoleCritic, criticItems(merges, renames))
		if err != nil {
			return nil, err
		}
		reviews = decodeActions[ReviewAction](reviewOut, d.log, func(r ReviewAction) bool {
			return r.Kind == ActionChallenge || r.Kind == ActionApprove
		})
	} else {
		d.log.Info("no proposals to review, skipping critic")
	}

	res := engine.Apply(merges, renames, reviews)
	return &DebateResult{
		ConsensusResult: res,
		Merges:          merges,
		Renames:         renames,
		Reviews:         reviews,
	}, nil
}

// ask sends items to role in chunks and returns the action objects of all
// successful chunks in chunk order.
func (d *Debate) ask(ctx context.Context, role string, items []any) ([]Value, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var reqs []ExtractionRequest
	for start := 0; start < len(items); start += d.opts.ChunkSize {
		end := min(start+d.opts.ChunkSize, len(items))
		payload, err := json.MarshalIndent(items[start:end], "", "  ")
		if err != nil {
			return nil, eris.Wrapf(err, "encode %s chunk", role)
		}
		req := NewExtractionRequest(string(payload), role, d.opts.MaxRetries)
		req.RecordIndex = len(reqs)
		reqs = append(reqs, req)
	}

	results, err := d.sched.RunBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}

	var out []Value
	for i, a := range results {
		if !a.Success {
			d.log.Warn("analyzer chunk failed",
				zap.String("role", role),
				zap.Int("chunk", i),
				zap.String("error", a.Error),
			)
			continue
		}
		out = append(out, flattenActions(a.Data)...)
	}
	d.log.Info("analyzer finished", zap.String("role", role), zap.Int("chunks", len(reqs)), zap.Int("actions", len(out)))
	return out, nil
}

// flattenActions accepts an array of actions, a single action object, or an
// object carrying a "proposals" array.
func flattenActions(v Value) []Value {
	switch v.Kind() {
	case KindArray:
		var out []Value
		for _, e := range v.Items() {
			if e.Kind() == KindObject {
				out = append(out, e)
			}
		}
		return out
	case KindObject:
		if inner, ok := v.Get("proposals"); ok && inner.Kind() == KindArray {
			return flattenActions(inner)
		}
		if v.Len() > 0 {
			return []Value{v}
		}
	}
	return nil
}

func decodeActions[T any](values []Value, log *zap.Logger, valid func(T) bool) []T {
	var out []T
	for _, v := range values {
		b, err := v.MarshalJSON()
		if err != nil {
			continue
		}
		var act T
		if err := json.Unmarshal(b, &act); err != nil {
			log.Debug("dropping malformed action", zap.String("action", v.String()), zap.Error(err))
			continue
		}
		if !valid(act) {
			log.Debug("dropping incomplete action", zap.String("action", v.String()))
			continue
		}
		out = append(out, act)
	}
	return out
}

// criticItems lists merges then renames with their positions so review
// targets are absolute.
func criticItems(merges []MergeAction, renames []RenameAction) []any {
	items := make([]any, 0, len(merges)+len(renames))
	for i, m := range merges {
		items = append(items, map[string]any{
			"index":           i,
			"action":          ActionMerge,
			"fields_to_merge": m.Fields,
			"new_field_name":  m.NewName,
			"reason":          m.Reason,
			"confidence":      m.Confidence,
		})
	}
	for i, r := range renames {
		items = append(items, map[string]any{
			"index":          len(merges) + i,
			"action":         ActionRename,
			"old_field_name": r.OldName,
			"new_field_name": r.NewName,
			"reason":         r.Reason,
			"confidence":     r.Confidence,
		})
	}
	return items
}
