package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// ChallengeThreshold is the confidence above which a challenge vetoes its target.
	ChallengeThreshold = 0.75
	// AcceptThreshold is the confidence an action needs to be applied.
	AcceptThreshold = 0.7
)

// ActionKind names a consensus action.
type ActionKind string

const (
	ActionMerge     ActionKind = "merge"
	ActionRename    ActionKind = "rename"
	ActionChallenge ActionKind = "challenge"
	ActionApprove   ActionKind = "approve"
)

// Disposition is what happened to an action.
type Disposition string

const (
	Accepted Disposition = "accepted"
	Rejected Disposition = "rejected"
	Skipped  Disposition = "skipped"
)

// MergeAction proposes collapsing several fields into one.
type MergeAction struct {
	Fields     []string `json:"fields_to_merge"`
	NewName    string   `json:"new_field_name"`
	Reason     string   `json:"reason,omitempty"`
	Confidence float64  `json:"confidence"`
}

// RenameAction proposes a better name for one field.
type RenameAction struct {
	OldName    string  `json:"old_field_name"`
	NewName    string  `json:"new_field_name"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ReviewAction challenges or approves the merge/rename at position Target of
// the combined merge+rename list.
type ReviewAction struct {
	Kind       ActionKind `json:"action"`
	Target     int        `json:"target_proposal"`
	Reason     string     `json:"reason,omitempty"`
	Confidence float64    `json:"confidence"`
}

// ActionRecord is one line of the consensus log.
type ActionRecord struct {
	Position    int         `json:"position"`
	Kind        ActionKind  `json:"action"`
	Disposition Disposition `json:"disposition"`
	Summary     string      `json:"summary"`
	Note        string      `json:"note,omitempty"`
	Confidence  float64     `json:"confidence"`
}

// ConsensusResult is the final field set plus an account of every action.
type ConsensusResult struct {
	Fields         []AttributeProposal `json:"final_fields"`
	Log            []ActionRecord      `json:"log"`
	InitialCount   int                 `json:"initial_count"`
	FinalCount     int                 `json:"final_count"`
	AppliedMerges  int                 `json:"applied_merges"`
	AppliedRenames int                 `json:"applied_renames"`
}

// ConsensusEngine applies vetted merge and rename actions to a registry.
type ConsensusEngine struct {
	registry *FieldRegistry
	log      *zap.Logger
}

// NewConsensusEngine loads proposals into a fresh registry.
func NewConsensusEngine(proposals []AttributeProposal, log *zap.Logger) *ConsensusEngine {
	if log == nil {
		log = zap.L()
	}
	return &ConsensusEngine{registry: NewFieldRegistry(proposals), log: log}
}

// Registry exposes the underlying registry.
func (e *ConsensusEngine) Registry() *FieldRegistry { return e.registry }

// Apply runs merges, then renames, skipping anything challenged with
// confidence above ChallengeThreshold or carrying confidence at or below
// AcceptThreshold. Positions count across merges followed by renames.
// Actions referring to absent fields are logged and skipped.
func (e *ConsensusEngine) Apply(merges []MergeAction, renames []RenameAction, reviews []ReviewAction) ConsensusResult {
	res := ConsensusResult{InitialCount: e.registry.Len()}
	total := len(merges) + len(renames)

	challenged := make(map[int]bool)
	for i, rv := range reviews {
		rec := ActionRecord{
			Position:   rv.Target,
			Kind:       rv.Kind,
			Summary:    fmt.Sprintf("review %d of proposal %d", i, rv.Target),
			Note:       rv.Reason,
			Confidence: rv.Confidence,
		}
		switch {
		case rv.Target < 0 || rv.Target >= total:
			rec.Disposition = Skipped
			rec.Note = "target out of range"
		case rv.Kind == ActionChallenge && rv.Confidence > ChallengeThreshold:
			challenged[rv.Target] = true
			rec.Disposition = Accepted
		case rv.Kind == ActionChallenge:
			rec.Disposition = Skipped
			rec.Note = "challenge confidence too low"
		case rv.Kind == ActionApprove:
			rec.Disposition = Accepted
		default:
			rec.Disposition = Skipped
			rec.Note = fmt.Sprintf("unknown review action %q", rv.Kind)
		}
		res.Log = append(res.Log, rec)
	}

	for i, m := range merges {
		rec := ActionRecord{
			Position:   i,
			Kind:       ActionMerge,
			Summary:    fmt.Sprintf("%s -> %s", strings.Join(m.Fields, ", "), m.NewName),
			Confidence: m.Confidence,
		}
		if e.vet(&rec, i, m.Confidence, challenged) {
			if err := e.registry.ApplyMerge(m.Fields, m.NewName); err != nil {
				e.reject(&rec, err)
			} else {
				rec.Disposition = Accepted
				rec.Note = m.Reason
				res.AppliedMerges++
			}
		}
		e.record(rec)
		res.Log = append(res.Log, rec)
	}

	for i, rn := range renames {
		pos := len(merges) + i
		rec := ActionRecord{
			Position:   pos,
			Kind:       ActionRename,
			Summary:    fmt.Sprintf("%s -> %s", rn.OldName, rn.NewName),
			Confidence: rn.Confidence,
		}
		if e.vet(&rec, pos, rn.Confidence, challenged) {
			if err := e.registry.ApplyRename(rn.OldName, rn.NewName); err != nil {
				e.reject(&rec, err)
			} else {
				rec.Disposition = Accepted
				rec.Note = rn.Reason
				res.AppliedRenames++
			}
		}
		e.record(rec)
		res.Log = append(res.Log, rec)
	}

	res.Fields = e.registry.Fields()
	res.FinalCount = len(res.Fields)
	e.log.Info("consensus applied",
		zap.Int("initial", res.InitialCount),
		zap.Int("final", res.FinalCount),
		zap.Int("merges", res.AppliedMerges),
		zap.Int("renames", res.AppliedRenames),
	)
	return res
}

// vet decides whether an action may be applied; when not, rec is filled in.
func (e *ConsensusEngine) vet(rec *ActionRecord, pos int, confidence float64, challenged map[int]bool) bool {
	switch {
	case challenged[pos]:
		rec.Disposition = Rejected
		rec.Note = "challenged"
		return false
	case confidence <= AcceptThreshold:
		rec.Disposition = Skipped
		rec.Note = fmt.Sprintf("confidence %.2f too low", confidence)
		return false
	}
	return true
}

func (e *ConsensusEngine) reject(rec *ActionRecord, err error) {
	rec.Disposition = Skipped
	if !errors.Is(err, ErrMissingField) {
		rec.Disposition = Rejected
	}
	rec.Note = err.Error()
}

func (e *ConsensusEngine) record(rec ActionRecord) {
	e.log.Debug("consensus action",
		zap.Int("position", rec.Position),
		zap.String("action", string(rec.Kind)),
		zap.String("disposition", string(rec.Disposition)),
		zap.String("summary", rec.Summary),
		zap.String("note", rec.Note),
	)
}
