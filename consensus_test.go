package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func baseProposals() []AttributeProposal {
	return []AttributeProposal{
		{Name: "a", Sources: []string{"s1"}},
		{Name: "b", Sources: []string{"s2"}},
		{Name: "c", Sources: []string{"s3"}},
	}
}

func logFor(res ConsensusResult, kind ActionKind, pos int) (ActionRecord, bool) {
	for _, r := range res.Log {
		if r.Kind == kind && r.Position == pos {
			return r, true
		}
	}
	return ActionRecord{}, false
}

func TestConsensus_AppliesConfidentMerge(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply([]MergeAction{{Fields: []string{"a", "b"}, NewName: "ab", Confidence: 0.9}}, nil, nil)

	assert.Equal(t, 3, res.InitialCount)
	assert.Equal(t, 2, res.FinalCount)
	assert.Equal(t, 1, res.AppliedMerges)
	assert.ElementsMatch(t, []string{"ab", "c"}, e.Registry().Names())

	rec, ok := logFor(res, ActionMerge, 0)
	require.True(t, ok)
	assert.Equal(t, Accepted, rec.Disposition)
}

func TestConsensus_ChallengeVetoesMerge(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply(
		[]MergeAction{{Fields: []string{"a", "b"}, NewName: "ab", Confidence: 0.9}},
		nil,
		[]ReviewAction{{Kind: ActionChallenge, Target: 0, Confidence: 0.8, Reason: "different things"}},
	)

	assert.Equal(t, 0, res.AppliedMerges)
	assert.Equal(t, 3, res.FinalCount)
	rec, _ := logFor(res, ActionMerge, 0)
	assert.Equal(t, Rejected, rec.Disposition)
	review, _ := logFor(res, ActionChallenge, 0)
	assert.Equal(t, Accepted, review.Disposition)
}

func TestConsensus_WeakChallengeIsIgnored(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply(
		[]MergeAction{{Fields: []string{"a", "b"}, NewName: "ab", Confidence: 0.9}},
		nil,
		[]ReviewAction{{Kind: ActionChallenge, Target: 0, Confidence: 0.75}},
	)

	assert.Equal(t, 1, res.AppliedMerges)
	review, _ := logFor(res, ActionChallenge, 0)
	assert.Equal(t, Skipped, review.Disposition)
}

func TestConsensus_LowConfidenceSkipped(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply(
		[]MergeAction{{Fields: []string{"a", "b"}, NewName: "ab", Confidence: 0.7}},
		[]RenameAction{{OldName: "c", NewName: "see", Confidence: 0.5}},
		nil,
	)

	assert.Equal(t, 3, res.FinalCount)
	m, _ := logFor(res, ActionMerge, 0)
	assert.Equal(t, Skipped, m.Disposition)
	r, _ := logFor(res, ActionRename, 1)
	assert.Equal(t, Skipped, r.Disposition)
}

func TestConsensus_RenamePositionsFollowMerges(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply(
		[]MergeAction{{Fields: []string{"a", "b"}, NewName: "ab", Confidence: 0.9}},
		[]RenameAction{
			{OldName: "c", NewName: "charlie", Confidence: 0.9},
			{OldName: "ab", NewName: "alpha_bravo", Confidence: 0.95},
		},
		[]ReviewAction{
			{Kind: ActionChallenge, Target: 1, Confidence: 0.9},
			{Kind: ActionApprove, Target: 2, Confidence: 0.9},
		},
	)

	assert.Equal(t, 1, res.AppliedMerges)
	assert.Equal(t, 1, res.AppliedRenames)
	assert.ElementsMatch(t, []string{"c", "alpha_bravo"}, e.Registry().Names())

	r1, _ := logFor(res, ActionRename, 1)
	assert.Equal(t, Rejected, r1.Disposition)
	r2, _ := logFor(res, ActionRename, 2)
	assert.Equal(t, Accepted, r2.Disposition)
}

func TestConsensus_MissingTargetSkipped(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply(
		[]MergeAction{
			{Fields: []string{"a", "b"}, NewName: "ab", Confidence: 0.9},
			{Fields: []string{"a", "c"}, NewName: "ac", Confidence: 0.9},
		},
		[]RenameAction{{OldName: "ghost", NewName: "spirit", Confidence: 0.9}},
		nil,
	)

	assert.Equal(t, 1, res.AppliedMerges)
	m, _ := logFor(res, ActionMerge, 1)
	assert.Equal(t, Skipped, m.Disposition)
	r, _ := logFor(res, ActionRename, 2)
	assert.Equal(t, Skipped, r.Disposition)
	assert.ElementsMatch(t, []string{"ab", "c"}, e.Registry().Names())
}

func TestConsensus_ReviewOutOfRange(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), zap.NewNop())

	res := e.Apply(nil, nil, []ReviewAction{{Kind: ActionChallenge, Target: 4, Confidence: 0.99}})

	require.Len(t, res.Log, 1)
	assert.Equal(t, Skipped, res.Log[0].Disposition)
	assert.Equal(t, 3, res.FinalCount)
}

func TestConsensus_NoActions(t *testing.T) {
	e := NewConsensusEngine(baseProposals(), nil)
	res := e.Apply(nil, nil, nil)
	assert.Equal(t, 3, res.FinalCount)
	assert.Empty(t, res.Log)
}
