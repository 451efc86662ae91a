package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okAttempt(t *testing.T, round int, raw string) ExtractionAttempt {
	t.Helper()
	v, err := ParseValue([]byte(raw))
	require.NoError(t, err)
	return ExtractionAttempt{Success: true, Data: v, Round: round}
}

func failAttempt(round int) ExtractionAttempt {
	return ExtractionAttempt{Error: "boom", Round: round}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyMajorityVote, false},
		{"majority_vote", StrategyMajorityVote, false},
		{" First_Success ", StrategyFirstSuccess, false},
		{"most_confident", StrategyMostConfident, false},
		{"coin_flip", StrategyMajorityVote, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMajorityVote_TwoOfThree(t *testing.T) {
	attempts := []ExtractionAttempt{
		okAttempt(t, 0, `{"status":"open"}`),
		okAttempt(t, 1, `{"status":"closed"}`),
		okAttempt(t, 2, `{"status":"closed"}`),
	}

	sel := NewVoter(StrategyMajorityVote, nil).Select(attempts)

	assert.Equal(t, 1, sel.Index)
	assert.Equal(t, 3, sel.Examined)
	v, _ := sel.Attempt.Data.Get("status")
	assert.Equal(t, "closed", v.AsString())
}

func TestMajorityVote_IgnoresFailures(t *testing.T) {
	attempts := []ExtractionAttempt{
		failAttempt(0),
		okAttempt(t, 1, `{"a":"x"}`),
		failAttempt(2),
	}
	sel := selectMajority(attempts)
	assert.Equal(t, 1, sel.Index)
	assert.True(t, sel.Attempt.Success)

	sel = selectMajority([]ExtractionAttempt{failAttempt(0), failAttempt(1)})
	assert.Equal(t, 0, sel.Index)
	assert.False(t, sel.Attempt.Success)
}

func TestMajorityVote_EmptyPayloadsAreEligible(t *testing.T) {
	attempts := []ExtractionAttempt{
		okAttempt(t, 0, `[]`),
		okAttempt(t, 1, `{"a":"x"}`),
		okAttempt(t, 2, `{}`),
	}

	sel := selectMajority(attempts)

	assert.True(t, sel.Attempt.Data.IsEmpty())
	assert.Equal(t, 0, sel.Index)
}

func TestFirstSuccess(t *testing.T) {
	attempts := []ExtractionAttempt{
		failAttempt(0),
		okAttempt(t, 1, `{"a":"1"}`),
		okAttempt(t, 2, `{"a":"2"}`),
	}

	sel := NewVoter(StrategyFirstSuccess, nil).Select(attempts)
	assert.Equal(t, 1, sel.Index)
	assert.Equal(t, 2, sel.Examined)

	sel = selectFirstSuccess([]ExtractionAttempt{failAttempt(0), failAttempt(1)})
	assert.Equal(t, 0, sel.Index)
	assert.Equal(t, 2, sel.Examined)

	sel = selectFirstSuccess(nil)
	assert.Equal(t, -1, sel.Index)
}

func TestMostConfident(t *testing.T) {
	attempts := []ExtractionAttempt{
		okAttempt(t, 0, `{"a":"1"}`),
		okAttempt(t, 1, `{"a":"1","b":"22"}`),
		failAttempt(2),
	}

	sel := NewVoter(StrategyMostConfident, nil).Select(attempts)
	assert.Equal(t, 1, sel.Index)
	assert.Equal(t, 3, sel.Examined)
}

func TestMostConfident_TieGoesToEarliest(t *testing.T) {
	attempts := []ExtractionAttempt{
		okAttempt(t, 0, `{"a":"xy"}`),
		okAttempt(t, 1, `{"b":"zw"}`),
	}
	assert.Equal(t, 0, selectMostConfident(attempts).Index)
}

func TestSimilarity(t *testing.T) {
	parse := func(s string) Value {
		v, err := ParseValue([]byte(s))
		require.NoError(t, err)
		return v
	}
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical objects", `{"a":"x","b":2}`, `{"b":2,"a":"x"}`, 1},
		{"empty payloads", `[]`, `{}`, 1},
		{"null and empty", `null`, `[]`, 1},
		{"disjoint keys", `{"a":1}`, `{"b":1}`, 0},
		{"half matching", `{"a":1,"b":2}`, `{"a":1,"b":3}`, 0.5},
		{"token overlap", `"runway closed"`, `"runway open"`, 1.0 / 3},
		{"arrays", `[1,2]`, `[1,2,3,4]`, 0.5},
		{"mixed kinds", `"1"`, `{"a":1}`, 0},
		{"number vs string text", `1`, `"1"`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(parse(tt.a), parse(tt.b)), 1e-9)
		})
	}
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(nil, nil))
	assert.Equal(t, 0.0, jaccard([]string{"a"}, nil))
	assert.InDelta(t, 1.0/3, jaccard([]string{"a", "b"}, []string{"b", "b", "c"}), 1e-9)
}
