package reconcile

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Strategy names a rule for choosing one attempt out of several rounds.
type Strategy string

const (
	StrategyMajorityVote  Strategy = "majority_vote"
	StrategyFirstSuccess  Strategy = "first_success"
	StrategyMostConfident Strategy = "most_confident"
)

// ParseStrategy maps a configured name to a Strategy. Unknown names return
// majority vote together with an error the caller may log.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case StrategyMajorityVote, "":
		return StrategyMajorityVote, nil
	case StrategyFirstSuccess:
		return StrategyFirstSuccess, nil
	case StrategyMostConfident:
		return StrategyMostConfident, nil
	}
	return StrategyMajorityVote, eris.Errorf("unknown strategy %q", name)
}

// Selection is the voter's pick. Index is the position in the examined
// attempts and Examined the number of rounds that took part in the decision.
type Selection struct {
	Attempt  ExtractionAttempt
	Index    int
	Examined int
}

// Voter chooses one attempt from the rounds of a record.
type Voter interface {
	Select(attempts []ExtractionAttempt) Selection
}

// VoterFunc adapts a function to Voter.
type VoterFunc func(attempts []ExtractionAttempt) Selection

func (f VoterFunc) Select(attempts []ExtractionAttempt) Selection { return f(attempts) }

// NewVoter returns the voter for s. Unknown strategies vote by majority.
func NewVoter(s Strategy, log *zap.Logger) Voter {
	switch s {
	case StrategyFirstSuccess:
		return VoterFunc(selectFirstSuccess)
	case StrategyMostConfident:
		return VoterFunc(selectMostConfident)
	case StrategyMajorityVote:
	default:
		if log == nil {
			log = zap.L()
		}
		log.Warn("unknown consistency strategy, using majority vote", zap.String("strategy", string(s)))
	}
	return VoterFunc(selectMajority)
}

// selectFirstSuccess takes the first successful round. Only rounds up to it
// count as examined.
func selectFirstSuccess(attempts []ExtractionAttempt) Selection {
	if len(attempts) == 0 {
		return Selection{Index: -1}
	}
	for i, a := range attempts {
		if a.Success {
			return Selection{Attempt: a, Index: i, Examined: i + 1}
		}
	}
	return Selection{Attempt: attempts[0], Index: 0, Examined: len(attempts)}
}

// selectMostConfident scores each successful payload; ties go to the earliest round.
func selectMostConfident(attempts []ExtractionAttempt) Selection {
	if len(attempts) == 0 {
		return Selection{Index: -1}
	}
	best, bestScore := -1, -1
	for i, a := range attempts {
		if !a.Success {
			continue
		}
		if score := a.Data.ConfidenceScore(); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		best = 0
	}
	return Selection{Attempt: attempts[best], Index: best, Examined: len(attempts)}
}

// selectMajority picks the successful payload most similar to all others.
func selectMajority(attempts []ExtractionAttempt) Selection {
	if len(attempts) == 0 {
		return Selection{Index: -1}
	}
	var ok []int
	for i, a := range attempts {
		if a.Success {
			ok = append(ok, i)
		}
	}
	switch len(ok) {
	case 0:
		return Selection{Attempt: attempts[0], Index: 0, Examined: len(attempts)}
	case 1:
		return Selection{Attempt: attempts[ok[0]], Index: ok[0], Examined: len(attempts)}
	}

	best, bestScore := ok[0], -1.0
	for _, i := range ok {
		score := 0.0
		for _, j := range ok {
			if i != j {
				score += Similarity(attempts[i].Data, attempts[j].Data)
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return Selection{Attempt: attempts[best], Index: best, Examined: len(attempts)}
}

// Similarity scores two payloads in [0, 1].
//
// Equal scalars score 1 and differing non-empty strings score the Jaccard
// index of their whitespace token sets. Objects average over their common
// keys, arrays compare element-wise and divide by the longer length. Two
// empty payloads (null, [] or {}) are identical.
func Similarity(a, b Value) float64 {
	if a.IsEmpty() && b.IsEmpty() {
		return 1
	}
	switch {
	case a.Kind() == KindObject && b.Kind() == KindObject:
		common, sum := 0, 0.0
		for _, k := range a.Keys() {
			bv, ok := b.Get(k)
			if !ok {
				continue
			}
			av, _ := a.Get(k)
			common++
			sum += Similarity(av, bv)
		}
		if common == 0 {
			return 0
		}
		return sum / float64(common)

	case a.Kind() == KindArray && b.Kind() == KindArray:
		n, m := a.Len(), b.Len()
		longer, shorter := max(n, m), min(n, m)
		sum := 0.0
		for i := 0; i < shorter; i++ {
			sum += Similarity(a.Items()[i], b.Items()[i])
		}
		return sum / float64(longer)

	case a.isScalar() && b.isScalar():
		at, bt := a.Text(), b.Text()
		if at == bt {
			return 1
		}
		if a.Kind() == KindString && b.Kind() == KindString && at != "" && bt != "" {
			return jaccard(strings.Fields(at), strings.Fields(bt))
		}
	}
	return 0
}

// jaccard is |A∩B| / |A∪B| over token sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	union := len(set)
	inter := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
