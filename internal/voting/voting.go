// Package voting implements VotingEngine (spec.md §4.4): it converts a
// discussion round's AgentSignals into a single committed
// types.DiscussionDecision, including conflict detection and resolution.
package voting

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/pkg/types"
)

// SignalInput pairs a raw signal with whether its agent has a known
// performance record. Agents with no recorded win rate are weighted
// neutrally rather than penalized.
type SignalInput struct {
	Signal        types.AgentSignal
	WinRateKnown  bool
}

// Engine tallies votes and commits a decision.
type Engine struct {
	ConflictThreshold float64
}

// NewEngine constructs a voting Engine with the given conflict threshold
// (spec.md §6's CONFLICT_THRESHOLD, default 0.5).
func NewEngine(conflictThreshold float64) *Engine {
	return &Engine{ConflictThreshold: conflictThreshold}
}

// weight maps a signal's win rate onto [0.5, 2.0]; unknown win rates are
// weighted 1.0 so a brand-new agent neither dominates nor is discounted.
func weight(in SignalInput) float64 {
	if !in.WinRateKnown {
		return 1.0
	}
	return 0.5 + 1.5*in.Signal.WinRate
}

type actionTally struct {
	action             types.Action
	voteCount          int
	summedConfidence   float64
	weightedConfidence float64
	avgWinRate         float64
	inputs             []SignalInput
}

// Decide implements the full spec.md §4.4 algorithm: tally by majority
// count, confidence-sum tiebreak, then lexical tiebreak; weighted
// aggregated confidence per action; conflict score as the runner-up's
// weighted confidence over the winner's; conflict resolution by highest
// average win rate (ties broken by weighted confidence); and selection of
// the single most persuasive agent.
func (e *Engine) Decide(inputs []SignalInput) (types.DiscussionDecision, error) {
	if len(inputs) == 0 {
		return types.DiscussionDecision{}, apperr.NewValidationError("signals", "at least one signal is required to reach a decision")
	}

	byAction := map[types.Action]*actionTally{}
	order := []types.Action{}
	for _, in := range inputs {
		t, ok := byAction[in.Signal.Action]
		if !ok {
			t = &actionTally{action: in.Signal.Action}
			byAction[in.Signal.Action] = t
			order = append(order, in.Signal.Action)
		}
		t.voteCount++
		t.summedConfidence += in.Signal.Confidence
		t.inputs = append(t.inputs, in)
	}

	breakdown := make([]types.VoteBreakdown, 0, len(order))
	for _, action := range order {
		t := byAction[action]
		confidences := make([]float64, len(t.inputs))
		weights := make([]float64, len(t.inputs))
		winRates := make([]float64, len(t.inputs))
		for i, in := range t.inputs {
			confidences[i] = in.Signal.Confidence
			weights[i] = weight(in)
			winRates[i] = in.Signal.WinRate
		}
		t.weightedConfidence = clamp01(stat.Mean(confidences, weights))
		t.avgWinRate = stat.Mean(winRates, nil)

		breakdown = append(breakdown, types.VoteBreakdown{
			Action:             action,
			VoteCount:          t.voteCount,
			SummedConfidence:   t.summedConfidence,
			WeightedConfidence: t.weightedConfidence,
		})
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := byAction[order[i]], byAction[order[j]]
		if a.voteCount != b.voteCount {
			return a.voteCount > b.voteCount
		}
		if a.summedConfidence != b.summedConfidence {
			return a.summedConfidence > b.summedConfidence
		}
		return a.action < b.action
	})

	winner := byAction[order[0]]
	conflictScore := 0.0
	if len(order) > 1 {
		runnerUp := byAction[order[1]]
		if winner.weightedConfidence > 0 {
			conflictScore = runnerUp.weightedConfidence / winner.weightedConfidence
		}
	}

	rationale := "majority vote"
	if conflictScore >= e.ConflictThreshold && len(order) > 1 {
		winner = resolveConflict(byAction, order)
		rationale = "conflict resolved by cluster win rate"
	}

	selected := selectAgent(winner.inputs)

	return types.DiscussionDecision{
		Action:        winner.action,
		Confidence:    winner.weightedConfidence,
		Rationale:     rationale,
		VoteBreakdown: breakdown,
		ConflictScore: conflictScore,
		SelectedAgent: selected,
	}, nil
}

// resolveConflict picks the action cluster with the highest average win
// rate among its voters, breaking ties by weighted confidence.
func resolveConflict(byAction map[types.Action]*actionTally, order []types.Action) *actionTally {
	best := byAction[order[0]]
	for _, action := range order[1:] {
		candidate := byAction[action]
		if candidate.avgWinRate > best.avgWinRate {
			best = candidate
			continue
		}
		if candidate.avgWinRate == best.avgWinRate && candidate.weightedConfidence > best.weightedConfidence {
			best = candidate
		}
	}
	return best
}

// selectAgent picks the single most persuasive voter within a cluster:
// highest confidence*(1+winRate).
func selectAgent(inputs []SignalInput) string {
	if len(inputs) == 0 {
		return ""
	}
	best := inputs[0]
	bestScore := best.Signal.Confidence * (1 + best.Signal.WinRate)
	for _, in := range inputs[1:] {
		score := in.Signal.Confidence * (1 + in.Signal.WinRate)
		if score > bestScore {
			best = in
			bestScore = score
		}
	}
	return best.Signal.AgentID
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
