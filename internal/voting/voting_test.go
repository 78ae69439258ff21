package voting

import (
	"testing"

	"github.com/sectormind/engine/pkg/types"
)

func sig(agentID string, action types.Action, confidence, winRate float64) SignalInput {
	known := winRate != 0
	return SignalInput{
		Signal: types.AgentSignal{
			AgentID:    agentID,
			Action:     action,
			Confidence: confidence,
			WinRate:    winRate,
		},
		WinRateKnown: known,
	}
}

func TestDecideMajorityVote(t *testing.T) {
	e := NewEngine(0.5)
	decision, err := e.Decide([]SignalInput{
		sig("a1", types.ActionBuy, 0.8, 0),
		sig("a2", types.ActionBuy, 0.7, 0),
		sig("a3", types.ActionSell, 0.6, 0),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Action != types.ActionBuy {
		t.Fatalf("expected BUY majority, got %s", decision.Action)
	}
	if decision.Rationale != "majority vote" {
		t.Fatalf("expected majority vote rationale, got %q", decision.Rationale)
	}
}

func TestDecideConflictResolvesByWinRate(t *testing.T) {
	e := NewEngine(0.3)
	decision, err := e.Decide([]SignalInput{
		sig("a1", types.ActionBuy, 0.6, 0.9),
		sig("a2", types.ActionSell, 0.58, 0),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.ConflictScore < 0.3 {
		t.Fatalf("expected a high conflict score, got %f", decision.ConflictScore)
	}
	if decision.Action != types.ActionBuy {
		t.Fatalf("expected the higher win-rate cluster to win, got %s", decision.Action)
	}
	if decision.Rationale != "conflict resolved by cluster win rate" {
		t.Fatalf("expected conflict-resolution rationale, got %q", decision.Rationale)
	}
}

func TestDecideLexicalTiebreak(t *testing.T) {
	e := NewEngine(0.5)
	decision, err := e.Decide([]SignalInput{
		sig("a1", types.ActionSell, 0.5, 0),
		sig("a2", types.ActionBuy, 0.5, 0),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	// equal vote count, equal confidence: BUY sorts lexically before SELL
	if decision.Action != types.ActionBuy {
		t.Fatalf("expected lexical tiebreak to favor BUY, got %s", decision.Action)
	}
}

func TestDecideSelectsMostPersuasiveAgent(t *testing.T) {
	e := NewEngine(0.5)
	decision, err := e.Decide([]SignalInput{
		sig("low-conviction", types.ActionBuy, 0.4, 0.2),
		sig("high-conviction", types.ActionBuy, 0.9, 0.5),
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.SelectedAgent != "high-conviction" {
		t.Fatalf("expected the higher confidence*(1+winRate) agent to be selected, got %s", decision.SelectedAgent)
	}
}

func TestDecideRejectsEmptyInput(t *testing.T) {
	e := NewEngine(0.5)
	if _, err := e.Decide(nil); err == nil {
		t.Fatal("expected an error for zero signals")
	}
}
