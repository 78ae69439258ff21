package discussion

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sectormind/engine/pkg/types"
)

func TestGenerateAgentSignalBuysOnStrongUpswing(t *testing.T) {
	agent := types.Agent{
		ID:          "a1",
		Personality: types.Personality{RiskTolerance: types.RiskMedium},
		Performance: types.AgentPerformance{WinRate: 0.7},
	}
	sector := types.Sector{Symbol: "NRG", Volatility: 0.1}

	signal := generateAgentSignal(agent, sector, 5.0)
	if signal.Action != types.ActionBuy {
		t.Fatalf("expected BUY on a strong upswing, got %s", signal.Action)
	}
	if signal.Reasoning != "fallback policy: oracle unavailable" {
		t.Fatalf("unexpected reasoning: %q", signal.Reasoning)
	}
	if signal.Confidence < 0.1 || signal.Confidence > 0.95 {
		t.Fatalf("expected confidence within [0.1,0.95], got %f", signal.Confidence)
	}
}

func TestGenerateAgentSignalRespectsRiskTolerance(t *testing.T) {
	lowRisk := types.Agent{Personality: types.Personality{RiskTolerance: types.RiskLow}}
	sector := types.Sector{Symbol: "NRG"}

	// A 1.5% move clears the default/high-risk threshold but not the
	// cautious agent's higher bar.
	signal := generateAgentSignal(lowRisk, sector, 1.5)
	if signal.Action != types.ActionHold {
		t.Fatalf("expected a cautious agent to HOLD on a modest move, got %s", signal.Action)
	}

	highRisk := types.Agent{Personality: types.Personality{RiskTolerance: types.RiskHigh}}
	signal = generateAgentSignal(highRisk, sector, 1.5)
	if signal.Action != types.ActionBuy {
		t.Fatalf("expected a high-risk agent to BUY on the same move, got %s", signal.Action)
	}
}

func TestChangePercentComputesMoveBetweenLastTwoSamples(t *testing.T) {
	sector := types.Sector{
		PriceHistory: []types.PricePoint{
			{Price: decimal.NewFromFloat(100)},
			{Price: decimal.NewFromFloat(110)},
		},
	}
	got := changePercent(sector)
	if got != 10 {
		t.Fatalf("expected 10%% move, got %f", got)
	}
}

func TestChangePercentZeroWithoutHistory(t *testing.T) {
	if got := changePercent(types.Sector{}); got != 0 {
		t.Fatalf("expected 0 with no price history, got %f", got)
	}
}

func TestAdjustConfidenceNonManagerTakesOwnSignal(t *testing.T) {
	agents := []types.Agent{
		{ID: "trader", Role: types.RoleTrader},
	}
	signals := map[string]types.AgentSignal{
		"trader": {Confidence: 0.8},
	}
	result := AdjustConfidence(agents, signals)
	if result["trader"] != 80 {
		t.Fatalf("expected 80, got %f", result["trader"])
	}
}

func TestAdjustConfidenceManagerTakesMeanOfNonManagers(t *testing.T) {
	agents := []types.Agent{
		{ID: "mgr", Role: types.RoleManager},
		{ID: "a1", Role: types.RoleTrader},
		{ID: "a2", Role: types.RoleAnalyst},
	}
	signals := map[string]types.AgentSignal{
		"a1": {Confidence: 0.6},
		"a2": {Confidence: 0.8},
	}
	result := AdjustConfidence(agents, signals)
	if result["mgr"] != 70 {
		t.Fatalf("expected manager confidence to be the mean (70), got %f", result["mgr"])
	}
}

func TestAdjustConfidenceManagerFallsBackToOwnConfidenceWithoutSignals(t *testing.T) {
	agents := []types.Agent{
		{ID: "mgr", Role: types.RoleManager, Confidence: 42},
	}
	result := AdjustConfidence(agents, map[string]types.AgentSignal{})
	if result["mgr"] != 42 {
		t.Fatalf("expected the manager to keep its own confidence (42) absent any non-manager signals, got %f", result["mgr"])
	}
}

func TestCheckTransitionRejectsSkippingStates(t *testing.T) {
	if err := checkTransition(types.StatusCreated, types.StatusDecided); err == nil {
		t.Fatal("expected an illegal state transition error")
	}
	if err := checkTransition(types.StatusCreated, types.StatusInProgress); err != nil {
		t.Fatalf("expected the canonical forward move to succeed, got %v", err)
	}
}
