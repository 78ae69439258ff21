package discussion

import (
	"github.com/shopspring/decimal"

	"github.com/sectormind/engine/pkg/types"
	"github.com/sectormind/engine/pkg/utils"
)

// generateAgentSignal implements spec.md §4.5.1's deterministic fallback
// policy used when the oracle is unavailable: a personality/market-driven
// signal that never blocks a round on an external call.
func generateAgentSignal(agent types.Agent, sector types.Sector, changePercent float64) types.AgentSignal {
	confidence := baseConfidenceFromWinRate(agent.Performance.WinRate)
	action := actionFromChange(agent, changePercent)
	confidence -= sector.Volatility * 0.2
	confidence = utils.Clamp(confidence, 0.1, 0.95)

	allocation := 10 + confidence*20

	return types.AgentSignal{
		AgentID:           agent.ID,
		Action:            action,
		Confidence:        confidence,
		Symbol:            sector.Symbol,
		AllocationPercent: allocation,
		Reasoning:         "fallback policy: oracle unavailable",
		WinRate:           agent.Performance.WinRate,
	}
}

func baseConfidenceFromWinRate(winRate float64) float64 {
	switch {
	case winRate >= 0.6:
		return 0.7
	case winRate >= 0.4:
		return 0.5
	default:
		return 0.35
	}
}

func actionFromChange(agent types.Agent, changePercent float64) types.Action {
	threshold := 1.0
	if agent.Personality.RiskTolerance == types.RiskLow {
		threshold = 2.0 // cautious roles need a stronger move before acting
	} else if agent.Personality.RiskTolerance == types.RiskHigh {
		threshold = 0.5
	}

	switch {
	case changePercent > threshold:
		return types.ActionBuy
	case changePercent < -threshold:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// changePercent computes the percent move between the latest two price
// history samples, or 0 if fewer than two samples exist yet.
func changePercent(sector types.Sector) float64 {
	n := len(sector.PriceHistory)
	if n < 2 {
		return 0
	}
	prev := sector.PriceHistory[n-2].Price
	latest := sector.PriceHistory[n-1].Price
	if prev.IsZero() {
		return 0
	}
	delta := latest.Sub(prev)
	pct := delta.Div(prev).Mul(decimal.NewFromInt(100))
	f, _ := pct.Float64()
	return f
}
