// Package normalize implements SignalNormalizer (spec.md §4.3): it turns an
// untrusted types.RawAgentResponse — oracle free text parsed into a loose
// struct, or a caller-submitted signal — into a canonical types.AgentSignal
// the voting and discussion engines can trust.
package normalize

import (
	"strings"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/pkg/types"
	"github.com/sectormind/engine/pkg/utils"
)

// Input bundles a raw response with the context SignalNormalizer needs to
// fill in defaults: the agent's last known confidence (on the 0-100 scale),
// the sector's allowed trading symbol, and the sector's risk profile (also
// 0-100) that the default allocation band is keyed on.
type Input struct {
	Raw              types.RawAgentResponse
	AgentID          string
	LastConfidence   float64 // 0-100, carried from the agent's prior signal
	ConfidenceDelta  float64 // added to LastConfidence when Raw carries none; 0 defaults to 2
	AllowedSymbol    string
	WinRate          float64
	SectorRiskProfile float64 // 0-100; 0 defaults to 50
}

// allocationBands is the piecewise-linear allocationPercent default, keyed
// by sector risk profile band on the 0-100 scale (spec.md §4.3).
type allocationBand struct {
	riskLow, riskHigh   float64
	allocLow, allocHigh float64
}

var allocationBands = []allocationBand{
	{riskLow: 0, riskHigh: 33, allocLow: 10, allocHigh: 15},
	{riskLow: 33, riskHigh: 66, allocLow: 15, allocHigh: 25},
	{riskLow: 66, riskHigh: 100, allocLow: 20, allocHigh: 30},
}

func defaultAllocation(riskProfilePct float64) float64 {
	riskProfilePct = utils.Clamp(riskProfilePct, 0, 100)
	for _, band := range allocationBands {
		if riskProfilePct < band.riskHigh || band.riskHigh == 100 {
			span := band.riskHigh - band.riskLow
			if span <= 0 {
				return band.allocLow
			}
			frac := (riskProfilePct - band.riskLow) / span
			return band.allocLow + frac*(band.allocHigh-band.allocLow)
		}
	}
	return allocationBands[len(allocationBands)-1].allocHigh
}

func normalizeAction(raw types.RawAgentResponse) (types.Action, error) {
	token := strings.ToUpper(strings.TrimSpace(raw.Action))
	if token == "" {
		token = strings.ToUpper(strings.TrimSpace(raw.Side))
	}
	switch token {
	case "BUY", "LONG":
		return types.ActionBuy, nil
	case "SELL", "SHORT":
		return types.ActionSell, nil
	case "HOLD", "REBALANCE", "":
		return types.ActionHold, nil
	default:
		return "", apperr.NewValidationError("action", "unrecognized action token: "+token)
	}
}

func normalizeSymbol(raw string, allowed string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		symbol = allowed
	}
	if allowed != "" && symbol != allowed {
		return "", apperr.NewValidationError("symbol", "symbol "+symbol+" not allowed for this sector (expected "+allowed+")")
	}
	return symbol, nil
}

// Normalize validates and defaults a raw oracle/caller response into a
// canonical AgentSignal. Confidence is rescaled from the 0-100 percent
// scale callers and oracle responses use onto AgentSignal's [0,1] scale.
func Normalize(in Input) (types.AgentSignal, error) {
	action, err := normalizeAction(in.Raw)
	if err != nil {
		return types.AgentSignal{}, err
	}

	symbol, err := normalizeSymbol(in.Raw.Symbol, in.AllowedSymbol)
	if err != nil {
		return types.AgentSignal{}, err
	}

	delta := in.ConfidenceDelta
	if delta == 0 {
		delta = 2
	}
	confidencePct := utils.Clamp(in.LastConfidence+delta, 0, 100)
	if in.Raw.Confidence != nil {
		confidencePct = utils.Clamp(*in.Raw.Confidence, 0, 100)
	}

	riskProfile := in.SectorRiskProfile
	if riskProfile == 0 {
		riskProfile = 50
	}
	allocation := defaultAllocation(riskProfile)
	if in.Raw.AllocationPercent != nil {
		allocation = utils.Clamp(*in.Raw.AllocationPercent, 0, 100)
	}

	reasoning := strings.TrimSpace(in.Raw.Reasoning)
	if reasoning == "" {
		return types.AgentSignal{}, apperr.NewValidationError("reasoning", "must not be empty")
	}

	return types.AgentSignal{
		AgentID:           in.AgentID,
		Action:            action,
		Confidence:        confidencePct / 100,
		Symbol:            symbol,
		AllocationPercent: allocation,
		Reasoning:         reasoning,
		WinRate:           in.WinRate,
	}, nil
}
