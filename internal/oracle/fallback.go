package oracle

import (
	"context"

	"github.com/sectormind/engine/internal/apperr"
)

// DisabledOracle always reports OracleUnavailable without attempting any
// call. Used when ORACLE_ENABLED=false (spec.md §6), so every caller goes
// through the same fallback path a real provider's outage would take.
type DisabledOracle struct{}

// Complete implements ReasoningOracle.
func (DisabledOracle) Complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	return "", apperr.NewOracleUnavailable("oracle disabled")
}

// AgentProfileRequest is the compact completion createAgent asks the
// oracle for (spec.md §4.2): "{id, purpose}" plus a profile.
type AgentProfileRequest struct {
	Description  string
	RoleOverride string
}

// AgentProfile is the oracle's proposed identity/profile for a new agent.
type AgentProfile struct {
	ID                string  `json:"id"`
	Purpose           string  `json:"purpose"`
	Style             string  `json:"style"`
	RiskTolerance     string  `json:"riskTolerance"`
	InitialConfidence float64 `json:"initialConfidence"`
}

// RequestAgentProfile asks oracle for a compact identity/profile for a new
// agent. Returns OracleUnavailable (never panics) if the oracle is
// disabled, times out, or replies with unparseable text — createAgent
// falls back to the role-template defaults in that case.
func RequestAgentProfile(ctx context.Context, o ReasoningOracle, req AgentProfileRequest) (AgentProfile, error) {
	systemPrompt := "You assign a compact identity and behavioral profile to a new trading agent. Respond with a single JSON object: {\"id\":string,\"purpose\":string,\"style\":string,\"riskTolerance\":\"low\"|\"medium\"|\"high\",\"initialConfidence\":number}."
	userPrompt := "description: " + req.Description
	if req.RoleOverride != "" {
		userPrompt += "\nrole: " + req.RoleOverride
	}

	text, err := o.Complete(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return AgentProfile{}, err
	}

	var profile AgentProfile
	if err := ParseJSONObject(text, &profile); err != nil {
		return AgentProfile{}, err
	}
	return profile, nil
}
