// Package types provides shared type definitions for the sector
// deliberation engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentRole is the fixed set of role tokens the role-template table knows
// about. An oracle may still assign a custom token outside this set; the
// registry falls back to the "general" template defaults in that case.
type AgentRole string

const (
	RoleManager      AgentRole = "manager"
	RoleRiskManager  AgentRole = "riskmanager"
	RoleTrader       AgentRole = "trader"
	RoleAnalyst      AgentRole = "analyst"
	RoleResearch     AgentRole = "research"
	RoleAdvisor      AgentRole = "advisor"
	RoleArbitrage    AgentRole = "arbitrage"
	RoleGeneral      AgentRole = "general"
	RoleMacro        AgentRole = "macro"
	RoleRisk         AgentRole = "risk"
	RoleSentiment    AgentRole = "sentiment"
	RoleTechnical    AgentRole = "technical"
)

// AgentStatus is the liveness/activity state of an agent.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentActive     AgentStatus = "active"
	AgentProcessing AgentStatus = "processing"
)

// RiskTolerance is one of the three personality risk bands.
type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// DecisionStyle is the personality decision-making cadence.
type DecisionStyle string

const (
	StyleRapid      DecisionStyle = "rapid"
	StyleBalanced   DecisionStyle = "balanced"
	StyleCautious   DecisionStyle = "cautious"
	StyleStudious   DecisionStyle = "studious"
	StyleDeliberate DecisionStyle = "deliberate"
	StylePrecise    DecisionStyle = "precise"
	StyleAnalytical DecisionStyle = "analytical"
)

// Action is a trade-intent verb shared by AgentSignal and DiscussionDecision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// DiscussionStatus is the DiscussionRoom state-machine position. Transitions
// are strictly forward; ARCHIVED is terminal.
type DiscussionStatus string

const (
	StatusCreated    DiscussionStatus = "CREATED"
	StatusInProgress DiscussionStatus = "IN_PROGRESS"
	StatusDecided    DiscussionStatus = "DECIDED"
	StatusClosed     DiscussionStatus = "CLOSED"
	StatusArchived   DiscussionStatus = "ARCHIVED"
)

// MemoryEntry is a single append-only entry in an agent's bounded memory log.
type MemoryEntry struct {
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Personality carries the agent's fixed risk/decision-making disposition,
// seeded by the role template; it changes only through an explicit
// AgentRegistry.UpdateAgent patch.
type Personality struct {
	RiskTolerance RiskTolerance `json:"riskTolerance"`
	DecisionStyle DecisionStyle `json:"decisionStyle"`
}

// Preferences are four independent weights in [0,1] guiding signal defaults.
type Preferences struct {
	Risk     float64 `json:"risk"`
	Profit   float64 `json:"profit"`
	Speed    float64 `json:"speed"`
	Accuracy float64 `json:"accuracy"`
}

// AgentPerformance tracks the lifetime outcome record used to weight votes.
type AgentPerformance struct {
	PnL     decimal.Decimal `json:"pnl"`
	WinRate float64         `json:"winRate"`
}

// Agent is a single deliberation participant. See spec §3 for invariants:
// confidence in [-100,100], morale in [0,100], memory bounded to 1000
// entries. Sector membership is mirrored into Sector.AgentIDs by
// CreateAgent and DeleteAgent; a SectorID change made through UpdateAgent
// or SaveAgents is not mirrored.
type Agent struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Role        AgentRole        `json:"role"`
	SectorID    *string          `json:"sectorId"`
	Confidence  float64          `json:"confidence"`
	Morale      float64          `json:"morale"`
	Status      AgentStatus      `json:"status"`
	Personality Personality      `json:"personality"`
	Preferences Preferences      `json:"preferences"`
	Memory      []MemoryEntry    `json:"memory"`
	Performance AgentPerformance `json:"performance"`
	CreatedAt   time.Time        `json:"createdAt"`

	// NeedsRefinement/ActiveRefinementCycles are forward-compatible
	// metadata: no operation in this engine triggers a refinement cycle.
	NeedsRefinement        bool `json:"needsRefinement"`
	ActiveRefinementCycles int  `json:"activeRefinementCycles"`
}

// MaxMemoryEntries bounds Agent.Memory to the last N entries.
const MaxMemoryEntries = 1000

// SectorPerformance tracks aggregate realized/unrealized outcome for a sector.
type SectorPerformance struct {
	TotalPL decimal.Decimal `json:"totalPL"`
}

// PricePoint is a single sample in a Sector's bounded price history ring.
type PricePoint struct {
	SectorID  string          `json:"sectorId"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// MaxPriceHistory bounds Sector.PriceHistory to the last N samples.
const MaxPriceHistory = 1000

// Sector is a grouping of agents around a single traded symbol.
type Sector struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Symbol       string            `json:"symbol"`
	CurrentPrice decimal.Decimal   `json:"currentPrice"`
	Volatility   float64           `json:"volatility"`
	RiskScore    float64           `json:"riskScore"`
	Balance      decimal.Decimal   `json:"balance"`
	Performance  SectorPerformance `json:"performance"`
	Discussion   *string           `json:"discussion"`
	AgentIDs     []string          `json:"agents"`
	ActiveAgents int               `json:"activeAgents"`
	PriceHistory []PricePoint      `json:"priceHistory"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// MinPrice is the floor every Sector.CurrentPrice is clamped to.
var MinPrice = decimal.NewFromFloat(0.01)

// AgentSignal is the canonical, in-memory-only output of SignalNormalizer.
// Confidence here lives on [0,1]; see SPEC_FULL.md §11 for the 100x consensus map
// into Agent.Confidence's [-100,100] scale.
type AgentSignal struct {
	AgentID           string  `json:"agentId"`
	Action            Action  `json:"action"`
	Confidence        float64 `json:"confidence"`
	Symbol            string  `json:"symbol"`
	AllocationPercent float64 `json:"allocationPercent"`
	Reasoning         string  `json:"reasoning"`
	WinRate           float64 `json:"winRate"`
}

// RawAgentResponse is the untrusted, free-form payload returned by a
// ReasoningOracle call before SignalNormalizer has touched it.
type RawAgentResponse struct {
	Action            string   `json:"action"`
	Side              string   `json:"side"`
	Symbol            string   `json:"symbol"`
	AllocationPercent *float64 `json:"allocationPercent"`
	Confidence        *float64 `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
}

// Proposal is the optional structured payload an oracle-generated Message
// carries in place of free-text content.
type Proposal struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Allocation float64 `json:"allocation"`
}

// Message is a single entry in a DiscussionRoom's append-only log.
type Message struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussionId"`
	AgentID      string    `json:"agentId"`
	AgentName    string    `json:"agentName"`
	Role         AgentRole `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Proposal     *Proposal `json:"proposal,omitempty"`
	Analysis     string    `json:"analysis,omitempty"`
}

// VoteBreakdown records, per candidate action, the tally inputs the
// VotingEngine used to reach its decision.
type VoteBreakdown struct {
	Action           Action  `json:"action"`
	VoteCount        int     `json:"voteCount"`
	SummedConfidence float64 `json:"summedConfidence"`
	WeightedConfidence float64 `json:"weightedConfidence"`
}

// DiscussionDecision is the committed output of the VotingEngine, persisted
// verbatim into DiscussionRoom.FinalDecision once and only once.
type DiscussionDecision struct {
	Action         Action          `json:"action"`
	Confidence     float64         `json:"confidence"`
	Rationale      string          `json:"rationale"`
	VoteBreakdown  []VoteBreakdown `json:"voteBreakdown"`
	ConflictScore  float64         `json:"conflictScore"`
	SelectedAgent  string          `json:"selectedAgent"`
	CloseReason    string          `json:"closeReason,omitempty"`
}

// RoundSnapshot records, for RoundHistory, the room's cumulative message
// count at the end of a round.
type RoundSnapshot struct {
	Round         int       `json:"round"`
	MessagesCount int       `json:"messagesCount"`
	Timestamp     time.Time `json:"timestamp"`
}

// DiscussionRoom is a single group deliberation, owned end-to-end by the
// DiscussionEngine's state machine.
type DiscussionRoom struct {
	ID                  string               `json:"id"`
	SectorID            string               `json:"sectorId"`
	Title               string               `json:"title"`
	AgentIDs            []string             `json:"agentIds"`
	Messages            []Message            `json:"messages"`
	MessagesCount        int                  `json:"messagesCount"`
	Status              DiscussionStatus     `json:"status"`
	CurrentRound        int                  `json:"currentRound"`
	RoundHistory        []RoundSnapshot      `json:"roundHistory"`
	FinalDecision       *DiscussionDecision  `json:"finalDecision"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
	DecidedAt           *time.Time           `json:"decidedAt"`
	DiscussionClosedAt  *time.Time           `json:"discussionClosedAt"`
	CloseReason         string               `json:"closeReason,omitempty"`
}

// CrossSectorMessage is a single entry in the CommsBus's append-only log.
// To is either "broadcast" or a manager agent id.
type CrossSectorMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// BroadcastRecipient is the sentinel CrossSectorMessage.To value meaning
// "deliver to every manager", as opposed to a specific manager agent id.
const BroadcastRecipient = "broadcast"

// ExecutionResult is a single line item inside an ExecutionLog.
type ExecutionResult struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
}

// ExecutionLog is modeled per spec.md §6's storage layout for a future
// execution-layer collaborator (out of scope here); no operation in this
// engine writes one yet, but the storage table exists for it.
type ExecutionLog struct {
	ID          string            `json:"id"`
	SectorID    string            `json:"sectorId"`
	Action      Action            `json:"action"`
	Amount      decimal.Decimal   `json:"amount"`
	Timestamp   time.Time         `json:"timestamp"`
	ChecklistID string            `json:"checklistId"`
	Results     []ExecutionResult `json:"results"`
}
