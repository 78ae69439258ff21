// Package discussion implements DiscussionEngine (spec.md §4.5): the
// CREATED -> IN_PROGRESS -> DECIDED -> CLOSED -> ARCHIVED state machine,
// argument collection (oracle-backed with a deterministic fallback), and
// decision commitment via the voting engine.
package discussion

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/internal/concurrency"
	"github.com/sectormind/engine/internal/normalize"
	"github.com/sectormind/engine/internal/oracle"
	"github.com/sectormind/engine/internal/registry"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/internal/voting"
	"github.com/sectormind/engine/pkg/types"
	"github.com/sectormind/engine/pkg/utils"
)

// validTransitions enumerates the only forward moves the state machine
// permits; any other request is apperr.IllegalStateTransition.
var validTransitions = map[types.DiscussionStatus]types.DiscussionStatus{
	types.StatusCreated:    types.StatusInProgress,
	types.StatusInProgress: types.StatusDecided,
	types.StatusDecided:    types.StatusClosed,
	types.StatusClosed:     types.StatusArchived,
}

func checkTransition(from, to types.DiscussionStatus) error {
	if validTransitions[from] != to {
		return apperr.NewIllegalStateTransition(string(from), string(to))
	}
	return nil
}

// Engine owns the DiscussionRoom lifecycle for every sector.
type Engine struct {
	store   *storage.Store
	agents  *registry.AgentRegistry
	sectors *registry.SectorRegistry
	oracle  oracle.ReasoningOracle
	voting  *voting.Engine
	logger  *zap.Logger
	pool    *concurrency.Pool
}

// NewEngine constructs a discussion Engine. Oracle calls for a round's
// participating agents fan out across a bounded worker pool (spec.md §5:
// oracle calls happen outside store locks, concurrently with each other).
func NewEngine(store *storage.Store, agents *registry.AgentRegistry, sectors *registry.SectorRegistry, o oracle.ReasoningOracle, conflictThreshold float64, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		agents:  agents,
		sectors: sectors,
		oracle:  o,
		voting:  voting.NewEngine(conflictThreshold),
		logger:  logger.Named("discussion-engine"),
		pool:    concurrency.NewPool(concurrency.DefaultPoolConfig("discussion-signals"), logger),
	}
}

// Close shuts down the engine's signal-collection worker pool, waiting up
// to 10s for in-flight oracle calls to finish.
func (e *Engine) Close() {
	e.pool.Shutdown(10 * time.Second)
}

// ListDiscussions returns every persisted room.
func (e *Engine) ListDiscussions() ([]types.DiscussionRoom, error) {
	return storage.ReadDocument[types.DiscussionRoom](e.store, storage.TableDiscussions)
}

// GetDiscussion returns a single room or apperr.NotFound.
func (e *Engine) GetDiscussion(id string) (types.DiscussionRoom, error) {
	rooms, err := e.ListDiscussions()
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	for _, r := range rooms {
		if r.ID == id {
			return r, nil
		}
	}
	return types.DiscussionRoom{}, apperr.NewNotFound("discussion", id)
}

// CreateDiscussion opens a new room in CREATED state for sectorID, with
// agentIDs as its invited participants (managers excluded by convention —
// see types.ParticipatesInDiscussion).
func (e *Engine) CreateDiscussion(sectorID, title string, agentIDs []string) (types.DiscussionRoom, error) {
	now := time.Now()
	room := types.DiscussionRoom{
		ID:           uuid.NewString(),
		SectorID:     sectorID,
		Title:        title,
		AgentIDs:     agentIDs,
		Messages:     []types.Message{},
		MessagesCount: 0,
		Status:       types.StatusCreated,
		CurrentRound: 0,
		RoundHistory: []types.RoundSnapshot{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := storage.AtomicUpdateDocument(e.store, storage.TableDiscussions, func(current []types.DiscussionRoom) ([]types.DiscussionRoom, error) {
		return append(current, room), nil
	}); err != nil {
		return types.DiscussionRoom{}, err
	}

	e.writeLegacyDebateShim(room)

	return room, nil
}

// writeLegacyDebateShim appends a trimmed, write-only record to the
// "debates" table for backward-compatible external readers (spec.md §9).
// This engine never reads the table back; a failure here never fails
// CreateDiscussion.
func (e *Engine) writeLegacyDebateShim(room types.DiscussionRoom) {
	type legacyDebate struct {
		ID        string    `json:"id"`
		SectorID  string    `json:"sectorId"`
		Title     string    `json:"title"`
		CreatedAt time.Time `json:"createdAt"`
	}
	_, err := storage.AtomicUpdateDocument(e.store, storage.TableDebates, func(current []legacyDebate) ([]legacyDebate, error) {
		return append(current, legacyDebate{ID: room.ID, SectorID: room.SectorID, Title: room.Title, CreatedAt: room.CreatedAt}), nil
	})
	if err != nil {
		e.logger.Debug("legacy debate shim write failed, continuing", zap.Error(err))
	}
}

func (e *Engine) transition(id string, to types.DiscussionStatus, mutate func(room *types.DiscussionRoom)) (types.DiscussionRoom, error) {
	var result types.DiscussionRoom
	found := false

	_, err := storage.AtomicUpdateDocument(e.store, storage.TableDiscussions, func(current []types.DiscussionRoom) ([]types.DiscussionRoom, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			found = true
			if err := checkTransition(current[i].Status, to); err != nil {
				return nil, err
			}
			current[i].Status = to
			current[i].UpdatedAt = time.Now()
			if mutate != nil {
				mutate(&current[i])
			}
			result = current[i]
			return current, nil
		}
		return current, nil
	})
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	if !found {
		return types.DiscussionRoom{}, apperr.NewNotFound("discussion", id)
	}
	return result, nil
}

// StartDiscussion moves a room from CREATED to IN_PROGRESS.
func (e *Engine) StartDiscussion(id string) (types.DiscussionRoom, error) {
	return e.transition(id, types.StatusInProgress, nil)
}

// oracleSignalPrompt asks the oracle for a single trade proposal.
func oracleSignalPrompt(agent types.Agent, sector types.Sector) (string, string) {
	system := "You are a trading agent participating in a structured sector deliberation. Respond with a single JSON object: {\"action\":\"BUY\"|\"SELL\"|\"HOLD\",\"symbol\":string,\"allocationPercent\":number,\"confidence\":number,\"reasoning\":string}. confidence and allocationPercent are percentages from 0 to 100."
	user := "role: " + string(agent.Role) +
		"\nrisk_tolerance: " + string(agent.Personality.RiskTolerance) +
		"\nsymbol: " + sector.Symbol +
		"\ncurrent_price: " + sector.CurrentPrice.String() +
		"\nvolatility: decimalPercent"
	return system, user
}

// collectSignal produces one AgentSignal for agent, preferring the oracle
// and falling back to the deterministic policy (spec.md §4.5.1) on any
// OracleUnavailable condition.
func (e *Engine) collectSignal(ctx context.Context, agent types.Agent, sector types.Sector) types.AgentSignal {
	if e.oracle != nil {
		system, user := oracleSignalPrompt(agent, sector)
		text, err := e.oracle.Complete(ctx, system, user, true)
		if err == nil {
			var raw types.RawAgentResponse
			if parseErr := oracle.ParseJSONObject(text, &raw); parseErr == nil {
				lastConfidence := utils.Clamp(agent.Confidence, 0, 100)
				signal, normErr := normalize.Normalize(normalize.Input{
					Raw:               raw,
					AgentID:           agent.ID,
					LastConfidence:    lastConfidence,
					AllowedSymbol:     sector.Symbol,
					WinRate:           agent.Performance.WinRate,
					SectorRiskProfile: sector.RiskScore,
				})
				if normErr == nil {
					return signal
				}
				e.logger.Debug("oracle signal failed normalization, using fallback policy", zap.Error(normErr))
			}
		} else {
			e.logger.Debug("oracle call failed, using fallback policy", zap.Error(err))
		}
	}
	return generateAgentSignal(agent, sector, changePercent(sector))
}

// CollectArguments runs one round: every participating agent produces a
// signal, rendered into an appended Message. The room must be IN_PROGRESS.
func (e *Engine) CollectArguments(ctx context.Context, id string) (types.DiscussionRoom, error) {
	room, err := e.GetDiscussion(id)
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	if room.Status != types.StatusInProgress {
		return types.DiscussionRoom{}, apperr.NewIllegalStateTransition(string(room.Status), "collect-arguments")
	}

	sector, err := e.sectors.GetSector(room.SectorID)
	if err != nil {
		return types.DiscussionRoom{}, err
	}

	participants := make([]types.Agent, 0, len(room.AgentIDs))
	for _, agentID := range room.AgentIDs {
		agent, agentErr := e.agents.GetAgent(agentID)
		if agentErr != nil {
			e.logger.Warn("discussion participant missing, skipping", zap.String("agentId", agentID), zap.Error(agentErr))
			continue
		}
		if !types.ParticipatesInDiscussion(agent.Role) {
			continue
		}
		participants = append(participants, agent)
	}

	slots := make([]*types.Message, len(participants))
	var wg sync.WaitGroup
	for i, agent := range participants {
		i, agent := i, agent
		wg.Add(1)
		submitErr := e.pool.Submit(concurrency.TaskFunc(func(taskCtx context.Context) error {
			defer wg.Done()
			signal := e.collectSignal(taskCtx, agent, sector)
			slots[i] = &types.Message{
				ID:           utils.GenerateMessageID(),
				DiscussionID: id,
				AgentID:      agent.ID,
				AgentName:    agent.Name,
				Role:         agent.Role,
				Content:      signal.Reasoning,
				Timestamp:    time.Now(),
				Proposal: &types.Proposal{
					Action:     signal.Action,
					Confidence: signal.Confidence,
					Allocation: signal.AllocationPercent,
				},
				Analysis: signalAnalysis(signal),
			}
			return nil
		}))
		if submitErr != nil {
			wg.Done()
			e.logger.Warn("signal pool submit failed, agent skipped this round", zap.String("agentId", agent.ID), zap.Error(submitErr))
		}
	}
	wg.Wait()

	messages := make([]types.Message, 0, len(participants))
	for _, slot := range slots {
		if slot != nil {
			messages = append(messages, *slot)
		}
	}

	var result types.DiscussionRoom
	found := false
	_, err = storage.AtomicUpdateDocument(e.store, storage.TableDiscussions, func(current []types.DiscussionRoom) ([]types.DiscussionRoom, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			found = true
			current[i].Messages = append(current[i].Messages, messages...)
			current[i].MessagesCount = len(current[i].Messages)
			current[i].CurrentRound++
			current[i].RoundHistory = append(current[i].RoundHistory, types.RoundSnapshot{
				Round:         current[i].CurrentRound,
				MessagesCount: current[i].MessagesCount,
				Timestamp:     time.Now(),
			})
			current[i].UpdatedAt = time.Now()
			result = current[i]
			return current, nil
		}
		return current, nil
	})
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	if !found {
		return types.DiscussionRoom{}, apperr.NewNotFound("discussion", id)
	}
	return result, nil
}

func signalAnalysis(signal types.AgentSignal) string {
	data, _ := json.Marshal(signal)
	return string(data)
}

// lastRoundSignals extracts the AgentSignal-equivalent proposals posted in
// the most recent round from the room's message log.
func lastRoundSignals(room types.DiscussionRoom, agentsByID map[string]types.Agent) []voting.SignalInput {
	if room.CurrentRound == 0 || len(room.RoundHistory) == 0 {
		return nil
	}
	roundStart := 0
	if len(room.RoundHistory) > 1 {
		roundStart = room.RoundHistory[len(room.RoundHistory)-2].MessagesCount
	}
	inputs := make([]voting.SignalInput, 0)
	for _, msg := range room.Messages[roundStart:] {
		if msg.Proposal == nil {
			continue
		}
		agent, ok := agentsByID[msg.AgentID]
		winRate := 0.0
		known := false
		if ok {
			winRate = agent.Performance.WinRate
			known = agent.Performance.WinRate != 0
		}
		inputs = append(inputs, voting.SignalInput{
			Signal: types.AgentSignal{
				AgentID:           msg.AgentID,
				Action:            msg.Proposal.Action,
				Confidence:        msg.Proposal.Confidence,
				AllocationPercent: msg.Proposal.Allocation,
				WinRate:           winRate,
			},
			WinRateKnown: known,
		})
	}
	return inputs
}

// ProduceDecision tallies the last round's proposals and commits the
// result as the room's FinalDecision, moving IN_PROGRESS -> DECIDED.
// FinalDecision is set exactly once; later calls against a DECIDED room
// are rejected by the transition gate rather than overwriting it.
func (e *Engine) ProduceDecision(id string) (types.DiscussionRoom, error) {
	room, err := e.GetDiscussion(id)
	if err != nil {
		return types.DiscussionRoom{}, err
	}

	agentList, err := e.agents.ListAgents()
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	agentsByID := make(map[string]types.Agent, len(agentList))
	for _, a := range agentList {
		agentsByID[a.ID] = a
	}

	inputs := lastRoundSignals(room, agentsByID)
	if len(inputs) == 0 {
		return types.DiscussionRoom{}, apperr.NewValidationError("discussion", "no arguments collected yet")
	}

	decision, err := e.voting.Decide(inputs)
	if err != nil {
		return types.DiscussionRoom{}, err
	}

	result, err := e.transition(id, types.StatusDecided, func(room *types.DiscussionRoom) {
		if room.FinalDecision == nil {
			now := time.Now()
			room.FinalDecision = &decision
			room.DecidedAt = &now
		}
	})
	if err != nil {
		return types.DiscussionRoom{}, err
	}

	if adjustErr := e.adjustConsensusConfidence(room.SectorID, inputs, agentsByID); adjustErr != nil {
		e.logger.Warn("consensus confidence adjustment failed, decision still committed", zap.String("discussionId", id), zap.Error(adjustErr))
	}

	return result, nil
}

// adjustConsensusConfidence implements spec.md §4.5.2's side effect of
// producing a decision: every agent in the sector (including the manager,
// who never argues directly) has its confidence recomputed via
// ConsensusConfidenceAdjuster and persisted.
func (e *Engine) adjustConsensusConfidence(sectorID string, inputs []voting.SignalInput, agentsByID map[string]types.Agent) error {
	signalsByAgent := make(map[string]types.AgentSignal, len(inputs))
	for _, in := range inputs {
		signalsByAgent[in.Signal.AgentID] = in.Signal
	}

	sectorAgents := make([]types.Agent, 0, len(agentsByID))
	for _, a := range agentsByID {
		if a.SectorID != nil && *a.SectorID == sectorID {
			sectorAgents = append(sectorAgents, a)
		}
	}
	if len(sectorAgents) == 0 {
		return nil
	}

	adjusted := AdjustConfidence(sectorAgents, signalsByAgent)
	updated := make(map[string]types.Agent, len(adjusted))
	for _, a := range sectorAgents {
		confidence, ok := adjusted[a.ID]
		if !ok {
			continue
		}
		a.Confidence = confidence
		updated[a.ID] = a
	}
	return e.agents.SaveAgents(updated)
}

// CloseDiscussion moves a room from DECIDED to CLOSED, recording reason.
func (e *Engine) CloseDiscussion(id, reason string) (types.DiscussionRoom, error) {
	return e.transition(id, types.StatusClosed, func(room *types.DiscussionRoom) {
		now := time.Now()
		room.DiscussionClosedAt = &now
		room.CloseReason = reason
	})
}

// ArchiveDiscussion moves a CLOSED room to ARCHIVED once ArchiveDelay has
// elapsed since it closed (spec.md §6's ARCHIVE_DELAY_MS).
func (e *Engine) ArchiveDiscussion(id string, archiveDelay time.Duration) (types.DiscussionRoom, error) {
	room, err := e.GetDiscussion(id)
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	if room.DiscussionClosedAt == nil || time.Since(*room.DiscussionClosedAt) < archiveDelay {
		return types.DiscussionRoom{}, apperr.NewValidationError("discussion", "archive delay has not elapsed")
	}
	return e.transition(id, types.StatusArchived, nil)
}

// ForceResolve is DiscussionWatchdog's stall-recovery path (spec.md §4.8):
// an IN_PROGRESS room that has made no progress for longer than
// STALL_THRESHOLD_MS is pushed straight to a HOLD decision with
// conflictScore 1.0 and closed with closeReason "stalled".
func (e *Engine) ForceResolve(id, closeReason string) (types.DiscussionRoom, error) {
	room, err := e.transition(id, types.StatusDecided, func(room *types.DiscussionRoom) {
		if room.FinalDecision == nil {
			now := time.Now()
			room.FinalDecision = &types.DiscussionDecision{
				Action:        types.ActionHold,
				Confidence:    0,
				Rationale:     "forced resolution: " + closeReason,
				ConflictScore: 1.0,
				CloseReason:   closeReason,
			}
			room.DecidedAt = &now
		}
	})
	if err != nil {
		return types.DiscussionRoom{}, err
	}
	return e.CloseDiscussion(room.ID, closeReason)
}
