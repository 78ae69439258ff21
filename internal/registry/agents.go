package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/internal/metrics"
	"github.com/sectormind/engine/internal/oracle"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/pkg/types"
	"github.com/sectormind/engine/pkg/utils"
)

// AgentRegistry owns the set of Agent records: their sector assignment,
// confidence, morale, memory log, and personality/preferences.
type AgentRegistry struct {
	store    *storage.Store
	oracle   oracle.ReasoningOracle
	config   types.EngineConfig
	logger   *zap.Logger
	sectors  *SectorRegistry
	metrics  *metrics.Collectors
}

// NewAgentRegistry constructs the registry. sectors is used only to mirror
// sector membership on create/delete — AgentRegistry never mutates the
// agents table and the sectors table in the same lock.
func NewAgentRegistry(store *storage.Store, o oracle.ReasoningOracle, cfg types.EngineConfig, sectors *SectorRegistry, logger *zap.Logger) *AgentRegistry {
	return &AgentRegistry{store: store, oracle: o, config: cfg, logger: logger.Named("agent-registry"), sectors: sectors}
}

// SetMetrics wires a collectors instance after construction so tests and
// standalone callers can skip prometheus registration entirely.
func (r *AgentRegistry) SetMetrics(m *metrics.Collectors) {
	r.metrics = m
}

// AgentPatch lists the fields updateAgent may mutate. id is immutable and
// deliberately absent from this type.
type AgentPatch struct {
	Name        *string
	Role        *types.AgentRole
	SectorID    **string // pointer-to-pointer: non-nil outer sets SectorID, inner may be nil to clear
	Confidence  *float64
	Morale      *float64
	Status      *types.AgentStatus
	Personality *types.Personality
	Preferences *types.Preferences
	AppendMemory *types.MemoryEntry
	Performance *types.AgentPerformance
}

// ListAgents returns every persisted agent.
func (r *AgentRegistry) ListAgents() ([]types.Agent, error) {
	return storage.ReadDocument[types.Agent](r.store, storage.TableAgents)
}

// GetAgent returns a single agent or apperr.NotFound.
func (r *AgentRegistry) GetAgent(id string) (types.Agent, error) {
	agents, err := r.ListAgents()
	if err != nil {
		return types.Agent{}, err
	}
	for _, a := range agents {
		if a.ID == id {
			return a, nil
		}
	}
	return types.Agent{}, apperr.NewNotFound("agent", id)
}

// CreateAgent implements spec.md §4.2's createAgent operation.
func (r *AgentRegistry) CreateAgent(ctx context.Context, description string, sectorID *string, roleOverride *types.AgentRole) (types.Agent, error) {
	role := types.RoleGeneral
	if roleOverride != nil {
		role = *roleOverride
	}

	profile, err := oracle.RequestAgentProfile(ctx, r.oracle, oracle.AgentProfileRequest{
		Description:  description,
		RoleOverride: string(role),
	})

	tpl := types.RoleTemplateFor(role)
	proposedID := ""
	purpose := description
	initialConfidence := tpl.InitialConfidence
	if err == nil {
		proposedID = profile.ID
		if profile.Purpose != "" {
			purpose = profile.Purpose
		}
		if profile.InitialConfidence != 0 {
			initialConfidence = profile.InitialConfidence
		}
	} else {
		r.logger.Debug("oracle profile request fell back to role template", zap.Error(err))
	}

	candidate := sanitizeAgentID(proposedID)
	if proposedID == "" {
		candidate = sanitizeAgentID(description)
	}

	now := time.Now()
	newAgent := types.Agent{
		Name:        purpose,
		Role:        role,
		SectorID:    sectorID,
		Confidence:  utils.Clamp(initialConfidence, -100, 100),
		Morale:      100,
		Status:      types.AgentIdle,
		Personality: tpl.Personality,
		Preferences: tpl.Preferences,
		Memory: []types.MemoryEntry{{
			Kind:      "creation",
			Content:   "agent created: " + purpose,
			Timestamp: now,
		}},
		Performance: types.AgentPerformance{WinRate: 0},
		CreatedAt:   now,
	}

	var result types.Agent
	_, err = storage.AtomicUpdateDocument(r.store, storage.TableAgents, func(current []types.Agent) ([]types.Agent, error) {
		if len(current) >= r.config.MaxTotalAgents {
			if r.metrics != nil {
				r.metrics.CapacityRejections.WithLabelValues("MAX_TOTAL_AGENTS").Inc()
			}
			return nil, apperr.NewCapacityExceeded("MAX_TOTAL_AGENTS", len(current))
		}

		existing := make(map[string]bool, len(current))
		sectorCount := 0
		for _, a := range current {
			existing[a.ID] = true
			if sectorID != nil && a.SectorID != nil && *a.SectorID == *sectorID {
				sectorCount++
			}
		}
		if sectorID != nil && sectorCount >= r.config.MaxAgentsPerSector {
			if r.metrics != nil {
				r.metrics.CapacityRejections.WithLabelValues("MAX_AGENTS_PER_SECTOR").Inc()
			}
			return nil, apperr.NewCapacityExceeded("MAX_AGENTS_PER_SECTOR", sectorCount)
		}

		newAgent.ID = uniqueAgentID(candidate, existing)
		result = newAgent
		return append(current, newAgent), nil
	})
	if err != nil {
		return types.Agent{}, err
	}

	if sectorID != nil && r.sectors != nil {
		if mirrorErr := r.sectors.mirrorAddAgent(*sectorID, result.ID, result.Status == types.AgentActive); mirrorErr != nil {
			r.logger.Warn("sector mirror update failed for new agent, continuing", zap.String("sectorId", *sectorID), zap.Error(mirrorErr))
		}
	}

	return result, nil
}

// UpdateAgent performs a read-modify-write that mutates only the listed
// fields in patch.
func (r *AgentRegistry) UpdateAgent(id string, patch AgentPatch) (types.Agent, error) {
	var result types.Agent
	found := false

	_, err := storage.AtomicUpdateDocument(r.store, storage.TableAgents, func(current []types.Agent) ([]types.Agent, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			found = true
			applyAgentPatch(&current[i], patch)
			result = current[i]
			return current, nil
		}
		return current, nil
	})
	if err != nil {
		return types.Agent{}, err
	}
	if !found {
		return types.Agent{}, apperr.NewNotFound("agent", id)
	}
	return result, nil
}

func applyAgentPatch(a *types.Agent, patch AgentPatch) {
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Role != nil {
		a.Role = *patch.Role
	}
	if patch.SectorID != nil {
		a.SectorID = *patch.SectorID
	}
	if patch.Confidence != nil {
		a.Confidence = utils.Clamp(*patch.Confidence, -100, 100)
	}
	if patch.Morale != nil {
		a.Morale = utils.Clamp(*patch.Morale, 0, 100)
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Personality != nil {
		a.Personality = *patch.Personality
	}
	if patch.Preferences != nil {
		a.Preferences = *patch.Preferences
	}
	if patch.Performance != nil {
		a.Performance = *patch.Performance
	}
	if patch.AppendMemory != nil {
		a.Memory = append(a.Memory, *patch.AppendMemory)
		if len(a.Memory) > types.MaxMemoryEntries {
			a.Memory = a.Memory[len(a.Memory)-types.MaxMemoryEntries:]
		}
	}
}

// DeleteAgent removes the agent and removes its id from the owning
// sector's mirror list.
func (r *AgentRegistry) DeleteAgent(id string) error {
	var removedSectorID *string
	found := false

	_, err := storage.AtomicUpdateDocument(r.store, storage.TableAgents, func(current []types.Agent) ([]types.Agent, error) {
		out := current[:0:0]
		for _, a := range current {
			if a.ID == id {
				found = true
				removedSectorID = a.SectorID
				continue
			}
			out = append(out, a)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.NewNotFound("agent", id)
	}

	if removedSectorID != nil && r.sectors != nil {
		if mirrorErr := r.sectors.mirrorRemoveAgent(*removedSectorID, id); mirrorErr != nil {
			r.logger.Warn("sector mirror update failed for deleted agent, continuing", zap.String("sectorId", *removedSectorID), zap.Error(mirrorErr))
		}
	}
	return nil
}

// SaveAgents replaces the full roster atomically, enforcing the
// id-uniqueness invariant (spec.md §8). Used by components (ticker,
// consensus adjuster) that recompute many agents in one tick.
func (r *AgentRegistry) SaveAgents(updated map[string]types.Agent) error {
	if len(updated) == 0 {
		return nil
	}
	_, err := storage.AtomicUpdateDocument(r.store, storage.TableAgents, func(current []types.Agent) ([]types.Agent, error) {
		seen := make(map[string]bool, len(current))
		out := make([]types.Agent, 0, len(current))
		for _, a := range current {
			if seen[a.ID] {
				continue // de-duplication by id is enforced on every save
			}
			seen[a.ID] = true
			if replacement, ok := updated[a.ID]; ok {
				out = append(out, replacement)
			} else {
				out = append(out, a)
			}
		}
		return out, nil
	})
	return err
}
