package registry

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/oracle"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/pkg/types"
)

func newTestRegistries(t *testing.T, cfg types.EngineConfig) (*SectorRegistry, *AgentRegistry) {
	t.Helper()
	logger := zap.NewNop()
	store, err := storage.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sectors := NewSectorRegistry(store, logger)
	sectors.AutoCreateManager = false
	agents := NewAgentRegistry(store, oracle.DisabledOracle{}, cfg, sectors, logger)
	return sectors, agents
}

func TestCreateSectorDefaultsSymbolFromName(t *testing.T) {
	sectors, _ := newTestRegistries(t, types.DefaultEngineConfig())
	sector, err := sectors.CreateSector(context.Background(), "Energy Futures", "")
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}
	if sector.Symbol != "ENER" {
		t.Fatalf("expected derived symbol ENER, got %s", sector.Symbol)
	}
	if !sector.CurrentPrice.IsZero() {
		t.Fatalf("expected price to start at zero, got %s", sector.CurrentPrice)
	}
}

func TestCreateSectorRejectsEmptyName(t *testing.T) {
	sectors, _ := newTestRegistries(t, types.DefaultEngineConfig())
	if _, err := sectors.CreateSector(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected a validation error for an empty name")
	}
}

func TestCreateAgentMirrorsIntoSector(t *testing.T) {
	sectors, agents := newTestRegistries(t, types.DefaultEngineConfig())
	sector, err := sectors.CreateSector(context.Background(), "Metals", "MTL")
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}

	role := types.RoleTrader
	agent, err := agents.CreateAgent(context.Background(), "a metals trader", &sector.ID, &role)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	updated, err := sectors.GetSector(sector.ID)
	if err != nil {
		t.Fatalf("get sector: %v", err)
	}
	found := false
	for _, id := range updated.AgentIDs {
		if id == agent.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the new agent's id to appear in the sector's AgentIDs")
	}
}

func TestCreateAgentEnforcesPerSectorCapacity(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.MaxAgentsPerSector = 1
	sectors, agents := newTestRegistries(t, cfg)
	sector, err := sectors.CreateSector(context.Background(), "Crowded", "CRD")
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}

	role := types.RoleTrader
	if _, err := agents.CreateAgent(context.Background(), "first", &sector.ID, &role); err != nil {
		t.Fatalf("create first agent: %v", err)
	}
	if _, err := agents.CreateAgent(context.Background(), "second", &sector.ID, &role); err == nil {
		t.Fatal("expected MAX_AGENTS_PER_SECTOR to reject the second agent")
	}
}

func TestDeleteAgentRemovesSectorMirror(t *testing.T) {
	sectors, agents := newTestRegistries(t, types.DefaultEngineConfig())
	sector, err := sectors.CreateSector(context.Background(), "Bonds", "BND")
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}
	role := types.RoleTrader
	agent, err := agents.CreateAgent(context.Background(), "bond trader", &sector.ID, &role)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if err := agents.DeleteAgent(agent.ID); err != nil {
		t.Fatalf("delete agent: %v", err)
	}

	updated, err := sectors.GetSector(sector.ID)
	if err != nil {
		t.Fatalf("get sector: %v", err)
	}
	for _, id := range updated.AgentIDs {
		if id == agent.ID {
			t.Fatal("expected agent id to be removed from the sector mirror")
		}
	}
}
