// Package integration_test exercises the deliberation engine end-to-end:
// store -> registries -> discussion engine -> ticker -> manager ->
// watchdog, wired the way orchestrator.New wires them but against a
// scripted oracle so outcomes are deterministic.
package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/internal/commsbus"
	"github.com/sectormind/engine/internal/discussion"
	"github.com/sectormind/engine/internal/manager"
	"github.com/sectormind/engine/internal/oracle"
	"github.com/sectormind/engine/internal/registry"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/internal/ticker"
	"github.com/sectormind/engine/internal/watchdog"
	"github.com/sectormind/engine/pkg/types"
)

// scriptedOracle returns a fixed JSON completion per agent role, or an
// error for every call when fail is set (the outage scenario).
type scriptedOracle struct {
	mu        sync.Mutex
	responses map[types.AgentRole]string
	fail      bool
}

func (o *scriptedOracle) Complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return "", apperr.NewOracleUnavailable("scripted outage")
	}
	for role, resp := range o.responses {
		if containsRole(userPrompt, role) {
			return resp, nil
		}
	}
	return "", apperr.NewOracleUnavailable("no scripted response for prompt")
}

func containsRole(prompt string, role types.AgentRole) bool {
	return len(prompt) > 0 && stringsContains(prompt, "role: "+string(role))
}

func stringsContains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

type harness struct {
	store      *storage.Store
	sectors    *registry.SectorRegistry
	agents     *registry.AgentRegistry
	discussion *discussion.Engine
	oracle     *scriptedOracle
}

func newHarness(t *testing.T, cfg types.EngineConfig) *harness {
	t.Helper()
	logger := zap.NewNop()

	store, err := storage.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	sectors := registry.NewSectorRegistry(store, logger)
	sectors.AutoCreateManager = false

	scripted := &scriptedOracle{responses: map[types.AgentRole]string{}}
	agents := registry.NewAgentRegistry(store, oracle.DisabledOracle{}, cfg, sectors, logger)
	disc := discussion.NewEngine(store, agents, sectors, scripted, cfg.ConflictThreshold, logger)

	return &harness{store: store, sectors: sectors, agents: agents, discussion: disc, oracle: scripted}
}

func (h *harness) createSector(t *testing.T, name string) types.Sector {
	t.Helper()
	sector, err := h.sectors.CreateSector(context.Background(), name, "")
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}
	return sector
}

func (h *harness) createAgent(t *testing.T, sectorID string, role types.AgentRole) types.Agent {
	t.Helper()
	agent, err := h.agents.CreateAgent(context.Background(), "participant for "+string(role), &sectorID, &role)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

func signalJSON(action types.Action, confidence float64) string {
	return `{"action":"` + string(action) + `","symbol":"","allocationPercent":20,"confidence":` + floatStr(confidence) + `,"reasoning":"scripted"}`
}

func floatStr(f float64) string {
	// small integer-friendly formatter, avoids pulling in strconv just for tests
	whole := int(f)
	if float64(whole) == f {
		return itoa(whole)
	}
	return itoa(whole) + ".5"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestUnanimousBuyProducesDecidedBuy(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	h := newHarness(t, cfg)

	sector := h.createSector(t, "Energy")
	a1 := h.createAgent(t, sector.ID, types.RoleTrader)
	a2 := h.createAgent(t, sector.ID, types.RoleAnalyst)
	a3 := h.createAgent(t, sector.ID, types.RoleAdvisor)

	h.oracle.responses[types.RoleTrader] = signalJSON(types.ActionBuy, 80)
	h.oracle.responses[types.RoleAnalyst] = signalJSON(types.ActionBuy, 75)
	h.oracle.responses[types.RoleAdvisor] = signalJSON(types.ActionBuy, 70)

	room, err := h.discussion.CreateDiscussion(sector.ID, "unanimous buy", []string{a1.ID, a2.ID, a3.ID})
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	if _, err := h.discussion.StartDiscussion(room.ID); err != nil {
		t.Fatalf("start discussion: %v", err)
	}
	if _, err := h.discussion.CollectArguments(context.Background(), room.ID); err != nil {
		t.Fatalf("collect arguments: %v", err)
	}

	decided, err := h.discussion.ProduceDecision(room.ID)
	if err != nil {
		t.Fatalf("produce decision: %v", err)
	}
	if decided.FinalDecision == nil {
		t.Fatal("expected a final decision")
	}
	if decided.FinalDecision.Action != types.ActionBuy {
		t.Fatalf("expected BUY, got %s", decided.FinalDecision.Action)
	}
	if decided.Status != types.StatusDecided {
		t.Fatalf("expected DECIDED, got %s", decided.Status)
	}
}

func TestHighConflictResolvesByWinRate(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.ConflictThreshold = 0.3 // easy to trip for this scenario
	h := newHarness(t, cfg)

	sector := h.createSector(t, "Metals")
	buyer := h.createAgent(t, sector.ID, types.RoleTrader)
	seller := h.createAgent(t, sector.ID, types.RoleArbitrage)

	// Give the BUY-side agent a strong win rate so the conflict resolves
	// toward its cluster.
	winRate := 0.9
	if _, err := h.agents.UpdateAgent(buyer.ID, registry.AgentPatch{
		Performance: &types.AgentPerformance{WinRate: winRate},
	}); err != nil {
		t.Fatalf("seed win rate: %v", err)
	}

	h.oracle.responses[types.RoleTrader] = signalJSON(types.ActionBuy, 60)
	h.oracle.responses[types.RoleArbitrage] = signalJSON(types.ActionSell, 58)

	room, err := h.discussion.CreateDiscussion(sector.ID, "split vote", []string{buyer.ID, seller.ID})
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	if _, err := h.discussion.StartDiscussion(room.ID); err != nil {
		t.Fatalf("start discussion: %v", err)
	}
	if _, err := h.discussion.CollectArguments(context.Background(), room.ID); err != nil {
		t.Fatalf("collect arguments: %v", err)
	}

	decided, err := h.discussion.ProduceDecision(room.ID)
	if err != nil {
		t.Fatalf("produce decision: %v", err)
	}
	if decided.FinalDecision.ConflictScore < cfg.ConflictThreshold {
		t.Fatalf("expected a high conflict score, got %f", decided.FinalDecision.ConflictScore)
	}
	if decided.FinalDecision.Action != types.ActionBuy {
		t.Fatalf("expected conflict resolution to favor the higher win-rate cluster (BUY), got %s", decided.FinalDecision.Action)
	}
}

func TestReadinessTriggersDiscussion(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	h := newHarness(t, cfg)
	logger := zap.NewNop()

	sector := h.createSector(t, "Agriculture")
	trader := h.createAgent(t, sector.ID, types.RoleTrader)

	confidence := cfg.ReadinessThreshold + 5
	active := types.AgentActive
	if _, err := h.agents.UpdateAgent(trader.ID, registry.AgentPatch{
		Confidence: &confidence,
		Status:     &active,
	}); err != nil {
		t.Fatalf("seed confidence: %v", err)
	}
	bus := commsbus.NewBus(logger)
	mgr := manager.New(h.discussion, h.sectors, h.agents, bus, 0, logger)
	tick := ticker.New(h.sectors, h.agents, mgr, ticker.Config{
		ReadinessThreshold: cfg.ReadinessThreshold,
		MaxParallelSectors: 4,
	}, logger)

	if err := tick.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	updated, err := h.sectors.GetSector(sector.ID)
	if err != nil {
		t.Fatalf("get sector: %v", err)
	}
	if updated.Discussion == nil {
		t.Fatal("expected readiness to open a discussion")
	}

	room, err := h.discussion.GetDiscussion(*updated.Discussion)
	if err != nil {
		t.Fatalf("get discussion: %v", err)
	}
	if room.Status != types.StatusInProgress {
		t.Fatalf("expected discussion to be started, got %s", room.Status)
	}
}

func TestOracleOutageFallsBackToDeterministicPolicy(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	h := newHarness(t, cfg)
	h.oracle.fail = true

	sector := h.createSector(t, "Tech")
	agent := h.createAgent(t, sector.ID, types.RoleTrader)

	room, err := h.discussion.CreateDiscussion(sector.ID, "outage", []string{agent.ID})
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	if _, err := h.discussion.StartDiscussion(room.ID); err != nil {
		t.Fatalf("start discussion: %v", err)
	}

	updated, err := h.discussion.CollectArguments(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("collect arguments: %v", err)
	}
	if len(updated.Messages) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(updated.Messages))
	}
	if updated.Messages[0].Content != "fallback policy: oracle unavailable" {
		t.Fatalf("expected fallback reasoning, got %q", updated.Messages[0].Content)
	}
}

func TestWatchdogForceResolvesStalledDiscussion(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	h := newHarness(t, cfg)
	logger := zap.NewNop()

	sector := h.createSector(t, "Utilities")
	agent := h.createAgent(t, sector.ID, types.RoleTrader)

	room, err := h.discussion.CreateDiscussion(sector.ID, "will stall", []string{agent.ID})
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	if _, err := h.discussion.StartDiscussion(room.ID); err != nil {
		t.Fatalf("start discussion: %v", err)
	}

	// Back-date UpdatedAt past the stall threshold directly in storage,
	// simulating a room that made no progress.
	_, err = storage.AtomicUpdateDocument(h.store, storage.TableDiscussions, func(current []types.DiscussionRoom) ([]types.DiscussionRoom, error) {
		for i := range current {
			if current[i].ID == room.ID {
				current[i].UpdatedAt = time.Now().Add(-1 * time.Hour)
			}
		}
		return current, nil
	})
	if err != nil {
		t.Fatalf("backdate room: %v", err)
	}

	wd := watchdog.New(h.discussion, 1*time.Millisecond, logger)
	if err := wd.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	resolved, err := h.discussion.GetDiscussion(room.ID)
	if err != nil {
		t.Fatalf("get discussion: %v", err)
	}
	if resolved.Status != types.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", resolved.Status)
	}
	if resolved.CloseReason != "stalled" {
		t.Fatalf("expected closeReason 'stalled', got %q", resolved.CloseReason)
	}
	if resolved.FinalDecision == nil || resolved.FinalDecision.Action != types.ActionHold {
		t.Fatal("expected a forced HOLD decision")
	}
	if resolved.FinalDecision.ConflictScore != 1.0 {
		t.Fatalf("expected conflictScore 1.0, got %f", resolved.FinalDecision.ConflictScore)
	}
}

func TestCapacityRaceExactlyOneWinner(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.MaxTotalAgents = 1
	h := newHarness(t, cfg)

	sector := h.createSector(t, "Capacity")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := types.RoleTrader
			_, err := h.agents.CreateAgent(context.Background(), "race entrant", &sector.ID, &role)
			results[i] = err
		}(i)
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var capErr *apperr.CapacityExceeded
		if !isCapacityExceeded(err, &capErr) {
			t.Fatalf("expected CapacityExceeded, got %v", err)
		}
		failed++
	}
	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one winner and one rejection, got %d succeeded, %d failed", succeeded, failed)
	}

	agents, err := h.agents.ListAgents()
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected exactly one persisted agent, got %d", len(agents))
	}
}

func isCapacityExceeded(err error, target **apperr.CapacityExceeded) bool {
	if ce, ok := err.(*apperr.CapacityExceeded); ok {
		*target = ce
		return true
	}
	return false
}
