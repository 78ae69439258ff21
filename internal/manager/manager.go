// Package manager implements ManagerController (spec.md §4.7): the
// per-sector policy deciding when a discussion opens, debounced so a
// sector that stays ready for many consecutive ticks doesn't spawn a new
// room every tick, plus the CommsBus wiring managers use to announce new
// discussions to each other.
package manager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/commsbus"
	"github.com/sectormind/engine/internal/discussion"
	"github.com/sectormind/engine/internal/metrics"
	"github.com/sectormind/engine/internal/registry"
	"github.com/sectormind/engine/pkg/types"
)

// Controller implements ticker.ReadinessNotifier.
type Controller struct {
	discussion *discussion.Engine
	sectors    *registry.SectorRegistry
	agents     *registry.AgentRegistry
	bus        *commsbus.Bus
	debounce   time.Duration
	logger     *zap.Logger
	metrics    *metrics.Collectors

	mu          sync.Mutex
	lastCreated map[string]time.Time
}

// SetMetrics wires a collectors instance after construction.
func (c *Controller) SetMetrics(m *metrics.Collectors) {
	c.metrics = m
}

// New constructs a Controller.
func New(disc *discussion.Engine, sectors *registry.SectorRegistry, agents *registry.AgentRegistry, bus *commsbus.Bus, debounce time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		discussion:  disc,
		sectors:     sectors,
		agents:      agents,
		bus:         bus,
		debounce:    debounce,
		logger:      logger.Named("manager-controller"),
		lastCreated: make(map[string]time.Time),
	}
}

// Evaluate implements ticker.ReadinessNotifier. A discussion opens when
// the sector is ready or already holds a positive balance, provided the
// debounce window has elapsed since this sector's last creation and it
// does not already have an open discussion.
func (c *Controller) Evaluate(ctx context.Context, sector types.Sector, ready bool) error {
	if sector.Discussion != nil {
		return nil
	}
	if !ready && !sector.Balance.IsPositive() {
		return nil
	}

	c.mu.Lock()
	last, seen := c.lastCreated[sector.ID]
	if seen && time.Since(last) < c.debounce {
		c.mu.Unlock()
		return nil
	}
	c.lastCreated[sector.ID] = time.Now()
	c.mu.Unlock()

	return c.openDiscussion(ctx, sector)
}

func (c *Controller) openDiscussion(ctx context.Context, sector types.Sector) error {
	agentIDs, managerID, err := c.participants(sector)
	if err != nil {
		return err
	}

	room, err := c.discussion.CreateDiscussion(sector.ID, sector.Name+" deliberation", agentIDs)
	if err != nil {
		return err
	}
	if _, err := c.discussion.StartDiscussion(room.ID); err != nil {
		return err
	}

	roomID := room.ID
	if _, err := c.sectors.UpdateSector(sector.ID, registry.SectorPatch{Discussion: &roomID}); err != nil {
		c.logger.Warn("failed to link discussion to sector", zap.String("sectorId", sector.ID), zap.Error(err))
	}

	c.bus.Publish(managerID, types.BroadcastRecipient, "discussion_opened", map[string]string{
		"sectorId":     sector.ID,
		"discussionId": room.ID,
	})
	if c.metrics != nil {
		c.metrics.DiscussionsOpened.Inc()
	}
	return nil
}

func (c *Controller) participants(sector types.Sector) ([]string, string, error) {
	all, err := c.agents.ListAgents()
	if err != nil {
		return nil, "", err
	}
	var ids []string
	managerID := ""
	for _, a := range all {
		if a.SectorID == nil || *a.SectorID != sector.ID {
			continue
		}
		if types.IsManagerRole(a.Role) {
			managerID = a.ID
			continue
		}
		ids = append(ids, a.ID)
	}
	return ids, managerID, nil
}

// Bus exposes the underlying CommsBus so the orchestrator can subscribe
// other managers to cross-sector announcements.
func (c *Controller) Bus() *commsbus.Bus {
	return c.bus
}
