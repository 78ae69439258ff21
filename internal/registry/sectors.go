package registry

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/pkg/types"
)

// ManagerFactory creates the auto-assigned manager agent for a freshly
// created sector. Wired by the orchestrator to AgentRegistry.CreateAgent
// with role=manager, kept as an injected closure (rather than a direct
// AgentRegistry reference) so SectorRegistry and AgentRegistry do not
// import each other.
type ManagerFactory func(ctx context.Context, sectorID string) error

// SectorRegistry owns Sector records: symbol, price series, volatility,
// risk score, balance, and the back-references to member agents.
type SectorRegistry struct {
	store  *storage.Store
	logger *zap.Logger

	// AutoCreateManager controls whether createSector auto-creates a
	// manager agent for the new sector (spec.md §4.2: "if configured").
	AutoCreateManager bool
	managerFactory    ManagerFactory
}

// NewSectorRegistry constructs the registry with AutoCreateManager enabled
// by default.
func NewSectorRegistry(store *storage.Store, logger *zap.Logger) *SectorRegistry {
	return &SectorRegistry{store: store, logger: logger.Named("sector-registry"), AutoCreateManager: true}
}

// SetManagerFactory wires the callback used to auto-create a sector's
// manager agent.
func (r *SectorRegistry) SetManagerFactory(f ManagerFactory) {
	r.managerFactory = f
}

// ListSectors returns every persisted sector.
func (r *SectorRegistry) ListSectors() ([]types.Sector, error) {
	return storage.ReadDocument[types.Sector](r.store, storage.TableSectors)
}

// GetSector returns a single sector or apperr.NotFound.
func (r *SectorRegistry) GetSector(id string) (types.Sector, error) {
	sectors, err := r.ListSectors()
	if err != nil {
		return types.Sector{}, err
	}
	for _, s := range sectors {
		if s.ID == id {
			return s, nil
		}
	}
	return types.Sector{}, apperr.NewNotFound("sector", id)
}

func defaultSymbol(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	runes := []rune(upper)
	n := 4
	if len(runes) < n {
		n = len(runes)
	}
	return string(runes[:n])
}

// CreateSector implements spec.md §4.2's createSector operation. Price
// starts at zero — the price simulator (SectorTicker) seeds it to 100 on
// the sector's first tick, per spec.md §3's lifecycle note.
func (r *SectorRegistry) CreateSector(ctx context.Context, name, symbol string) (types.Sector, error) {
	if strings.TrimSpace(name) == "" {
		return types.Sector{}, apperr.NewValidationError("name", "must not be empty")
	}
	if symbol == "" {
		symbol = defaultSymbol(name)
	}

	sector := types.Sector{
		ID:           uuid.NewString(),
		Name:         name,
		Symbol:       strings.ToUpper(symbol),
		CurrentPrice: decimal.Zero,
		Volatility:   0,
		RiskScore:    0,
		Balance:      decimal.Zero,
		Performance:  types.SectorPerformance{TotalPL: decimal.Zero},
		Discussion:   nil,
		AgentIDs:     []string{},
		ActiveAgents: 0,
		PriceHistory: []types.PricePoint{},
		CreatedAt:    time.Now(),
	}

	_, err := storage.AtomicUpdateDocument(r.store, storage.TableSectors, func(current []types.Sector) ([]types.Sector, error) {
		return append(current, sector), nil
	})
	if err != nil {
		return types.Sector{}, err
	}

	if r.AutoCreateManager && r.managerFactory != nil {
		if mErr := r.managerFactory(ctx, sector.ID); mErr != nil {
			r.logger.Warn("auto manager creation failed, continuing", zap.String("sectorId", sector.ID), zap.Error(mErr))
		}
	}

	return sector, nil
}

// SectorPatch lists the fields updateSector may mutate. id is immutable.
type SectorPatch struct {
	Name         *string
	Symbol       *string
	CurrentPrice *decimal.Decimal
	Volatility   *float64
	RiskScore    *float64
	Balance      *decimal.Decimal
	Performance  *types.SectorPerformance
	Discussion   **string
}

// UpdateSector performs a read-modify-write that mutates only the listed
// fields in patch.
func (r *SectorRegistry) UpdateSector(id string, patch SectorPatch) (types.Sector, error) {
	var result types.Sector
	found := false

	_, err := storage.AtomicUpdateDocument(r.store, storage.TableSectors, func(current []types.Sector) ([]types.Sector, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			found = true
			applySectorPatch(&current[i], patch)
			result = current[i]
			return current, nil
		}
		return current, nil
	})
	if err != nil {
		return types.Sector{}, err
	}
	if !found {
		return types.Sector{}, apperr.NewNotFound("sector", id)
	}
	return result, nil
}

func applySectorPatch(s *types.Sector, patch SectorPatch) {
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Symbol != nil {
		s.Symbol = *patch.Symbol
	}
	if patch.CurrentPrice != nil {
		price := *patch.CurrentPrice
		if price.LessThan(types.MinPrice) {
			price = types.MinPrice
		}
		s.CurrentPrice = price
	}
	if patch.Volatility != nil {
		v := *patch.Volatility
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		s.Volatility = v
	}
	if patch.RiskScore != nil {
		rs := *patch.RiskScore
		if rs < 0 {
			rs = 0
		} else if rs > 100 {
			rs = 100
		}
		s.RiskScore = rs
	}
	if patch.Balance != nil {
		s.Balance = *patch.Balance
	}
	if patch.Performance != nil {
		s.Performance = *patch.Performance
	}
	if patch.Discussion != nil {
		s.Discussion = *patch.Discussion
	}
}

// mirrorAddAgent adds agentID to sector id's member list, incrementing
// ActiveAgents when the new agent is active. Returns apperr.NotFound if
// the sector does not exist; callers treat that as non-fatal per spec.md
// §4.2.
func (r *SectorRegistry) mirrorAddAgent(id, agentID string, active bool) error {
	found := false
	_, err := storage.AtomicUpdateDocument(r.store, storage.TableSectors, func(current []types.Sector) ([]types.Sector, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			found = true
			if !containsString(current[i].AgentIDs, agentID) {
				current[i].AgentIDs = append(current[i].AgentIDs, agentID)
				if active {
					current[i].ActiveAgents++
				}
			}
			return current, nil
		}
		return current, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.NewNotFound("sector", id)
	}
	return nil
}

// mirrorRemoveAgent removes agentID from sector id's member list.
func (r *SectorRegistry) mirrorRemoveAgent(id, agentID string) error {
	found := false
	_, err := storage.AtomicUpdateDocument(r.store, storage.TableSectors, func(current []types.Sector) ([]types.Sector, error) {
		for i := range current {
			if current[i].ID != id {
				continue
			}
			found = true
			out := current[i].AgentIDs[:0:0]
			for _, a := range current[i].AgentIDs {
				if a != agentID {
					out = append(out, a)
				}
			}
			current[i].AgentIDs = out
			return current, nil
		}
		return current, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.NewNotFound("sector", id)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SaveSector replaces a single sector atomically. Used by SectorTicker to
// persist price/volatility/riskScore updates each tick.
func (r *SectorRegistry) SaveSector(updated types.Sector) error {
	found := false
	_, err := storage.AtomicUpdateDocument(r.store, storage.TableSectors, func(current []types.Sector) ([]types.Sector, error) {
		for i := range current {
			if current[i].ID == updated.ID {
				found = true
				current[i] = updated
				return current, nil
			}
		}
		return current, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.NewNotFound("sector", updated.ID)
	}
	return nil
}
