// Package ticker implements SectorTicker and ConfidenceEngine (spec.md
// §4.6): the periodic driver that advances every sector's simulated
// price/volatility/risk state and each member agent's confidence, then
// asks ManagerController whether the sector is ready to open a
// discussion. Sectors tick in parallel (golang.org/x/sync/errgroup +
// semaphore, grounded on the teacher's internal/workers fan-out idiom,
// generalized here to per-sector rather than per-backtest-bar
// parallelism); the EMA trend factor is computed with
// github.com/markcheno/go-talib, the volatility random walk with
// gonum.org/v1/gonum/stat/distuv, matching SPEC_FULL.md's domain-stack
// wiring.
package ticker

import (
	"context"
	"math/rand"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sectormind/engine/internal/registry"
	"github.com/sectormind/engine/internal/scripting"
	"github.com/sectormind/engine/pkg/types"
	"github.com/sectormind/engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// ReadinessNotifier is implemented by ManagerController: Ticker calls it
// once per sector per tick with the freshly recomputed readiness verdict.
type ReadinessNotifier interface {
	Evaluate(ctx context.Context, sector types.Sector, ready bool) error
}

// CustomRule pairs a scripting.Rule with the role it applies to, so
// operators can layer one optional JS confidence adjustment per role on
// top of the fixed role-based drift.
type CustomRule struct {
	Role types.AgentRole
	Rule scripting.Rule
}

// Ticker is the periodic sector-state driver.
type Ticker struct {
	sectors    *registry.SectorRegistry
	agents     *registry.AgentRegistry
	notifier   ReadinessNotifier
	evaluator  *scripting.Evaluator
	customRules map[types.AgentRole]scripting.Rule
	readinessThreshold float64
	maxParallel int64
	logger     *zap.Logger
	rng        *rand.Rand
}

// Config bundles Ticker's tunables.
type Config struct {
	ReadinessThreshold float64
	MaxParallelSectors int64
	CustomRules        []CustomRule
}

// New constructs a Ticker.
func New(sectors *registry.SectorRegistry, agents *registry.AgentRegistry, notifier ReadinessNotifier, cfg Config, logger *zap.Logger) *Ticker {
	rules := make(map[types.AgentRole]scripting.Rule, len(cfg.CustomRules))
	for _, r := range cfg.CustomRules {
		rules[r.Role] = r.Rule
	}
	maxParallel := cfg.MaxParallelSectors
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Ticker{
		sectors:            sectors,
		agents:             agents,
		notifier:           notifier,
		evaluator:          scripting.NewEvaluator(),
		customRules:        rules,
		readinessThreshold: cfg.ReadinessThreshold,
		maxParallel:        maxParallel,
		logger:             logger.Named("ticker"),
		rng:                rand.New(rand.NewSource(1)),
	}
}

// Tick advances every sector once, in parallel bounded by maxParallel.
// Errors for one sector never abort the others; each is logged and the
// driver moves on, per spec.md §7's periodic-driver error policy.
func (t *Ticker) Tick(ctx context.Context) error {
	sectors, err := t.sectors.ListSectors()
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(t.maxParallel)
	group, groupCtx := errgroup.WithContext(ctx)

	for _, sector := range sectors {
		sector := sector
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			if tickErr := t.tickSector(groupCtx, sector); tickErr != nil {
				t.logger.Warn("sector tick failed, continuing", zap.String("sectorId", sector.ID), zap.Error(tickErr))
			}
			return nil
		})
	}
	return group.Wait()
}

func (t *Ticker) tickSector(ctx context.Context, sector types.Sector) error {
	agents, err := t.loadSectorAgents(sector)
	if err != nil {
		return err
	}

	sector.Volatility = t.stepVolatility(sector.Volatility)
	sector.CurrentPrice = t.stepPrice(sector, agents)
	changePct := changePercent(sector)
	sector.RiskScore = t.recomputeRisk(sector, changePct)
	sector.PriceHistory = appendPricePoint(sector)
	sector.ActiveAgents = countActive(agents)

	if err := t.sectors.SaveSector(sector); err != nil {
		return err
	}

	updated := t.driftConfidence(agents)
	if len(updated) > 0 {
		if err := t.agents.SaveAgents(updated); err != nil {
			return err
		}
	}

	ready := t.isDiscussionReady(agents, updated)
	if t.notifier != nil {
		if err := t.notifier.Evaluate(ctx, sector, ready); err != nil {
			t.logger.Debug("manager evaluate failed", zap.String("sectorId", sector.ID), zap.Error(err))
		}
	}
	return nil
}

func (t *Ticker) loadSectorAgents(sector types.Sector) ([]types.Agent, error) {
	all, err := t.agents.ListAgents()
	if err != nil {
		return nil, err
	}
	out := make([]types.Agent, 0, len(sector.AgentIDs))
	for _, a := range all {
		if a.SectorID != nil && *a.SectorID == sector.ID {
			out = append(out, a)
		}
	}
	return out, nil
}

// stepVolatility performs a bounded random walk: +/-5% jitter, clamped to
// [0,1].
func (t *Ticker) stepVolatility(current float64) float64 {
	noise := distuv.Uniform{Min: -0.05, Max: 0.05, Src: t.rng}.Rand()
	return utils.Clamp(current+noise, 0, 1)
}

// stepPrice applies spec.md §4.6's price update formula:
// newPrice = max(0.01, prev*(1 + managerImpact*0.001 + uniform(-noise,noise) + trendFactor)).
func (t *Ticker) stepPrice(sector types.Sector, agents []types.Agent) decimal.Decimal {
	prev, _ := sector.CurrentPrice.Float64()
	if prev <= 0 {
		prev = 100 // price simulator seeds a sector's first tick at 100
	}

	managerImpact := averageManagerConfidence(agents)
	noiseRange := 0.01 + sector.Volatility*0.04
	noise := distuv.Uniform{Min: -noiseRange, Max: noiseRange, Src: t.rng}.Rand()
	trend := t.trendFactor(sector)

	next := prev * (1 + managerImpact*0.001 + noise + trend)
	if next < 0.01 {
		next = 0.01
	}
	return decimal.NewFromFloat(next).Round(6)
}

// trendFactor is an EMA-based momentum signal over recent price history.
func (t *Ticker) trendFactor(sector types.Sector) float64 {
	n := len(sector.PriceHistory)
	if n < 3 {
		return 0
	}
	period := 5
	if n < period {
		period = n
	}
	prices := make([]float64, n)
	for i, p := range sector.PriceHistory {
		prices[i], _ = p.Price.Float64()
	}
	ema := talib.Ema(prices, period)
	latestEMA := ema[len(ema)-1]
	prevEMA := ema[len(ema)-2]
	if prevEMA == 0 {
		return 0
	}
	return utils.Clamp((latestEMA-prevEMA)/prevEMA, -0.05, 0.05)
}

func (t *Ticker) recomputeRisk(sector types.Sector, changePct float64) float64 {
	base := sector.Volatility * 100 * 0.6
	swing := absFloat(changePct) * 4
	return utils.Clamp(base+swing, 0, 100)
}

func appendPricePoint(sector types.Sector) []types.PricePoint {
	points := append(sector.PriceHistory, types.PricePoint{
		SectorID:  sector.ID,
		Price:     sector.CurrentPrice,
		Timestamp: time.Now(),
	})
	if len(points) > types.MaxPriceHistory {
		points = points[len(points)-types.MaxPriceHistory:]
	}
	return points
}

func countActive(agents []types.Agent) int {
	n := 0
	for _, a := range agents {
		if a.Status == types.AgentActive {
			n++
		}
	}
	return n
}

func averageManagerConfidence(agents []types.Agent) float64 {
	sum, count := 0.0, 0
	for _, a := range agents {
		if types.IsManagerRole(a.Role) {
			sum += a.Confidence
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func changePercent(sector types.Sector) float64 {
	n := len(sector.PriceHistory)
	if n == 0 {
		return 0
	}
	prev, _ := sector.PriceHistory[n-1].Price.Float64()
	latest, _ := sector.CurrentPrice.Float64()
	if prev == 0 {
		return 0
	}
	return (latest - prev) / prev * 100
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// driftConfidence implements ConfidenceEngine's step 5 role-based drift:
// research-like roles drift +1..+5, analyst-like roles drift -2..+3, every
// other role is unaffected by the fixed rule, plus an optional custom JS
// rule delta layered on top. Returns only the agents whose confidence
// actually changed.
func (t *Ticker) driftConfidence(agents []types.Agent) map[string]types.Agent {
	updated := make(map[string]types.Agent)
	for _, a := range agents {
		delta := t.roleDrift(a.Role)

		if rule, ok := t.customRules[a.Role]; ok {
			ruleDelta, err := t.evaluator.Eval(rule, scripting.RuleContext{
				AgentRole:  string(a.Role),
				Confidence: a.Confidence,
			})
			if err != nil {
				t.logger.Debug("custom confidence rule failed, ignoring", zap.String("role", string(a.Role)), zap.Error(err))
			} else {
				delta += ruleDelta
			}
		}

		if delta == 0 {
			continue
		}
		a.Confidence = utils.Clamp(a.Confidence+delta, -100, 100)
		updated[a.ID] = a
	}
	return updated
}

func (t *Ticker) roleDrift(role types.AgentRole) float64 {
	switch {
	case types.IsResearchLike(role):
		return 1 + t.rng.Float64()*4 // +1..+5
	case types.IsAnalystLike(role):
		return -2 + t.rng.Float64()*5 // -2..+3
	default:
		return 0
	}
}

// isDiscussionReady implements spec.md §4.6's readiness predicate: every
// non-manager agent in the sector meets the readiness threshold.
func (t *Ticker) isDiscussionReady(agents []types.Agent, updated map[string]types.Agent) bool {
	found := false
	for _, a := range agents {
		if types.IsManagerRole(a.Role) {
			continue
		}
		found = true
		confidence := a.Confidence
		if u, ok := updated[a.ID]; ok {
			confidence = u.Confidence
		}
		if confidence < t.readinessThreshold {
			return false
		}
	}
	return found
}

