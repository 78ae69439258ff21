// Package orchestrator wires the engine's registries, oracle, discussion
// engine, and its three independent periodic drivers (SectorTicker,
// the discussion-lifecycle sweep, and DiscussionWatchdog) into a single
// runnable unit, plus the archive sweep and metrics/health surfaces.
// Adapted from the teacher's internal/orchestrator.TradingOrchestrator:
// same constructor-wires-everything, Start/Stop-with-guarded-drivers
// shape, retargeted from the teacher's regime/sizing/montecarlo pipeline
// onto this engine's tick/lifecycle/watchdog drivers.
package orchestrator

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/internal/archive"
	"github.com/sectormind/engine/internal/commsbus"
	"github.com/sectormind/engine/internal/discussion"
	"github.com/sectormind/engine/internal/health"
	"github.com/sectormind/engine/internal/manager"
	"github.com/sectormind/engine/internal/metrics"
	"github.com/sectormind/engine/internal/oracle"
	"github.com/sectormind/engine/internal/registry"
	"github.com/sectormind/engine/internal/storage"
	"github.com/sectormind/engine/internal/ticker"
	"github.com/sectormind/engine/internal/watchdog"
	"github.com/sectormind/engine/pkg/types"
)

// DebounceWindow is ManagerController's fixed discussion-creation debounce
// (spec.md §4.7); unlike the tick/lifecycle/watchdog intervals it is not
// one of spec.md §6's operator-tunable knobs.
const DebounceWindow = 60 * time.Second

// Orchestrator owns every long-lived component and the three periodic
// drivers' lifecycles.
type Orchestrator struct {
	Store      *storage.Store
	Agents     *registry.AgentRegistry
	Sectors    *registry.SectorRegistry
	Discussion *discussion.Engine
	Manager    *manager.Controller
	Ticker     *ticker.Ticker
	Watchdog   *watchdog.Watchdog
	Sweeper    *archive.Sweeper
	Metrics    *metrics.Collectors
	Health     *health.Reader

	config types.EngineConfig
	logger *zap.Logger

	tickGuard      atomic.Bool
	lifecycleGuard atomic.Bool
	watchdogGuard  atomic.Bool

	cancel context.CancelFunc
}

// Options lets callers inject the oracle implementation and an optional
// cold-storage sink; both default to no-ops so the engine runs standalone
// with ORACLE_ENABLED=false and no archive bucket configured.
type Options struct {
	RawOracle   oracle.ReasoningOracle // nil -> DisabledOracle
	ArchiveSink archive.Sink           // nil -> NoopSink
}

// New constructs every component in dependency order: store, then the
// sector registry, the oracle and the agent registry (the two registries
// wired to each other via SectorRegistry's ManagerFactory callback rather
// than a direct import cycle), then the discussion engine, comms bus, manager controller, ticker, watchdog, archive
// sweeper, metrics, and health reader.
func New(cfg types.EngineConfig, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	store, err := storage.NewStore(logger, cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	sectors := registry.NewSectorRegistry(store, logger)

	resolvedOracle := resolveOracle(cfg, opts.RawOracle, logger)

	agents := registry.NewAgentRegistry(store, resolvedOracle, cfg, sectors, logger)
	sectors.SetManagerFactory(func(ctx context.Context, sectorID string) error {
		role := types.RoleManager
		_, err := agents.CreateAgent(ctx, "sector manager", &sectorID, &role)
		return err
	})

	discussionEngine := discussion.NewEngine(store, agents, sectors, resolvedOracle, cfg.ConflictThreshold, logger)

	bus := commsbus.NewBus(logger)
	managerController := manager.New(discussionEngine, sectors, agents, bus, DebounceWindow, logger)

	tick := ticker.New(sectors, agents, managerController, ticker.Config{
		ReadinessThreshold: cfg.ReadinessThreshold,
		MaxParallelSectors: 8,
	}, logger)

	wd := watchdog.New(discussionEngine, cfg.StallThreshold, logger)

	sink := opts.ArchiveSink
	if sink == nil {
		sink = archive.NoopSink{}
	}
	sweeper := archive.NewSweeper(discussionEngine, sink, cfg.ArchiveDelay, logger)

	collectors := metrics.New()
	agents.SetMetrics(collectors)
	managerController.SetMetrics(collectors)
	wd.SetMetrics(collectors)
	if resilient, ok := resolvedOracle.(*oracle.ResilientOracle); ok {
		resilient.SetMetrics(collectors)
	}

	return &Orchestrator{
		Store:      store,
		Agents:     agents,
		Sectors:    sectors,
		Discussion: discussionEngine,
		Manager:    managerController,
		Ticker:     tick,
		Watchdog:   wd,
		Sweeper:    sweeper,
		Metrics:    collectors,
		Health:     health.NewReader(int32(os.Getpid())),
		config:     cfg,
		logger:     logger.Named("orchestrator"),
	}, nil
}

func resolveOracle(cfg types.EngineConfig, raw oracle.ReasoningOracle, logger *zap.Logger) oracle.ReasoningOracle {
	if !cfg.OracleEnabled || raw == nil {
		return oracle.DisabledOracle{}
	}
	return oracle.NewResilientOracle(raw, oracle.DefaultResilientConfig(), logger)
}

// Start launches the three periodic drivers and the archive sweep. It
// returns once every driver goroutine has been scheduled; callers should
// call Stop (directly, or by cancelling ctx) to shut down.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if err := o.Sweeper.Start(runCtx, "@every 1m"); err != nil {
		return err
	}

	go o.loop(runCtx, o.config.TickInterval, &o.tickGuard, o.runTick)
	go o.loop(runCtx, o.config.LifecycleInterval, &o.lifecycleGuard, o.runLifecycle)
	go o.loop(runCtx, o.config.WatchdogInterval, &o.watchdogGuard, o.runWatchdog)

	return nil
}

// Stop cancels every driver and waits for the archive sweeper to settle.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.Sweeper.Stop()
	o.Discussion.Close()
}

// loop runs fn on a fixed interval until ctx is cancelled. guard ensures
// non-reentrancy (spec.md §5): if a prior invocation of fn is still
// running when the next tick fires, that tick is skipped rather than
// queued.
func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, guard *atomic.Bool, fn func(context.Context)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !guard.CompareAndSwap(false, true) {
				continue
			}
			fn(ctx)
			guard.Store(false)
		}
	}
}

func (o *Orchestrator) runTick(ctx context.Context) {
	if err := o.Ticker.Tick(ctx); err != nil {
		o.Metrics.SectorTickErrors.Inc()
		o.logger.Warn("tick driver error", zap.Error(err))
		return
	}
	o.Metrics.TicksCompleted.Inc()

	if all, err := o.Agents.ListAgents(); err == nil {
		active := 0
		for _, a := range all {
			if a.Status == types.AgentActive {
				active++
			}
		}
		o.Metrics.ActiveAgentsGauge.Set(float64(active))
	}
}

// runLifecycle advances every room one step: CREATED rooms start,
// IN_PROGRESS rooms collect one round of arguments and produce a decision
// once MaxRounds rounds are in, DECIDED rooms close.
// Archiving is the sweeper's job, not the lifecycle driver's.
func (o *Orchestrator) runLifecycle(ctx context.Context) {
	rooms, err := o.Discussion.ListDiscussions()
	if err != nil {
		o.logger.Warn("lifecycle driver: list discussions failed", zap.Error(err))
		return
	}

	inProgress := 0
	for _, room := range rooms {
		if room.Status == types.StatusInProgress {
			inProgress++
		}
	}
	o.Metrics.ActiveDiscussionsGauge.Set(float64(inProgress))

	for _, room := range rooms {
		switch room.Status {
		case types.StatusCreated:
			if _, err := o.Discussion.StartDiscussion(room.ID); err != nil {
				o.logger.Debug("lifecycle: start discussion failed", zap.String("discussionId", room.ID), zap.Error(err))
			}
		case types.StatusInProgress:
			if _, err := o.Discussion.CollectArguments(ctx, room.ID); err != nil {
				o.logger.Debug("lifecycle: collect arguments failed", zap.String("discussionId", room.ID), zap.Error(err))
				continue
			}
			if room.CurrentRound+1 >= o.config.MaxRounds {
				if _, err := o.Discussion.ProduceDecision(room.ID); err != nil {
					o.logger.Debug("lifecycle: produce decision failed", zap.String("discussionId", room.ID), zap.Error(err))
					continue
				}
				o.Metrics.DiscussionsDecided.Inc()
			}
		case types.StatusDecided:
			if _, err := o.Discussion.CloseDiscussion(room.ID, "decided"); err != nil {
				o.logger.Debug("lifecycle: close discussion failed", zap.String("discussionId", room.ID), zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) runWatchdog(ctx context.Context) {
	if err := o.Watchdog.Sweep(ctx); err != nil {
		o.logger.Warn("watchdog driver error", zap.Error(err))
	}
}
