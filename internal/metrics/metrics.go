// Package metrics defines the engine's prometheus collectors. No HTTP
// endpoint is served here (spec.md's Non-goals exclude an observability
// surface); the registry exists so operators embedding this engine can
// mount /metrics themselves, and so components have somewhere real to
// record counts instead of inventing ad hoc log-only counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every counter/gauge the engine's periodic drivers
// and registries update.
type Collectors struct {
	Registry *prometheus.Registry

	TicksCompleted       prometheus.Counter
	SectorTickErrors     prometheus.Counter
	DiscussionsOpened    prometheus.Counter
	DiscussionsDecided   prometheus.Counter
	DiscussionsStalled   prometheus.Counter
	OracleCallsTotal     *prometheus.CounterVec
	CapacityRejections   *prometheus.CounterVec
	ActiveAgentsGauge    prometheus.Gauge
	ActiveDiscussionsGauge prometheus.Gauge
}

// New constructs and registers every collector against a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		Registry: reg,
		TicksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectormind_ticks_completed_total",
			Help: "Number of sector ticks completed across all sectors.",
		}),
		SectorTickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectormind_sector_tick_errors_total",
			Help: "Number of sector ticks that returned an error.",
		}),
		DiscussionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectormind_discussions_opened_total",
			Help: "Number of discussions created by ManagerController.",
		}),
		DiscussionsDecided: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectormind_discussions_decided_total",
			Help: "Number of discussions that reached DECIDED.",
		}),
		DiscussionsStalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sectormind_discussions_stalled_total",
			Help: "Number of discussions force-resolved by the watchdog.",
		}),
		OracleCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sectormind_oracle_calls_total",
			Help: "Oracle calls by outcome (ok, fallback, circuit_open).",
		}, []string{"outcome"}),
		CapacityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sectormind_capacity_rejections_total",
			Help: "createAgent rejections by limit name.",
		}, []string{"limit"}),
		ActiveAgentsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sectormind_active_agents",
			Help: "Current count of agents with status=active.",
		}),
		ActiveDiscussionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sectormind_active_discussions",
			Help: "Current count of discussions in IN_PROGRESS.",
		}),
	}

	reg.MustRegister(
		c.TicksCompleted,
		c.SectorTickErrors,
		c.DiscussionsOpened,
		c.DiscussionsDecided,
		c.DiscussionsStalled,
		c.OracleCallsTotal,
		c.CapacityRejections,
		c.ActiveAgentsGauge,
		c.ActiveDiscussionsGauge,
	)

	return c
}
