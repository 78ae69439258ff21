package types

import "time"

// EngineConfig is the full set of tunables enumerated in spec.md §6,
// bound from environment knobs by pkg/config.
type EngineConfig struct {
	OracleEnabled        bool
	OracleBaseURL        string
	OracleModelName      string
	OracleAPIKey         string
	OracleResponseFormat string // "text" | "json_object" | "off"

	TickInterval      time.Duration
	LifecycleInterval time.Duration
	WatchdogInterval  time.Duration
	PriceTickInterval time.Duration

	MaxTotalAgents     int
	MaxAgentsPerSector int
	ReadinessThreshold float64
	ConflictThreshold  float64
	MaxRounds          int
	ArchiveDelay       time.Duration
	StallThreshold     time.Duration

	StorageDir string
}

// DefaultEngineConfig mirrors the defaults named throughout spec.md (§2,
// §4.5, §4.6, §4.7, §4.8) before any environment override is applied.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		OracleEnabled:        false,
		OracleBaseURL:        "",
		OracleModelName:      "",
		OracleAPIKey:         "",
		OracleResponseFormat: "json_object",

		TickInterval:      2000 * time.Millisecond,
		LifecycleInterval: 1000 * time.Millisecond,
		WatchdogInterval:  5000 * time.Millisecond,
		PriceTickInterval: 10000 * time.Millisecond,

		MaxTotalAgents:     500,
		MaxAgentsPerSector: 12,
		ReadinessThreshold: 65,
		ConflictThreshold:  0.5,
		MaxRounds:          3,
		ArchiveDelay:       60 * time.Second,
		StallThreshold:     30 * time.Second,

		StorageDir: "./storage",
	}
}
