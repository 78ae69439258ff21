// Package config loads the engine's environment knobs (spec.md §6) through
// viper, optionally bootstrapping a local .env file the way the rest of the
// retrieval pack does for development, and resolves the oracle API key
// through an optional Vault-backed secret provider before falling back to
// the plain environment variable.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sectormind/engine/pkg/types"
)

// bindDefaults mirrors types.DefaultEngineConfig in viper's own key/value
// form, so every env var in spec.md §6 has a well-defined fallback even
// when unset.
func bindDefaults(v *viper.Viper, d types.EngineConfig) {
	v.SetDefault("ORACLE_ENABLED", d.OracleEnabled)
	v.SetDefault("ORACLE_BASE_URL", d.OracleBaseURL)
	v.SetDefault("ORACLE_MODEL_NAME", d.OracleModelName)
	v.SetDefault("ORACLE_API_KEY", d.OracleAPIKey)
	v.SetDefault("ORACLE_RESPONSE_FORMAT", d.OracleResponseFormat)

	v.SetDefault("TICK_INTERVAL_MS", d.TickInterval.Milliseconds())
	v.SetDefault("LIFECYCLE_INTERVAL_MS", d.LifecycleInterval.Milliseconds())
	v.SetDefault("WATCHDOG_INTERVAL_MS", d.WatchdogInterval.Milliseconds())
	v.SetDefault("PRICE_TICK_MS", d.PriceTickInterval.Milliseconds())

	v.SetDefault("MAX_TOTAL_AGENTS", d.MaxTotalAgents)
	v.SetDefault("MAX_AGENTS_PER_SECTOR", d.MaxAgentsPerSector)
	v.SetDefault("READINESS_THRESHOLD", d.ReadinessThreshold)
	v.SetDefault("CONFLICT_THRESHOLD", d.ConflictThreshold)
	v.SetDefault("MAX_ROUNDS", d.MaxRounds)
	v.SetDefault("ARCHIVE_DELAY_MS", d.ArchiveDelay.Milliseconds())
	v.SetDefault("STALL_THRESHOLD_MS", d.StallThreshold.Milliseconds())

	v.SetDefault("STORAGE_DIR", d.StorageDir)
}

// SecretProvider resolves a named secret, e.g. from Vault. Load returns
// ("", false) when the secret is absent so the caller can fall back to the
// plain environment variable.
type SecretProvider interface {
	Load(name string) (string, bool)
}

// Load builds an EngineConfig from the process environment (and an
// optional .env file in the working directory), falling back to
// types.DefaultEngineConfig for anything unset. If secrets is non-nil it is
// consulted for ORACLE_API_KEY before the plain env var.
func Load(secrets SecretProvider) types.EngineConfig {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	defaults := types.DefaultEngineConfig()

	v := viper.New()
	v.AutomaticEnv()
	bindDefaults(v, defaults)

	cfg := types.EngineConfig{
		OracleEnabled:        v.GetBool("ORACLE_ENABLED"),
		OracleBaseURL:        v.GetString("ORACLE_BASE_URL"),
		OracleModelName:      v.GetString("ORACLE_MODEL_NAME"),
		OracleAPIKey:         v.GetString("ORACLE_API_KEY"),
		OracleResponseFormat: v.GetString("ORACLE_RESPONSE_FORMAT"),

		TickInterval:      time.Duration(v.GetInt64("TICK_INTERVAL_MS")) * time.Millisecond,
		LifecycleInterval: time.Duration(v.GetInt64("LIFECYCLE_INTERVAL_MS")) * time.Millisecond,
		WatchdogInterval:  time.Duration(v.GetInt64("WATCHDOG_INTERVAL_MS")) * time.Millisecond,
		PriceTickInterval: time.Duration(v.GetInt64("PRICE_TICK_MS")) * time.Millisecond,

		MaxTotalAgents:     v.GetInt("MAX_TOTAL_AGENTS"),
		MaxAgentsPerSector: v.GetInt("MAX_AGENTS_PER_SECTOR"),
		ReadinessThreshold: v.GetFloat64("READINESS_THRESHOLD"),
		ConflictThreshold:  v.GetFloat64("CONFLICT_THRESHOLD"),
		MaxRounds:          v.GetInt("MAX_ROUNDS"),
		ArchiveDelay:       time.Duration(v.GetInt64("ARCHIVE_DELAY_MS")) * time.Millisecond,
		StallThreshold:     time.Duration(v.GetInt64("STALL_THRESHOLD_MS")) * time.Millisecond,

		StorageDir: v.GetString("STORAGE_DIR"),
	}

	if secrets != nil {
		if key, ok := secrets.Load("ORACLE_API_KEY"); ok && key != "" {
			cfg.OracleAPIKey = key
		}
	}

	return cfg
}
