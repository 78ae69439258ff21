// Package main is the entry point for the sector deliberation engine: it
// wires storage, the agent/sector registries, the discussion engine, and
// the tick/lifecycle/watchdog drivers together and runs them until an
// interrupt signal arrives. No HTTP server or router is started here;
// the engine is a background process, not an API surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sectormind/engine/internal/orchestrator"
	"github.com/sectormind/engine/pkg/config"
)

func main() {
	logLevel := getEnvOrDefault("LOG_LEVEL", "info")

	logger := setupLogger(logLevel)
	defer logger.Sync()

	secrets := maybeVaultProvider(logger)
	cfg := config.Load(secrets)

	logger.Info("starting sector deliberation engine",
		zap.Bool("oracleEnabled", cfg.OracleEnabled),
		zap.String("storageDir", cfg.StorageDir),
		zap.Duration("tickInterval", cfg.TickInterval),
		zap.Duration("lifecycleInterval", cfg.LifecycleInterval),
		zap.Duration("watchdogInterval", cfg.WatchdogInterval),
	)

	orch, err := orchestrator.New(cfg, orchestrator.Options{}, logger)
	if err != nil {
		logger.Fatal("failed to construct orchestrator", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		logger.Fatal("failed to start orchestrator", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("engine running")
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	orch.Stop()

	logger.Info("engine stopped")
}

// maybeVaultProvider returns a VaultSecretProvider when VAULT_ADDR and
// VAULT_TOKEN are set, else nil so config.Load falls back to plain env
// vars for ORACLE_API_KEY.
func maybeVaultProvider(logger *zap.Logger) config.SecretProvider {
	addr := os.Getenv("VAULT_ADDR")
	token := os.Getenv("VAULT_TOKEN")
	if addr == "" || token == "" {
		return nil
	}

	mountPath := getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	secretPath := getEnvOrDefault("VAULT_SECRET_PATH", "sectormind")

	provider, err := config.NewVaultSecretProvider(addr, token, mountPath, secretPath, logger)
	if err != nil {
		logger.Warn("vault secret provider unavailable, falling back to plain env vars", zap.Error(err))
		return nil
	}
	return provider
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
