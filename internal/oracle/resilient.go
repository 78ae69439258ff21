package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sectormind/engine/internal/apperr"
	"github.com/sectormind/engine/internal/metrics"
	"github.com/sectormind/engine/pkg/utils"
)

// ResilientConfig tunes the wrapper around a real ReasoningOracle
// implementation. Defaults mirror spec.md §5: a 10s per-call timeout and 2
// retries with exponential backoff.
type ResilientConfig struct {
	CallTimeout      time.Duration
	RetryConfig      utils.RetryConfig
	RateLimitPerSec  float64
	RateLimitBurst   int
	BreakerName      string
	BreakerThreshold uint32 // consecutive failures before opening
	BreakerCooldown  time.Duration
}

// DefaultResilientConfig returns the spec-named defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		CallTimeout:      10 * time.Second,
		RetryConfig:      utils.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2.0},
		RateLimitPerSec:  5,
		RateLimitBurst:   5,
		BreakerName:      "reasoning-oracle",
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// ResilientOracle wraps an inner ReasoningOracle with a per-call timeout,
// retry-with-backoff, a token-bucket rate limiter, and a circuit breaker
// that trips after repeated failures so a hanging/misbehaving provider
// stops being called at all until a cooldown probe succeeds. Grounded in
// ajitpratap0-cryptofunk's sony/gobreaker dependency; the retry loop reuses
// pkg/utils.Retry, itself grounded in the teacher's own generic Retry[T].
type ResilientOracle struct {
	inner   ReasoningOracle
	cfg     ResilientConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Collectors
}

// SetMetrics wires a collectors instance after construction.
func (r *ResilientOracle) SetMetrics(m *metrics.Collectors) {
	r.metrics = m
}

// NewResilientOracle constructs the wrapper around inner.
func NewResilientOracle(inner ReasoningOracle, cfg ResilientConfig, logger *zap.Logger) *ResilientOracle {
	settings := gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("oracle circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			}
		},
	}
	return &ResilientOracle{
		inner:   inner,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.Named("oracle"),
	}
}

// Complete implements ReasoningOracle. If the breaker is open, it returns
// OracleUnavailable immediately without calling inner, so the caller can
// fall back without paying the call-timeout cost (spec.md's domain-stack
// rationale for the breaker).
func (r *ResilientOracle) Complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", apperr.NewOracleUnavailable("rate limiter: " + err.Error())
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return utils.Retry(r.cfg.RetryConfig, func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
			return r.inner.Complete(callCtx, systemPrompt, userPrompt, jsonMode)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.recordOutcome("circuit_open")
			return "", apperr.NewOracleUnavailable("circuit breaker open")
		}
		r.recordOutcome("fallback")
		return "", apperr.NewOracleUnavailable(err.Error())
	}
	r.recordOutcome("ok")
	return result.(string), nil
}

func (r *ResilientOracle) recordOutcome(outcome string) {
	if r.metrics != nil {
		r.metrics.OracleCallsTotal.WithLabelValues(outcome).Inc()
	}
}
