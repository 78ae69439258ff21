// Package scripting provides the optional custom confidence-rule hook
// ConfidenceEngine calls in SectorTicker's step 5 (spec.md §4.6): an
// operator-supplied JS expression evaluated in a sandboxed goja runtime,
// never the Go process's own interpreter.
package scripting

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/sectormind/engine/internal/apperr"
)

// RuleContext is the read-only market/agent snapshot a custom confidence
// rule script sees.
type RuleContext struct {
	AgentRole      string
	PriceChangePct float64
	Volatility     float64
	RiskScore      float64
	Confidence     float64
}

// Rule is a single named JS expression producing a confidence delta. The
// expression must evaluate to a number; anything else is a ValidationError.
type Rule struct {
	Name       string
	Expression string
}

// Evaluator runs custom confidence rules in a fresh, time-limited goja
// runtime per call — no shared state leaks between agents or ticks.
type Evaluator struct {
	Timeout time.Duration
}

// NewEvaluator constructs an Evaluator with a conservative default timeout,
// since a malformed rule could otherwise spin the tick loop.
func NewEvaluator() *Evaluator {
	return &Evaluator{Timeout: 50 * time.Millisecond}
}

// Eval runs rule.Expression against ctx and returns the resulting
// confidence delta, clamped to [-10, 10] so a misbehaving rule cannot
// dominate the role-based drift it supplements.
func (e *Evaluator) Eval(rule Rule, ctx RuleContext) (delta float64, err error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	if setErr := vm.Set("ctx", ctx); setErr != nil {
		return 0, apperr.NewValidationError("rule", fmt.Sprintf("bind context: %v", setErr))
	}

	timer := time.AfterFunc(e.Timeout, func() {
		vm.Interrupt("rule evaluation timed out")
	})
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			err = apperr.NewValidationError("rule", fmt.Sprintf("%s panicked: %v", rule.Name, r))
		}
	}()

	value, runErr := vm.RunString(rule.Expression)
	if runErr != nil {
		return 0, apperr.NewValidationError("rule", fmt.Sprintf("%s: %v", rule.Name, runErr))
	}

	result := value.Export()
	num, ok := result.(float64)
	if !ok {
		if i, isInt := result.(int64); isInt {
			num = float64(i)
		} else {
			return 0, apperr.NewValidationError("rule", rule.Name+" did not evaluate to a number")
		}
	}

	if num < -10 {
		num = -10
	} else if num > 10 {
		num = 10
	}
	return num, nil
}
