package scripting

import (
	"testing"
	"time"
)

func TestEvalReturnsNumericDelta(t *testing.T) {
	e := NewEvaluator()
	delta, err := e.Eval(Rule{Name: "boost", Expression: "ctx.confidence > 50 ? 3 : -3"}, RuleContext{Confidence: 70})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if delta != 3 {
		t.Fatalf("expected delta 3, got %f", delta)
	}
}

func TestEvalClampsOutOfRangeResult(t *testing.T) {
	e := NewEvaluator()
	delta, err := e.Eval(Rule{Name: "overshoot", Expression: "1000"}, RuleContext{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if delta != 10 {
		t.Fatalf("expected delta clamped to 10, got %f", delta)
	}
}

func TestEvalRejectsNonNumericResult(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.Eval(Rule{Name: "bad", Expression: "\"not a number\""}, RuleContext{}); err == nil {
		t.Fatal("expected a validation error for a non-numeric result")
	}
}

func TestEvalRejectsInvalidExpression(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.Eval(Rule{Name: "broken", Expression: "this is not valid js"}, RuleContext{}); err == nil {
		t.Fatal("expected a validation error for a syntax error")
	}
}

func TestEvalTimesOutOnInfiniteLoop(t *testing.T) {
	e := &Evaluator{Timeout: 10 * time.Millisecond}
	if _, err := e.Eval(Rule{Name: "spin", Expression: "while(true) {}"}, RuleContext{}); err == nil {
		t.Fatal("expected the evaluator to interrupt a runaway rule")
	}
}
