// Package oracle defines the ReasoningOracle boundary (spec.md §6): an
// opaque interface the engine calls with a structured prompt and gets back
// free text, which may or may not be well-formed JSON. The actual language
// model client is an external collaborator, out of scope for this engine;
// this package owns only the boundary interface, a deterministic
// rule-based fallback (used when disabled or when the real client fails),
// and the resilience wrapper (timeout, retry, circuit breaker, rate limit)
// around whatever implementation is plugged in.
//
// The shape of "call an opaque text-generation endpoint and parse a loose
// JSON reply out of the response" is grounded in the teacher's
// PerplexitySignalSource (internal/signals/aggregator.go): its
// callPerplexity/parseResponse pair is the same boundary, just specialized
// to one HTTP provider. This package keeps the provider out of scope and
// only formalizes the interface and the parsing/fallback contract.
package oracle

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sectormind/engine/internal/apperr"
)

// ReasoningOracle is the opaque boundary interface (spec.md §6):
// {systemPrompt, userPrompt, jsonMode} -> string.
type ReasoningOracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error)
}

// ParseJSONObject extracts a JSON object from text that may be wrapped in
// a markdown code fence (```json ... ``` or ``` ... ```), as real LLM
// clients routinely emit. Returns OracleUnavailable if no JSON object can
// be parsed — the caller is expected to fall back at that point.
func ParseJSONObject(text string, out any) error {
	candidate := stripFence(text)
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return apperr.NewOracleUnavailable("empty oracle response")
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return apperr.NewOracleUnavailable("non-JSON oracle response: " + err.Error())
	}
	return nil
}

// stripFence removes a single leading/trailing markdown code fence if
// present, and takes the substring between the first '{' and the last '}'
// as a last resort, so conversational prose around the JSON does not break
// parsing.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
		if idx := strings.Index(t, "\n"); idx >= 0 {
			first := strings.TrimSpace(t[:idx])
			if first == "json" || first == "" {
				t = t[idx+1:]
			}
		}
		t = strings.TrimSuffix(strings.TrimSpace(t), "```")
		return strings.TrimSpace(t)
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1]
	}
	return t
}
