package oracle

import (
	"context"
	"testing"
)

type sample struct {
	Action string `json:"action"`
}

func TestParseJSONObjectHandlesPlainJSON(t *testing.T) {
	var out sample
	if err := ParseJSONObject(`{"action":"BUY"}`, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Action != "BUY" {
		t.Fatalf("expected BUY, got %s", out.Action)
	}
}

func TestParseJSONObjectStripsMarkdownFence(t *testing.T) {
	var out sample
	text := "```json\n{\"action\":\"SELL\"}\n```"
	if err := ParseJSONObject(text, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Action != "SELL" {
		t.Fatalf("expected SELL, got %s", out.Action)
	}
}

func TestParseJSONObjectExtractsObjectFromSurroundingProse(t *testing.T) {
	var out sample
	text := "Sure, here is my answer: {\"action\":\"HOLD\"} Let me know if you need more."
	if err := ParseJSONObject(text, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Action != "HOLD" {
		t.Fatalf("expected HOLD, got %s", out.Action)
	}
}

func TestParseJSONObjectRejectsEmptyResponse(t *testing.T) {
	var out sample
	if err := ParseJSONObject("   ", &out); err == nil {
		t.Fatal("expected an error for an empty response")
	}
}

func TestParseJSONObjectRejectsMalformedJSON(t *testing.T) {
	var out sample
	if err := ParseJSONObject("{not json}", &out); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestDisabledOracleAlwaysReturnsOracleUnavailable(t *testing.T) {
	_, err := DisabledOracle{}.Complete(context.Background(), "sys", "user", true)
	if err == nil {
		t.Fatal("expected DisabledOracle to always return an error")
	}
}

func TestRequestAgentProfilePropagatesUnderlyingError(t *testing.T) {
	_, err := RequestAgentProfile(context.Background(), DisabledOracle{}, AgentProfileRequest{Description: "a trader"})
	if err == nil {
		t.Fatal("expected an error when the underlying oracle is disabled")
	}
}
