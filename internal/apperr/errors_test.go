package apperr

import (
	"errors"
	"testing"
)

func TestCapacityExceededIsMatchableViaErrorsAs(t *testing.T) {
	err := error(NewCapacityExceeded("MAX_TOTAL_AGENTS", 5))

	var capErr *CapacityExceeded
	if !errors.As(err, &capErr) {
		t.Fatal("expected errors.As to match *CapacityExceeded")
	}
	if capErr.Limit != "MAX_TOTAL_AGENTS" || capErr.Value != 5 {
		t.Fatalf("unexpected fields: %+v", capErr)
	}
}

func TestStorageFailureUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageFailure("agents", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestIllegalStateTransitionMessageNamesBothStates(t *testing.T) {
	err := NewIllegalStateTransition("CREATED", "DECIDED")
	want := "illegal state transition: CREATED -> DECIDED"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
