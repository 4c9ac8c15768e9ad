package tracing

import (
	"errors"
	"fmt"
	"testing"
)

type reasonErr struct{ r Reason }

func (e *reasonErr) Error() string  { return "failed: " + e.r.String() }
func (e *reasonErr) Reason() Reason { return e.r }

func TestReasonOf(t *testing.T) {
	if got := ReasonOf(nil); got != ReasonNone {
		t.Fatalf("nil error: got %v", got)
	}
	if got := ReasonOf(errors.New("boom")); got != ReasonUnspecified {
		t.Fatalf("plain error: got %v", got)
	}
	wrapped := fmt.Errorf("outer: %w", &reasonErr{r: ReasonSweepToken})
	if got := ReasonOf(wrapped); got != ReasonSweepToken {
		t.Fatalf("wrapped error: got %v, want %v", got, ReasonSweepToken)
	}
}

func TestReasonString(t *testing.T) {
	for r := ReasonNone; r <= ReasonSweepToken; r++ {
		if r.String() == "unknown" {
			t.Errorf("reason %d has no name", int(r))
		}
	}
	if Reason(999).String() != "unknown" {
		t.Fatalf("out of range reason should be unknown")
	}
}
