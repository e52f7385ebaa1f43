package history

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"sent to responded", StatusSent, StatusResponded, true},
		{"sent to deferred (timeout)", StatusSent, StatusDeferred, true},
		{"sent to completed skips responded", StatusSent, StatusCompleted, false},
		{"responded to completed", StatusResponded, StatusCompleted, true},
		{"responded to failed", StatusResponded, StatusFailed, true},
		{"responded to deferred", StatusResponded, StatusDeferred, true},
		{"responded to sent (next attempt)", StatusResponded, StatusSent, true},
		{"deferred to sent", StatusDeferred, StatusSent, true},
		{"deferred to completed", StatusDeferred, StatusCompleted, false},
		{"completed is terminal", StatusCompleted, StatusSent, false},
		{"failed is terminal", StatusFailed, StatusResponded, false},
		{"same state is a no-op", StatusResponded, StatusResponded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransition_RejectsIllegal(t *testing.T) {
	_, err := Transition(StatusCompleted, StatusResponded)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if terr.From != StatusCompleted || terr.To != StatusResponded {
		t.Errorf("unexpected error fields: %+v", terr)
	}

	if _, err := Transition(StatusSent, Status("banana")); err == nil {
		t.Error("expected unknown status to be rejected")
	}
}

func TestTransition_Allows(t *testing.T) {
	got, err := Transition(StatusDeferred, StatusSent)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if got != StatusSent {
		t.Errorf("expected sent, got %s", got)
	}
}

func TestRetryDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"deferred and due", Record{Status: StatusDeferred, NextAttemptAt: &past}, true},
		{"deferred exactly at now", Record{Status: StatusDeferred, NextAttemptAt: &now}, true},
		{"deferred in the future", Record{Status: StatusDeferred, NextAttemptAt: &future}, false},
		{"deferred without timestamp", Record{Status: StatusDeferred}, false},
		{"sent is never due", Record{Status: StatusSent, NextAttemptAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.RetryDue(now); got != tt.want {
				t.Errorf("RetryDue = %v, want %v", got, tt.want)
			}
		})
	}
}
