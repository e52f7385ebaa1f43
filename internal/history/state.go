// Package history models the per-(individual, goal) outreach state machine.
// One record exists per pair, reused across attempts; the record is the audit
// trail and is never deleted.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the state of an outreach attempt.
type Status string

const (
	StatusSent      Status = "sent"      // message dispatched, awaiting reply
	StatusResponded Status = "responded" // reply received and classified
	StatusDeferred  Status = "deferred"  // retry scheduled at next_attempt_at
	StatusCompleted Status = "completed" // terminal success
	StatusFailed    Status = "failed"    // terminal failure
)

// Terminal reports whether the status ends selection for the pair.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusResponded, StatusDeferred, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DecisionMethod records how a goal selection was made.
type DecisionMethod string

const (
	MethodRule       DecisionMethod = "rule"
	MethodExperiment DecisionMethod = "experiment"
	MethodManual     DecisionMethod = "manual"
)

// transitions is the closed allowed-transition table. A terminal status has
// no outgoing edge here: re-entry happens only through a fresh attempt upsert
// when another goal's outcome advances into the pair.
var transitions = map[Status]map[Status]bool{
	StatusSent:      {StatusResponded: true, StatusDeferred: true},
	StatusResponded: {StatusCompleted: true, StatusFailed: true, StatusDeferred: true, StatusSent: true},
	StatusDeferred:  {StatusSent: true},
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransition reports whether from → to is an allowed edge. Same-state
// transitions are allowed (a clarifying exchange keeps the record responded).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// TransitionError is a rejected state change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal history transition %s -> %s", e.From, e.To)
}

// Transition validates and returns the new status.
func Transition(from, to Status) (Status, error) {
	if !to.Valid() {
		return from, &TransitionError{From: from, To: to}
	}
	if !CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	return to, nil
}

// Record is the durable state-machine instance for one (individual, goal)
// pair.
type Record struct {
	ID           uuid.UUID `json:"id"`
	IndividualID uuid.UUID `json:"individual_id"`
	GoalID       uuid.UUID `json:"goal_id"`

	Status        Status     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"` // set only while deferred

	OutcomeID    uuid.UUID `json:"outcome_id,omitempty"` // outcome that produced the current state
	ResponseText string    `json:"response_text,omitempty"`
	Sentiment    string    `json:"sentiment,omitempty"`
	Intent       string    `json:"intent,omitempty"`

	// Scoring rationale, captured for auditability.
	PlannerReason  string         `json:"planner_reason"`
	PlannerScore   float64        `json:"planner_score"`
	DecisionMethod DecisionMethod `json:"decision_method"`
	ExperimentID   uuid.UUID      `json:"experiment_id,omitempty"`
	ExperimentArm  string         `json:"experiment_arm,omitempty"`

	NeedsReview bool   `json:"needs_review"` // set when no configured outcome matched
	MessageRef  string `json:"message_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the record still blocks re-selection of its goal.
func (r *Record) Active() bool {
	return !r.Status.Terminal()
}

// RetryDue reports whether a deferred record is due at now.
func (r *Record) RetryDue(now time.Time) bool {
	return r.Status == StatusDeferred && r.NextAttemptAt != nil && !r.NextAttemptAt.After(now)
}
