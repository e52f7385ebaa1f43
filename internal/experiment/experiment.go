// Package experiment implements A/B comparison between competing outreach
// strategies: arm assignment, result counters, and conclusion statistics.
package experiment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the experiment lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Arm identifies one side of the comparison.
type Arm string

const (
	ArmControl Arm = "control"
	ArmVariant Arm = "variant"
)

// ArmStats are the running counters for one arm.
type ArmStats struct {
	Attempts    int     `json:"attempts"`
	Positive    int     `json:"positive"`
	Negative    int     `json:"negative"`
	RatingSum   float64 `json:"rating_sum"`
	RatingCount int     `json:"rating_count"`
}

// PositiveRate is positive outcomes over attempts.
func (a ArmStats) PositiveRate() float64 {
	if a.Attempts == 0 {
		return 0
	}
	return float64(a.Positive) / float64(a.Attempts)
}

// AverageRating is the mean of supplied ratings, 0 when none were given.
func (a ArmStats) AverageRating() float64 {
	if a.RatingCount == 0 {
		return 0
	}
	return a.RatingSum / float64(a.RatingCount)
}

// Experiment is one A/B comparison. At most one experiment may be running at
// a time; the store enforces that inside a transaction.
type Experiment struct {
	ID         uuid.UUID `json:"id"`
	Hypothesis string    `json:"hypothesis"`

	// Index-paired goal sets: control[i] is compared against variant[i].
	ControlGoals []uuid.UUID `json:"control_goals"`
	VariantGoals []uuid.UUID `json:"variant_goals"`
	Split        float64     `json:"split"` // fraction of traffic sent to the variant

	Status  Status   `json:"status"`
	Control ArmStats `json:"control"`
	Variant ArmStats `json:"variant"`

	Winner      string  `json:"winner,omitempty"`
	ZScore      float64 `json:"z_score,omitempty"`
	Significant bool    `json:"significant,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ConcludedAt *time.Time `json:"concluded_at,omitempty"`
}

// Stats returns the counters for the given arm.
func (e *Experiment) Stats(arm Arm) ArmStats {
	if arm == ArmVariant {
		return e.Variant
	}
	return e.Control
}

// PairFor returns the paired goal in the other arm for a goal covered by this
// experiment, and which arm the goal itself belongs to.
func (e *Experiment) PairFor(goalID uuid.UUID) (paired uuid.UUID, arm Arm, ok bool) {
	for i, id := range e.ControlGoals {
		if id == goalID {
			if i < len(e.VariantGoals) {
				return e.VariantGoals[i], ArmControl, true
			}
			return uuid.Nil, ArmControl, true
		}
	}
	for i, id := range e.VariantGoals {
		if id == goalID {
			if i < len(e.ControlGoals) {
				return e.ControlGoals[i], ArmVariant, true
			}
			return uuid.Nil, ArmVariant, true
		}
	}
	return uuid.Nil, "", false
}
