package engine

import (
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
)

// Decision is the selected next outreach step. The engine only decides; the
// caller hands the decision to the courier for delivery.
type Decision struct {
	IndividualID uuid.UUID              `json:"individual_id"`
	GoalID       uuid.UUID              `json:"goal_id"`
	GoalName     string                 `json:"goal_name"`
	Template     string                 `json:"template"`
	Rationale    string                 `json:"rationale"`
	Score        float64                `json:"score"`
	Method       history.DecisionMethod `json:"decision_method"`

	// Set when Method == experiment.
	ExperimentID  uuid.UUID `json:"experiment_id,omitempty"`
	ExperimentArm string    `json:"experiment_arm,omitempty"`
}

// Substitution is an experiment override for a selected goal.
type Substitution struct {
	ExperimentID uuid.UUID
	Arm          string
	GoalID       uuid.UUID
	GoalName     string
	Template     string
}

// ArmPicker lets a running experiment substitute the paired arm's goal and
// template for a selected goal. A nil ArmPicker means pure rule selection.
type ArmPicker interface {
	Substitute(goal *catalog.Goal) (Substitution, bool)
}

// Select picks exactly one goal from the eligible set, or none. Ordering is
// descending BasePriority with ties broken by ascending goal name so repeated
// runs over the same catalog are deterministic.
func Select(individualID uuid.UUID, candidates []Candidate, picker ArmPicker) (*Decision, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Goal.BasePriority != ranked[j].Goal.BasePriority {
			return ranked[i].Goal.BasePriority > ranked[j].Goal.BasePriority
		}
		return ranked[i].Goal.Name < ranked[j].Goal.Name
	})

	top := ranked[0]
	matched := append([]string(nil), top.Matched...)
	sort.Strings(matched)

	dec := &Decision{
		IndividualID: individualID,
		GoalID:       top.Goal.ID,
		GoalName:     top.Goal.Name,
		Template:     top.Goal.Template,
		Rationale:    strings.Join(matched, ", "),
		Score:        float64(top.Goal.BasePriority),
		Method:       history.MethodRule,
	}
	if dec.Rationale == "" {
		dec.Rationale = "no predicates configured"
	}

	if picker != nil {
		if sub, ok := picker.Substitute(top.Goal); ok {
			dec.Method = history.MethodExperiment
			dec.ExperimentID = sub.ExperimentID
			dec.ExperimentArm = sub.Arm
			if sub.GoalID != uuid.Nil {
				dec.GoalID = sub.GoalID
				dec.GoalName = sub.GoalName
				dec.Template = sub.Template
			}
		}
	}
	return dec, true
}
