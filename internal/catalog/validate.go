package catalog

import (
	"fmt"

	"github.com/google/uuid"
)

// Validation reason codes. Configuration errors are rejected at write-time so
// the evaluator never has to cope with a malformed catalog.
const (
	CodeMissingName       = "missing_name"
	CodeMissingTemplate   = "missing_template"
	CodeBadPriority       = "bad_priority"
	CodeUnknownTrigger    = "unknown_trigger"
	CodeUnknownOutcome    = "unknown_outcome"
	CodeMissingTrigger    = "missing_trigger_value"
	CodeMissingDeferDays  = "missing_defer_days"
	CodeMissingNextGoal   = "missing_next_goal"
	CodeUnknownNextGoal   = "unknown_next_goal"
	CodeMissingInsightKey = "missing_insight_key"
	CodeMissingClarify    = "missing_clarify_template"
	CodeEmptyInsightKey   = "empty_insight_key"
)

// ValidationError is a rejected write with a machine-readable reason code.
type ValidationError struct {
	Code   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%s): %s: %s", e.Code, e.Field, e.Reason)
}

func invalid(code, field, reason string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Reason: reason}
}

var validTriggers = map[TriggerType]bool{
	TriggerKeyword:   true,
	TriggerSentiment: true,
	TriggerIntent:    true,
	TriggerTimeout:   true,
	TriggerAction:    true,
}

var validOutcomes = map[OutcomeType]bool{
	OutcomeSuccess: true,
	OutcomeFailure: true,
	OutcomeAdvance: true,
	OutcomeDefer:   true,
	OutcomeClarify: true,
}

// Validate checks a goal and its outcomes before they are written. knownGoals
// is the set of goal IDs that exist (or will exist, for self-references); it
// is consulted for advance targets.
func (g *Goal) Validate(knownGoals map[uuid.UUID]bool) error {
	if g.Name == "" {
		return invalid(CodeMissingName, "name", "goal name is required")
	}
	if g.Template == "" {
		return invalid(CodeMissingTemplate, "template", "goal message template is required")
	}
	if g.BasePriority < 0 {
		return invalid(CodeBadPriority, "base_priority", "base priority must be >= 0")
	}
	for k := range g.RequiresInsights {
		if k == "" {
			return invalid(CodeEmptyInsightKey, "requires_insights", "insight key must not be empty")
		}
	}
	for k := range g.ExcludesInsights {
		if k == "" {
			return invalid(CodeEmptyInsightKey, "excludes_insights", "insight key must not be empty")
		}
	}
	for i := range g.Outcomes {
		if err := g.Outcomes[i].Validate(g, knownGoals); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single outcome against its owning goal and the known goal
// set.
func (o *Outcome) Validate(owner *Goal, knownGoals map[uuid.UUID]bool) error {
	if !validTriggers[o.TriggerType] {
		return invalid(CodeUnknownTrigger, "trigger_type", fmt.Sprintf("unrecognized trigger type %q", o.TriggerType))
	}
	if !validOutcomes[o.OutcomeType] {
		return invalid(CodeUnknownOutcome, "outcome_type", fmt.Sprintf("unrecognized outcome type %q", o.OutcomeType))
	}
	// Timeout triggers match the synthetic no-reply signal; every other
	// trigger needs a value to match against.
	if o.TriggerType != TriggerTimeout && o.TriggerValue == "" {
		return invalid(CodeMissingTrigger, "trigger_value", fmt.Sprintf("trigger type %q requires a value", o.TriggerType))
	}
	switch o.OutcomeType {
	case OutcomeDefer:
		if o.DeferDays <= 0 {
			return invalid(CodeMissingDeferDays, "defer_days", "defer outcome requires defer_days > 0")
		}
	case OutcomeAdvance:
		if o.NextGoalID == uuid.Nil {
			return invalid(CodeMissingNextGoal, "next_goal_id", "advance outcome requires a next goal")
		}
		if !knownGoals[o.NextGoalID] {
			return invalid(CodeUnknownNextGoal, "next_goal_id", fmt.Sprintf("next goal %s does not exist", o.NextGoalID))
		}
	case OutcomeClarify:
		if o.ReplyTemplate == "" && owner.ClarifyTemplate == "" {
			return invalid(CodeMissingClarify, "reply_template", "clarify outcome requires a reply template or a goal clarify template")
		}
	}
	if o.InsightValue != "" && o.InsightKey == "" {
		return invalid(CodeMissingInsightKey, "insight_key", "insight value set without a key")
	}
	return nil
}
