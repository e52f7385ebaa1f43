package catalog

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType classifies what kind of response signal an outcome reacts to.
type TriggerType string

const (
	TriggerKeyword   TriggerType = "keyword"   // case-insensitive substring of the reply text
	TriggerSentiment TriggerType = "sentiment" // NLU sentiment label
	TriggerIntent    TriggerType = "intent"    // NLU intent label
	TriggerTimeout   TriggerType = "timeout"   // no reply within the delivery window
	TriggerAction    TriggerType = "action"    // structured action id (e.g. button click)
)

// OutcomeType is the branch taken when an outcome's trigger matches.
type OutcomeType string

const (
	OutcomeSuccess OutcomeType = "success" // terminal, goal achieved
	OutcomeFailure OutcomeType = "failure" // terminal, goal abandoned
	OutcomeAdvance OutcomeType = "advance" // complete this goal, move to next_goal immediately
	OutcomeDefer   OutcomeType = "defer"   // retry after defer_days
	OutcomeClarify OutcomeType = "clarify" // send the clarifying follow-up, keep waiting
)

// Goal is a configured outreach objective. Goals are never deleted, only
// disabled, so history rows always have a goal to point at.
type Goal struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"` // e.g. onboarding, engagement, leadership
	Description string    `json:"description"`
	InsightKey  string    `json:"insight_key"` // insight expected to be set on success

	// Eligibility predicates. All configured predicates must pass.
	RequiresLinked        bool              `json:"requires_linked"`
	RequiresOrgTypes      []string          `json:"requires_org_types"` // empty = any
	RequiresMinEngagement float64           `json:"requires_min_engagement"`
	RequiresInsights      map[string]string `json:"requires_insights"`
	ExcludesInsights      map[string]string `json:"excludes_insights"`

	BasePriority    int    `json:"base_priority"` // higher = preferred
	Template        string `json:"template"`
	ClarifyTemplate string `json:"clarify_template,omitempty"`
	Enabled         bool   `json:"enabled"`

	Outcomes []Outcome `json:"outcomes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome is a trigger-to-branch rule owned by exactly one goal. Outcomes are
// evaluated in descending Priority order; the first structural match wins.
type Outcome struct {
	ID           uuid.UUID   `json:"id"`
	GoalID       uuid.UUID   `json:"goal_id"`
	TriggerType  TriggerType `json:"trigger_type"`
	TriggerValue string      `json:"trigger_value"`
	OutcomeType  OutcomeType `json:"outcome_type"`

	ReplyTemplate string    `json:"reply_template,omitempty"`
	NextGoalID    uuid.UUID `json:"next_goal_id,omitempty"` // uuid.Nil = none
	DeferDays     int       `json:"defer_days,omitempty"`
	InsightKey    string    `json:"insight_key,omitempty"`
	InsightValue  string    `json:"insight_value,omitempty"`

	Priority int `json:"priority"`
}

// HasInsight reports whether this outcome records an insight when it fires.
func (o Outcome) HasInsight() bool {
	return o.InsightKey != ""
}
