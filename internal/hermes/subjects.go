package hermes

// Bus vocabulary for the outreach loop. Cyrano decides; the courier delivers;
// sibyl classifies replies; the almanac owns individual insights.
const (
	// SubjectOutreachSelected carries a selection decision to the courier.
	SubjectOutreachSelected = "swarm.cyrano.outreach.selected"
	// SubjectOutreachReply carries an outcome's reply or clarifying question.
	SubjectOutreachReply = "swarm.cyrano.outreach.reply"
	// SubjectInsightRecord routes an insight write back to the almanac.
	SubjectInsightRecord = "swarm.almanac.insight.record"
	// SubjectOutreachDelivered is the courier's delivery confirmation; it
	// feeds recordAttempt.
	SubjectOutreachDelivered = "swarm.courier.outreach.delivered"
	// SubjectResponseClassified is sibyl's classified-reply event (including
	// the synthetic timeout signal).
	SubjectResponseClassified = "swarm.sibyl.response.classified"
	// SubjectRegistered announces cyrano on the bus at startup.
	SubjectRegistered = "swarm.agent.cyrano.registered"
)

// InsightRecord is the payload on SubjectInsightRecord.
type InsightRecord struct {
	IndividualID string `json:"individual_id"`
	Key          string `json:"key"`
	Value        string `json:"value"`
}

// OutreachReply is the payload on SubjectOutreachReply.
type OutreachReply struct {
	IndividualID string `json:"individual_id"`
	GoalID       string `json:"goal_id"`
	Template     string `json:"template"`
	Clarify      bool   `json:"clarify"`
}

// DeliveredEvent is the courier's confirmation payload. It echoes the
// decision fields so the attempt record can capture the full rationale.
type DeliveredEvent struct {
	IndividualID  string  `json:"individual_id"`
	GoalID        string  `json:"goal_id"`
	MessageRef    string  `json:"message_ref"`
	Rationale     string  `json:"rationale"`
	Score         float64 `json:"score"`
	Method        string  `json:"decision_method"`
	ExperimentID  string  `json:"experiment_id,omitempty"`
	ExperimentArm string  `json:"experiment_arm,omitempty"`
}

// ClassifiedEvent is sibyl's payload on SubjectResponseClassified.
type ClassifiedEvent struct {
	IndividualID string `json:"individual_id"`
	GoalID       string `json:"goal_id"`
	Text         string `json:"text,omitempty"`
	Sentiment    string `json:"sentiment,omitempty"`
	Intent       string `json:"intent,omitempty"`
	ActionID     string `json:"action_id,omitempty"`
	Timeout      bool   `json:"timeout,omitempty"`
	Rating       *int   `json:"rating,omitempty"`
}
