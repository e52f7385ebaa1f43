// Package engine implements the outreach decision engine: eligibility
// evaluation, priority selection, and outcome resolution. Everything here is
// pure policy. Persistence and dispatch live with the caller, so the same
// code paths serve production and rehearsal runs.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the capability/insight feature vector for one individual, as
// served by the almanac. The engine treats it as read-only; insight writes
// flow back through the insight-record effect, never by mutating this.
type Snapshot struct {
	IndividualID uuid.UUID `json:"individual_id"`
	Linked       bool      `json:"linked"` // identity-linked to a known account
	OrgType      string    `json:"org_type"`
	Engagement   float64   `json:"engagement"`
	GroupCount   int       `json:"group_count"`
	EventCount   int       `json:"event_count"`
	LastActiveAt time.Time `json:"last_active_at"`

	Insights map[string]string `json:"insights"`
}

// SnapshotProvider fetches the current snapshot for an individual.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, individualID uuid.UUID) (*Snapshot, error)
}

// ClassifiedResponse is the externally-classified reply to an outreach
// message. Keyword outcomes match against Text; sentiment/intent outcomes
// match the labels; Timeout is the synthetic no-reply-within-window signal.
type ClassifiedResponse struct {
	Text      string `json:"text,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Intent    string `json:"intent,omitempty"`
	ActionID  string `json:"action_id,omitempty"`
	Timeout   bool   `json:"timeout,omitempty"`
	Rating    *int   `json:"rating,omitempty"` // optional 1-5 satisfaction rating
}
