// Package rehearsal runs the decision engine against a hand-authored persona
// so operators can walk a goal flow end to end before it reaches a real
// person. It reuses the production eligibility/selection/resolution code
// paths, parameterized only by the data source: no production history is
// written and nothing is dispatched.
package rehearsal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
)

// ErrSessionClosed rejects turns against a completed or abandoned session.
var ErrSessionClosed = errors.New("rehearsal session already closed")

// SessionStatus is the rehearsal session lifecycle.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Turn is one entry in the append-only transcript.
type Turn struct {
	Role     string    `json:"role"` // "cyrano" or "persona"
	GoalID   uuid.UUID `json:"goal_id,omitempty"`
	GoalName string    `json:"goal_name,omitempty"`
	Text     string    `json:"text"`
	Outcome  string    `json:"outcome,omitempty"` // outcome type that fired, for cyrano turns
	At       time.Time `json:"at"`
}

// PairSim is the in-sandbox stand-in for a history record's eligibility
// state.
type PairSim struct {
	Status        history.Status `json:"status"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
}

// Session is one sandboxed run.
type Session struct {
	ID            uuid.UUID             `json:"id"`
	Operator      string                `json:"operator"`
	Persona       engine.Snapshot       `json:"persona"`
	CurrentGoalID uuid.UUID             `json:"current_goal_id,omitempty"`
	Transcript    []Turn                `json:"transcript"`
	Sim           map[uuid.UUID]PairSim `json:"sim"`
	Status        SessionStatus         `json:"status"`
	Notes         string                `json:"notes,omitempty"`
	Summary       string                `json:"summary,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	ClosedAt      *time.Time            `json:"closed_at,omitempty"`
}

// SessionStore persists rehearsal sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	UpdateSession(ctx context.Context, sess *Session) error
}

// GoalSource supplies the catalog; satisfied by the store.
type GoalSource interface {
	ListGoals(ctx context.Context, onlyEnabled bool) ([]*catalog.Goal, error)
}

// Sandbox drives rehearsal sessions.
type Sandbox struct {
	sessions         SessionStore
	goals            GoalSource
	defaultDeferDays int
	clock            func() time.Time
}

func New(sessions SessionStore, goals GoalSource, defaultDeferDays int) *Sandbox {
	return &Sandbox{
		sessions:         sessions,
		goals:            goals,
		defaultDeferDays: defaultDeferDays,
		clock:            func() time.Time { return time.Now().UTC() },
	}
}

// Start creates a session and runs the first selection against the persona.
func (sb *Sandbox) Start(ctx context.Context, operator string, persona engine.Snapshot) (*Session, error) {
	if persona.IndividualID == uuid.Nil {
		persona.IndividualID = uuid.New() // synthetic identity for the run
	}
	sess := &Session{
		ID:        uuid.New(),
		Operator:  operator,
		Persona:   persona,
		Sim:       make(map[uuid.UUID]PairSim),
		Status:    SessionActive,
		CreatedAt: sb.clock(),
	}

	if _, err := sb.selectNext(ctx, sess); err != nil {
		return nil, err
	}
	if err := sb.sessions.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Advance appends the simulated reply, resolves it with the production
// resolver, updates the simulated pair state, and moves to the next goal
// where the outcome allows.
func (sb *Sandbox) Advance(ctx context.Context, sessionID uuid.UUID, resp engine.ClassifiedResponse) (*Session, error) {
	sess, err := sb.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionActive {
		return nil, fmt.Errorf("session %s is %s: %w", sess.ID, sess.Status, ErrSessionClosed)
	}
	if sess.CurrentGoalID == uuid.Nil {
		return nil, fmt.Errorf("session %s has no goal in play", sess.ID)
	}

	goal, err := sb.findGoal(ctx, sess.CurrentGoalID)
	if err != nil {
		return nil, err
	}

	now := sb.clock()
	if !resp.Timeout {
		sess.Transcript = append(sess.Transcript, Turn{Role: "persona", Text: resp.Text, At: now})
	}

	res := engine.Resolve(goal, resp, sb.defaultDeferDays)
	sb.applySim(sess, goal, res, now)

	for _, eff := range res.Effects {
		switch ef := eff.(type) {
		case engine.SendReply:
			sess.Transcript = append(sess.Transcript, Turn{
				Role: "cyrano", GoalID: goal.ID, GoalName: goal.Name,
				Text: ef.Template, Outcome: outcomeLabel(res), At: now,
			})
		case engine.AskClarify:
			sess.Transcript = append(sess.Transcript, Turn{
				Role: "cyrano", GoalID: goal.ID, GoalName: goal.Name,
				Text: ef.Template, Outcome: string(catalog.OutcomeClarify), At: now,
			})
		case engine.AdvanceGoal:
			// Same bypass as production: the advanced-to goal goes out on
			// this pass.
			if err := sb.advanceTo(ctx, sess, ef.NextGoalID); err != nil {
				return nil, err
			}
		}
	}

	// A clarifying exchange keeps the current goal in play; any other branch
	// hands control back to selection.
	if res.Status != history.StatusResponded && sess.CurrentGoalID == goal.ID {
		sess.CurrentGoalID = uuid.Nil
		if _, err := sb.selectNext(ctx, sess); err != nil {
			return nil, err
		}
	}

	if err := sb.sessions.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Complete closes the session with the operator's notes.
func (sb *Sandbox) Complete(ctx context.Context, sessionID uuid.UUID, notes, summary string) (*Session, error) {
	return sb.close(ctx, sessionID, SessionCompleted, notes, summary)
}

// Abandon closes the session without an outcome summary.
func (sb *Sandbox) Abandon(ctx context.Context, sessionID uuid.UUID, notes string) (*Session, error) {
	return sb.close(ctx, sessionID, SessionAbandoned, notes, "")
}

func (sb *Sandbox) close(ctx context.Context, sessionID uuid.UUID, status SessionStatus, notes, summary string) (*Session, error) {
	sess, err := sb.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionActive {
		return nil, fmt.Errorf("session %s is %s: %w", sess.ID, sess.Status, ErrSessionClosed)
	}
	now := sb.clock()
	sess.Status = status
	sess.Notes = notes
	sess.Summary = summary
	sess.ClosedAt = &now
	if err := sb.sessions.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// selectNext runs production selection against the persona and simulated
// history, recording the selected message as a cyrano turn.
func (sb *Sandbox) selectNext(ctx context.Context, sess *Session) (*engine.Decision, error) {
	goals, err := sb.goals.ListGoals(ctx, true)
	if err != nil {
		return nil, err
	}
	now := sb.clock()
	states := make(map[uuid.UUID]engine.PairState, len(sess.Sim))
	for id, sim := range sess.Sim {
		states[id] = engine.PairState{Status: sim.Status, NextAttemptAt: sim.NextAttemptAt}
	}

	cands := engine.Eligible(&sess.Persona, goals, states, now)
	dec, ok := engine.Select(sess.Persona.IndividualID, cands, nil)
	if !ok {
		return nil, nil // nothing eligible: a legitimate rehearsal finding
	}

	sess.CurrentGoalID = dec.GoalID
	sess.Sim[dec.GoalID] = PairSim{Status: history.StatusSent}
	sess.Transcript = append(sess.Transcript, Turn{
		Role: "cyrano", GoalID: dec.GoalID, GoalName: dec.GoalName,
		Text: dec.Template, At: now,
	})
	return dec, nil
}

// applySim mirrors the executor's history mutation onto the in-memory state.
func (sb *Sandbox) applySim(sess *Session, goal *catalog.Goal, res engine.Resolution, now time.Time) {
	sim := PairSim{Status: res.Status}
	for _, eff := range res.Effects {
		if retry, ok := eff.(engine.ScheduleRetry); ok {
			at := now.AddDate(0, 0, retry.Days)
			sim.NextAttemptAt = &at
		}
	}
	sess.Sim[goal.ID] = sim

	// Insight writes feed back into the persona the way the almanac would.
	for _, eff := range res.Effects {
		if wi, ok := eff.(engine.WriteInsight); ok {
			if sess.Persona.Insights == nil {
				sess.Persona.Insights = make(map[string]string)
			}
			sess.Persona.Insights[wi.Key] = wi.Value
		}
	}
}

func (sb *Sandbox) advanceTo(ctx context.Context, sess *Session, goalID uuid.UUID) error {
	goal, err := sb.findGoal(ctx, goalID)
	if err != nil {
		return err
	}
	sess.CurrentGoalID = goal.ID
	sess.Sim[goal.ID] = PairSim{Status: history.StatusSent}
	sess.Transcript = append(sess.Transcript, Turn{
		Role: "cyrano", GoalID: goal.ID, GoalName: goal.Name,
		Text: goal.Template, At: sb.clock(),
	})
	return nil
}

func (sb *Sandbox) findGoal(ctx context.Context, id uuid.UUID) (*catalog.Goal, error) {
	goals, err := sb.goals.ListGoals(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, g := range goals {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("goal %s not in catalog", id)
}

func outcomeLabel(res engine.Resolution) string {
	if res.Outcome == nil {
		return "no_match"
	}
	return string(res.Outcome.OutcomeType)
}
