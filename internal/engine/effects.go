package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/hermes"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
)

// Publisher is the slice of the bus client the executor needs.
type Publisher interface {
	Publish(subject string, data any) error
}

// HistoryUpdate is the single-record mutation the executor hands to the
// store after resolving a response.
type HistoryUpdate struct {
	RecordID      uuid.UUID
	Status        history.Status
	OutcomeID     uuid.UUID
	NextAttemptAt *time.Time
	NeedsReview   bool
	ResponseText  string
	Sentiment     string
	Intent        string
}

// HistoryApplier persists a resolution onto a history record.
type HistoryApplier interface {
	ApplyResolution(ctx context.Context, upd HistoryUpdate) error
}

// Executor applies the effect list produced by Resolve. Keeping this apart
// from the resolver keeps the resolver pure and unit-testable.
type Executor struct {
	History HistoryApplier
	Bus     Publisher
	Clock   func() time.Time
	Logger  *slog.Logger
}

func NewExecutor(h HistoryApplier, bus Publisher, logger *slog.Logger) *Executor {
	return &Executor{History: h, Bus: bus, Clock: func() time.Time { return time.Now().UTC() }, Logger: logger}
}

// Apply validates the state transition, persists the new record state, and
// emits the side effects. It returns the goal to advance to, if any; the
// caller re-runs selection for it immediately.
func (e *Executor) Apply(ctx context.Context, rec *history.Record, resp ClassifiedResponse, res Resolution) (advanceTo uuid.UUID, err error) {
	from := rec.Status
	// A real reply moves the record through responded before the outcome
	// status lands; a timeout defers straight from sent.
	if from == history.StatusSent && !resp.Timeout {
		from, err = history.Transition(from, history.StatusResponded)
		if err != nil {
			return uuid.Nil, err
		}
	}
	status, err := history.Transition(from, res.Status)
	if err != nil {
		return uuid.Nil, err
	}

	upd := HistoryUpdate{
		RecordID:     rec.ID,
		Status:       status,
		ResponseText: resp.Text,
		Sentiment:    resp.Sentiment,
		Intent:       resp.Intent,
	}
	if res.Outcome != nil {
		upd.OutcomeID = res.Outcome.ID
	}

	for _, eff := range res.Effects {
		switch ef := eff.(type) {
		case WriteInsight:
			if err := e.Bus.Publish(hermes.SubjectInsightRecord, hermes.InsightRecord{
				IndividualID: rec.IndividualID.String(),
				Key:          ef.Key,
				Value:        ef.Value,
			}); err != nil {
				e.Logger.Error("failed to publish insight", "individual_id", rec.IndividualID, "key", ef.Key, "error", err)
			}
		case SendReply:
			e.publishReply(rec, ef.Template, false)
		case AskClarify:
			e.publishReply(rec, ef.Template, true)
		case ScheduleRetry:
			at := e.Clock().AddDate(0, 0, ef.Days)
			upd.NextAttemptAt = &at
			upd.NeedsReview = ef.NeedsReview
		case AdvanceGoal:
			advanceTo = ef.NextGoalID
		case EmitTerminal:
			// terminal status already carried by upd.Status
		}
	}

	if err := e.History.ApplyResolution(ctx, upd); err != nil {
		return uuid.Nil, fmt.Errorf("apply resolution: %w", err)
	}

	e.Logger.Info("outcome applied",
		"individual_id", rec.IndividualID,
		"goal_id", rec.GoalID,
		"status", string(status),
		"matched", res.Matched,
	)
	return advanceTo, nil
}

func (e *Executor) publishReply(rec *history.Record, template string, clarify bool) {
	if err := e.Bus.Publish(hermes.SubjectOutreachReply, hermes.OutreachReply{
		IndividualID: rec.IndividualID.String(),
		GoalID:       rec.GoalID.String(),
		Template:     template,
		Clarify:      clarify,
	}); err != nil {
		e.Logger.Error("failed to publish reply", "individual_id", rec.IndividualID, "error", err)
	}
}
