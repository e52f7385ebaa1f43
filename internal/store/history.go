package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Attempt carries the selection rationale into recordAttempt.
type Attempt struct {
	IndividualID  uuid.UUID
	GoalID        uuid.UUID
	Reason        string
	Score         float64
	Method        history.DecisionMethod
	ExperimentID  uuid.UUID // uuid.Nil when Method != experiment
	ExperimentArm string
	MessageRef    string
}

// RecordAttempt is the race-safe upsert at the heart of the state machine:
// one row per (individual, goal) pair, attempt_count incremented in place.
// Concurrent schedulers both land on the same row; the loser of the race just
// observes the merged counter.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) (*history.Record, error) {
	var expID *uuid.UUID
	if a.ExperimentID != uuid.Nil {
		expID = &a.ExperimentID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO outreach_history
			(id, individual_id, goal_id, status, attempt_count, last_attempt_at,
			 planner_reason, planner_score, decision_method, experiment_id, experiment_arm,
			 message_ref, needs_review, created_at, updated_at)
		VALUES ($1, $2, $3, 'sent', 1, now(), $4, $5, $6, $7, $8, $9, false, now(), now())
		ON CONFLICT (individual_id, goal_id)
		DO UPDATE SET
			status = 'sent',
			attempt_count = outreach_history.attempt_count + 1,
			last_attempt_at = now(),
			next_attempt_at = NULL,
			outcome_id = NULL,
			response_text = '',
			sentiment = '',
			intent = '',
			planner_reason = $4,
			planner_score = $5,
			decision_method = $6,
			experiment_id = $7,
			experiment_arm = $8,
			message_ref = $9,
			needs_review = false,
			updated_at = now()
		RETURNING id, attempt_count, last_attempt_at, created_at`,
		uuid.New(), a.IndividualID, a.GoalID,
		a.Reason, a.Score, string(a.Method), expID, a.ExperimentArm, a.MessageRef,
	)

	rec := &history.Record{
		IndividualID:   a.IndividualID,
		GoalID:         a.GoalID,
		Status:         history.StatusSent,
		PlannerReason:  a.Reason,
		PlannerScore:   a.Score,
		DecisionMethod: a.Method,
		ExperimentID:   a.ExperimentID,
		ExperimentArm:  a.ExperimentArm,
		MessageRef:     a.MessageRef,
	}
	if err := row.Scan(&rec.ID, &rec.AttemptCount, &rec.LastAttemptAt, &rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return rec, nil
}

// ApplyResolution persists an outcome resolution onto a history record.
// Implements engine.HistoryApplier.
func (s *Store) ApplyResolution(ctx context.Context, upd engine.HistoryUpdate) error {
	var outcomeID *uuid.UUID
	if upd.OutcomeID != uuid.Nil {
		outcomeID = &upd.OutcomeID
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE outreach_history SET
			status = $2,
			outcome_id = $3,
			next_attempt_at = $4,
			needs_review = $5,
			response_text = $6,
			sentiment = $7,
			intent = $8,
			updated_at = now()
		WHERE id = $1`,
		upd.RecordID, string(upd.Status), outcomeID, upd.NextAttemptAt,
		upd.NeedsReview, upd.ResponseText, upd.Sentiment, upd.Intent,
	)
	if err != nil {
		return fmt.Errorf("apply resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("history record %s: %w", upd.RecordID, ErrNotFound)
	}
	return nil
}

// GetPair fetches the history record for an (individual, goal) pair.
func (s *Store) GetPair(ctx context.Context, individualID, goalID uuid.UUID) (*history.Record, error) {
	row := s.pool.QueryRow(ctx, historySelect+` WHERE individual_id = $1 AND goal_id = $2`, individualID, goalID)
	rec, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pair (%s, %s): %w", individualID, goalID, ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// PairStates returns the eligibility view of an individual's history, keyed
// by goal.
func (s *Store) PairStates(ctx context.Context, individualID uuid.UUID) (map[uuid.UUID]engine.PairState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT goal_id, status, next_attempt_at, attempt_count
		FROM outreach_history
		WHERE individual_id = $1`,
		individualID,
	)
	if err != nil {
		return nil, fmt.Errorf("pair states: %w", err)
	}
	defer rows.Close()

	states := make(map[uuid.UUID]engine.PairState)
	for rows.Next() {
		var goalID uuid.UUID
		var st engine.PairState
		if err := rows.Scan(&goalID, &st.Status, &st.NextAttemptAt, &st.AttemptCount); err != nil {
			return nil, fmt.Errorf("scan pair state: %w", err)
		}
		states[goalID] = st
	}
	return states, rows.Err()
}

// DueForRetry is the engine's sole scheduling cursor: deferred records whose
// next attempt is due.
func (s *Store) DueForRetry(ctx context.Context, now time.Time, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		historySelect+`
		WHERE status = 'deferred' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("due for retry: %w", err)
	}
	defer rows.Close()
	return collectHistory(rows)
}

// HistoryFilter narrows ListHistory. Zero values mean "any".
type HistoryFilter struct {
	IndividualID uuid.UUID
	GoalID       uuid.UUID
	Status       history.Status
	NeedsReview  bool // when true, only flagged records
	Limit        int
	Offset       int
}

// ListHistory returns history records, newest first.
func (s *Store) ListHistory(ctx context.Context, f HistoryFilter) ([]history.Record, error) {
	q := historySelect + ` WHERE true`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		q += fmt.Sprintf(" AND %s = $%d", clause, n)
	}

	if f.IndividualID != uuid.Nil {
		add("individual_id", f.IndividualID)
	}
	if f.GoalID != uuid.Nil {
		add("goal_id", f.GoalID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.NeedsReview {
		q += " AND needs_review"
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	q += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectHistory(rows)
}

const historySelect = `
	SELECT id, individual_id, goal_id, status, attempt_count, last_attempt_at, next_attempt_at,
	       outcome_id, response_text, sentiment, intent,
	       planner_reason, planner_score, decision_method, experiment_id, experiment_arm,
	       needs_review, message_ref, created_at, updated_at
	FROM outreach_history`

func scanHistory(row pgx.Row) (*history.Record, error) {
	var rec history.Record
	var outcomeID, expID uuid.NullUUID
	err := row.Scan(
		&rec.ID, &rec.IndividualID, &rec.GoalID, &rec.Status, &rec.AttemptCount,
		&rec.LastAttemptAt, &rec.NextAttemptAt,
		&outcomeID, &rec.ResponseText, &rec.Sentiment, &rec.Intent,
		&rec.PlannerReason, &rec.PlannerScore, &rec.DecisionMethod, &expID, &rec.ExperimentArm,
		&rec.NeedsReview, &rec.MessageRef, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if outcomeID.Valid {
		rec.OutcomeID = outcomeID.UUID
	}
	if expID.Valid {
		rec.ExperimentID = expID.UUID
	}
	return &rec, nil
}

func collectHistory(rows pgx.Rows) ([]history.Record, error) {
	var out []history.Record
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return out, nil
}
