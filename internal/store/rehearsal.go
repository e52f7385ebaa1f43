package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/cyrano/internal/rehearsal"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateSession writes a new rehearsal session. Implements
// rehearsal.SessionStore.
func (s *Store) CreateSession(ctx context.Context, sess *rehearsal.Session) error {
	var currentGoal *uuid.UUID
	if sess.CurrentGoalID != uuid.Nil {
		currentGoal = &sess.CurrentGoalID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rehearsal_sessions
			(id, operator, persona, current_goal_id, transcript, sim_state,
			 status, notes, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		sess.ID, sess.Operator, sess.Persona, currentGoal, sess.Transcript, sess.Sim,
		string(sess.Status), sess.Notes, sess.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches one rehearsal session.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*rehearsal.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, sessionSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return sess, nil
}

// UpdateSession persists the session's transcript, pointer, state, and
// lifecycle fields.
func (s *Store) UpdateSession(ctx context.Context, sess *rehearsal.Session) error {
	var currentGoal *uuid.UUID
	if sess.CurrentGoalID != uuid.Nil {
		currentGoal = &sess.CurrentGoalID
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE rehearsal_sessions SET
			persona = $2, current_goal_id = $3, transcript = $4, sim_state = $5,
			status = $6, notes = $7, summary = $8, closed_at = $9, updated_at = now()
		WHERE id = $1`,
		sess.ID, sess.Persona, currentGoal, sess.Transcript, sess.Sim,
		string(sess.Status), sess.Notes, sess.Summary, sess.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

// ListSessions returns rehearsal sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*rehearsal.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, sessionSelect+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*rehearsal.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const sessionSelect = `
	SELECT id, operator, persona, current_goal_id, transcript, sim_state,
	       status, notes, summary, created_at, closed_at
	FROM rehearsal_sessions`

func scanSession(row pgx.Row) (*rehearsal.Session, error) {
	var sess rehearsal.Session
	var currentGoal uuid.NullUUID
	err := row.Scan(
		&sess.ID, &sess.Operator, &sess.Persona, &currentGoal, &sess.Transcript, &sess.Sim,
		&sess.Status, &sess.Notes, &sess.Summary, &sess.CreatedAt, &sess.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if currentGoal.Valid {
		sess.CurrentGoalID = currentGoal.UUID
	}
	return &sess, nil
}
