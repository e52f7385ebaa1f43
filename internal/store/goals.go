package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateGoal validates and writes a goal with its outcomes in one
// transaction. Configuration errors are rejected here, never at evaluation
// time.
func (s *Store) CreateGoal(ctx context.Context, g *catalog.Goal) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	known, err := s.knownGoalIDs(ctx)
	if err != nil {
		return err
	}
	known[g.ID] = true
	if err := g.Validate(known); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO outreach_goals
			(id, name, category, description, insight_key,
			 requires_linked, requires_org_types, requires_min_engagement,
			 requires_insights, excludes_insights,
			 base_priority, template, clarify_template, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())`,
		g.ID, g.Name, g.Category, g.Description, g.InsightKey,
		g.RequiresLinked, g.RequiresOrgTypes, g.RequiresMinEngagement,
		g.RequiresInsights, g.ExcludesInsights,
		g.BasePriority, g.Template, g.ClarifyTemplate, g.Enabled,
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}

	if err := insertOutcomes(ctx, tx, g); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateGoal rewrites a goal and replaces its outcome list. Outcome IDs that
// the caller preserves are kept, so history rows pointing at them stay
// coherent.
func (s *Store) UpdateGoal(ctx context.Context, g *catalog.Goal) error {
	known, err := s.knownGoalIDs(ctx)
	if err != nil {
		return err
	}
	if !known[g.ID] {
		return fmt.Errorf("goal %s: %w", g.ID, ErrNotFound)
	}
	if err := g.Validate(known); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE outreach_goals SET
			name = $2, category = $3, description = $4, insight_key = $5,
			requires_linked = $6, requires_org_types = $7, requires_min_engagement = $8,
			requires_insights = $9, excludes_insights = $10,
			base_priority = $11, template = $12, clarify_template = $13, enabled = $14,
			updated_at = now()
		WHERE id = $1`,
		g.ID, g.Name, g.Category, g.Description, g.InsightKey,
		g.RequiresLinked, g.RequiresOrgTypes, g.RequiresMinEngagement,
		g.RequiresInsights, g.ExcludesInsights,
		g.BasePriority, g.Template, g.ClarifyTemplate, g.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal %s: %w", g.ID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outreach_outcomes WHERE goal_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	if err := insertOutcomes(ctx, tx, g); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertOutcomes(ctx context.Context, tx pgx.Tx, g *catalog.Goal) error {
	for i := range g.Outcomes {
		o := &g.Outcomes[i]
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.GoalID = g.ID
		var nextGoal *uuid.UUID
		if o.NextGoalID != uuid.Nil {
			nextGoal = &o.NextGoalID
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO outreach_outcomes
				(id, goal_id, trigger_type, trigger_value, outcome_type,
				 reply_template, next_goal_id, defer_days, insight_key, insight_value, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			o.ID, g.ID, string(o.TriggerType), o.TriggerValue, string(o.OutcomeType),
			o.ReplyTemplate, nextGoal, o.DeferDays, o.InsightKey, o.InsightValue, o.Priority,
		)
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}
	return nil
}

// DisableGoal turns a goal off. Goals are never deleted; disabling fails if
// an enabled goal still advances into this one, since that would strand the
// flow mid-flight.
func (s *Store) DisableGoal(ctx context.Context, id uuid.UUID) error {
	var refs int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM outreach_outcomes o
		JOIN outreach_goals g ON g.id = o.goal_id
		WHERE o.next_goal_id = $1 AND g.enabled AND g.id <> $1`,
		id,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("check references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("goal %s: %w", id, ErrGoalReferenced)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE outreach_goals SET enabled = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetGoal fetches a goal with its outcomes.
func (s *Store) GetGoal(ctx context.Context, id uuid.UUID) (*catalog.Goal, error) {
	row := s.pool.QueryRow(ctx, goalSelect+` WHERE id = $1`, id)
	g, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	outcomes, err := s.outcomesFor(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	g.Outcomes = outcomes[id]
	return g, nil
}

// ListGoals returns the catalog with outcomes attached, optionally filtered
// to enabled goals.
func (s *Store) ListGoals(ctx context.Context, onlyEnabled bool) ([]*catalog.Goal, error) {
	q := goalSelect
	if onlyEnabled {
		q += ` WHERE enabled`
	}
	q += ` ORDER BY base_priority DESC, name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []*catalog.Goal
	var ids []uuid.UUID
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
		ids = append(ids, g.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	if len(ids) > 0 {
		outcomes, err := s.outcomesFor(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, g := range goals {
			g.Outcomes = outcomes[g.ID]
		}
	}
	return goals, nil
}

const goalSelect = `
	SELECT id, name, category, description, insight_key,
	       requires_linked, requires_org_types, requires_min_engagement,
	       requires_insights, excludes_insights,
	       base_priority, template, clarify_template, enabled, created_at, updated_at
	FROM outreach_goals`

func scanGoal(row pgx.Row) (*catalog.Goal, error) {
	var g catalog.Goal
	err := row.Scan(
		&g.ID, &g.Name, &g.Category, &g.Description, &g.InsightKey,
		&g.RequiresLinked, &g.RequiresOrgTypes, &g.RequiresMinEngagement,
		&g.RequiresInsights, &g.ExcludesInsights,
		&g.BasePriority, &g.Template, &g.ClarifyTemplate, &g.Enabled, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) outcomesFor(ctx context.Context, goalIDs []uuid.UUID) (map[uuid.UUID][]catalog.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, goal_id, trigger_type, trigger_value, outcome_type,
		       reply_template, next_goal_id, defer_days, insight_key, insight_value, priority
		FROM outreach_outcomes
		WHERE goal_id = ANY($1)
		ORDER BY priority DESC, id`,
		goalIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]catalog.Outcome)
	for rows.Next() {
		var o catalog.Outcome
		var nextGoal uuid.NullUUID
		err := rows.Scan(
			&o.ID, &o.GoalID, &o.TriggerType, &o.TriggerValue, &o.OutcomeType,
			&o.ReplyTemplate, &nextGoal, &o.DeferDays, &o.InsightKey, &o.InsightValue, &o.Priority,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if nextGoal.Valid {
			o.NextGoalID = nextGoal.UUID
		}
		out[o.GoalID] = append(out[o.GoalID], o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return out, nil
}

func (s *Store) knownGoalIDs(ctx context.Context) (map[uuid.UUID]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM outreach_goals`)
	if err != nil {
		return nil, fmt.Errorf("known goals: %w", err)
	}
	defer rows.Close()

	known := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan goal id: %w", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}
