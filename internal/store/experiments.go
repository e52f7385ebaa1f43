package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/cyrano/internal/experiment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateExperiment writes a new experiment in draft.
func (s *Store) CreateExperiment(ctx context.Context, e *experiment.Experiment) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = experiment.StatusDraft
	switch {
	case e.Split == 0:
		e.Split = 0.5 // unset, take the even split
	case e.Split < 0 || e.Split >= 1:
		return fmt.Errorf("split %v: %w", e.Split, ErrInvalidSplit)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO outreach_experiments
			(id, hypothesis, control_goals, variant_goals, split, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'draft', now())`,
		e.ID, e.Hypothesis, uuidStrings(e.ControlGoals), uuidStrings(e.VariantGoals), e.Split,
	)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// experimentStartLock keys the advisory lock that serializes StartExperiment
// transactions.
const experimentStartLock = int64(74002)

// StartExperiment activates a draft or paused experiment. At most one
// experiment may be running; the check and the update share a transaction,
// serialized by an advisory lock so two concurrent starts cannot both win.
func (s *Store) StartExperiment(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The running-row SELECT below locks nothing when no experiment is
	// running, so without this lock two concurrent starts of different
	// drafts could both pass the check and both commit as running.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, experimentStartLock); err != nil {
		return fmt.Errorf("acquire start lock: %w", err)
	}

	var runningID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM outreach_experiments WHERE status = 'running' FOR UPDATE`).Scan(&runningID)
	switch {
	case err == nil:
		if runningID == id {
			return nil // already running, idempotent
		}
		return fmt.Errorf("experiment %s is running: %w", runningID, ErrExperimentRunning)
	case errors.Is(err, pgx.ErrNoRows):
		// nothing running, proceed
	default:
		return fmt.Errorf("check running: %w", err)
	}

	status, err := lockExperimentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return fmt.Errorf("experiment %s: %w", id, ErrExperimentConcluded)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE outreach_experiments SET status = 'running', started_at = coalesce(started_at, now())
		WHERE id = $1`, id); err != nil {
		return fmt.Errorf("start experiment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PauseExperiment suspends a running experiment. In-flight selections that
// already captured the experiment method are not retroactively changed.
func (s *Store) PauseExperiment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE outreach_experiments SET status = 'paused' WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return fmt.Errorf("pause experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetExperiment(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("experiment %s: %w", id, ErrExperimentNotRunning)
	}
	return nil
}

// RecordArmResult increments one arm's counters: always the attempt counter,
// plus positive/negative when a rating classifies as such. The running-status
// check shares the transaction with the increment so results cannot land on a
// concluded experiment.
func (s *Store) RecordArmResult(ctx context.Context, id uuid.UUID, arm experiment.Arm, rating *int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := lockExperimentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return fmt.Errorf("experiment %s: %w", id, ErrExperimentConcluded)
	}
	if status != experiment.StatusRunning {
		return fmt.Errorf("experiment %s: %w", id, ErrExperimentNotRunning)
	}

	col := "control"
	if arm == experiment.ArmVariant {
		col = "variant"
	}

	positive, negative, ratingSum, ratingCount := 0, 0, 0.0, 0
	if rating != nil {
		switch experiment.Classify(*rating) {
		case 1:
			positive = 1
		case -1:
			negative = 1
		}
		ratingSum = float64(*rating)
		ratingCount = 1
	}

	q := fmt.Sprintf(`
		UPDATE outreach_experiments SET
			%[1]s_attempts = %[1]s_attempts + 1,
			%[1]s_positive = %[1]s_positive + $2,
			%[1]s_negative = %[1]s_negative + $3,
			%[1]s_rating_sum = %[1]s_rating_sum + $4,
			%[1]s_rating_count = %[1]s_rating_count + $5
		WHERE id = $1`, col)
	if _, err := tx.Exec(ctx, q, id, positive, negative, ratingSum, ratingCount); err != nil {
		return fmt.Errorf("record arm result: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ConcludeExperiment computes the final stats and completes the experiment.
// Terminal and non-reversible.
func (s *Store) ConcludeExperiment(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error) {
	return s.finish(ctx, id, experiment.StatusCompleted)
}

// CancelExperiment abandons an experiment without declaring a winner.
func (s *Store) CancelExperiment(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error) {
	return s.finish(ctx, id, experiment.StatusCancelled)
}

func (s *Store) finish(ctx context.Context, id uuid.UUID, final experiment.Status) (*experiment.Experiment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := lockExperimentStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrExperimentConcluded)
	}

	e, err := scanExperiment(tx.QueryRow(ctx, experimentSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	winner, z, significant := "", 0.0, false
	if final == experiment.StatusCompleted {
		sum := experiment.Summarize(e.Control, e.Variant)
		winner, z, significant = sum.Winner, sum.ZScore, sum.Significant
	}

	if _, err := tx.Exec(ctx, `
		UPDATE outreach_experiments SET
			status = $2, winner = $3, z_score = $4, significant = $5, concluded_at = now()
		WHERE id = $1`,
		id, string(final), winner, z, significant,
	); err != nil {
		return nil, fmt.Errorf("conclude experiment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetExperiment(ctx, id)
}

// RunningExperiment returns the currently running experiment, or nil.
func (s *Store) RunningExperiment(ctx context.Context) (*experiment.Experiment, error) {
	e, err := scanExperiment(s.pool.QueryRow(ctx, experimentSelect+` WHERE status = 'running'`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// GetExperiment fetches one experiment.
func (s *Store) GetExperiment(ctx context.Context, id uuid.UUID) (*experiment.Experiment, error) {
	e, err := scanExperiment(s.pool.QueryRow(ctx, experimentSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return e, nil
}

// ListExperiments returns all experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.pool.Query(ctx, experimentSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []*experiment.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func lockExperimentStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID) (experiment.Status, error) {
	var status string
	err := tx.QueryRow(ctx, `
		SELECT status FROM outreach_experiments WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("experiment %s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("lock experiment: %w", err)
	}
	return experiment.Status(status), nil
}

const experimentSelect = `
	SELECT id, hypothesis, control_goals, variant_goals, split, status,
	       control_attempts, control_positive, control_negative, control_rating_sum, control_rating_count,
	       variant_attempts, variant_positive, variant_negative, variant_rating_sum, variant_rating_count,
	       winner, z_score, significant, created_at, started_at, concluded_at
	FROM outreach_experiments`

func scanExperiment(row pgx.Row) (*experiment.Experiment, error) {
	var e experiment.Experiment
	var control, variant []string
	err := row.Scan(
		&e.ID, &e.Hypothesis, &control, &variant, &e.Split, &e.Status,
		&e.Control.Attempts, &e.Control.Positive, &e.Control.Negative, &e.Control.RatingSum, &e.Control.RatingCount,
		&e.Variant.Attempts, &e.Variant.Positive, &e.Variant.Negative, &e.Variant.RatingSum, &e.Variant.RatingCount,
		&e.Winner, &e.ZScore, &e.Significant, &e.CreatedAt, &e.StartedAt, &e.ConcludedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.ControlGoals, err = parseUUIDs(control); err != nil {
		return nil, fmt.Errorf("control goals: %w", err)
	}
	if e.VariantGoals, err = parseUUIDs(variant); err != nil {
		return nil, fmt.Errorf("variant goals: %w", err)
	}
	return &e, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
