// Package store is cyrano's durable layer: the goal catalog, per-pair
// outreach history, experiments, and rehearsal sessions, all in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/cyrano/internal/rehearsal"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// State-conflict and lookup errors surfaced by store operations. Callers
// branch on these with errors.Is; the API maps them to 404/409/422.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidSplit         = errors.New("experiment split must be between 0 and 1 exclusive")
	ErrExperimentRunning    = errors.New("another experiment is already running")
	ErrExperimentNotRunning = errors.New("experiment is not running")
	ErrExperimentConcluded  = errors.New("experiment already concluded")
	ErrGoalReferenced       = errors.New("goal is referenced as a next goal by an enabled goal")
	ErrSessionClosed        = rehearsal.ErrSessionClosed
)
