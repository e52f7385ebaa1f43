// Package scheduler owns the retry sweep: deferred pairs whose window has
// elapsed get a fresh selection pass. Retry is the only time-based trigger in
// the system; everything else is event-driven off the bus.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
)

// Store is the slice of the durable layer the scheduler reads.
type Store interface {
	DueForRetry(ctx context.Context, now time.Time, limit int) ([]history.Record, error)
}

// Selector re-evaluates one individual; satisfied by the processor.
type Selector interface {
	RunSelection(ctx context.Context, individualID uuid.UUID) (*engine.Decision, error)
}

type Scheduler struct {
	store    Store
	selector Selector
	interval time.Duration
	batch    int
	logger   *slog.Logger
	clock    func() time.Time

	// A pair stays deferred until the courier confirms delivery, so a due
	// pair whose selection already went out would be picked up again on the
	// next sweep if confirmation is slow. recent tracks individuals we
	// published for within the current interval so they are skipped.
	recent map[uuid.UUID]time.Time
}

func New(s Store, sel Selector, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		store:    s,
		selector: sel,
		interval: interval,
		batch:    100,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
		recent:   make(map[uuid.UUID]time.Time),
	}
}

// Run sweeps on the configured interval until the context is cancelled. One
// sweep runs immediately on start so a restart doesn't push due retries back
// a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("retry sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("retry sweep complete", "individuals", n)
	}
}

// Sweep runs one pass: collect due retries, then re-run selection once per
// individual. Selection decides what actually goes out; a due pair only makes
// its individual worth another look, it does not force its own goal.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.clock()
	due, err := s.store.DueForRetry(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	for id, at := range s.recent {
		if now.Sub(at) >= s.interval {
			delete(s.recent, id)
		}
	}

	seen := make(map[uuid.UUID]bool)
	for _, rec := range due {
		if seen[rec.IndividualID] {
			continue
		}
		seen[rec.IndividualID] = true

		if at, ok := s.recent[rec.IndividualID]; ok {
			s.logger.Debug("selection still awaiting delivery confirmation, skipping",
				"individual_id", rec.IndividualID, "published_at", at)
			continue
		}

		dec, err := s.selector.RunSelection(ctx, rec.IndividualID)
		if err != nil {
			s.logger.Error("retry selection failed",
				"individual_id", rec.IndividualID, "error", err)
			continue
		}
		if dec != nil {
			s.recent[rec.IndividualID] = now
		}
	}
	return len(seen), nil
}
