// Package processor wires the decision engine to the swarm bus: delivery
// confirmations feed attempt records, classified replies drive outcome
// resolution, and selection runs publish dispatch decisions for courier.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/experiment"
	"github.com/MikeSquared-Agency/cyrano/internal/hermes"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/MikeSquared-Agency/cyrano/internal/store"
	"github.com/google/uuid"
)

// Store is the slice of the durable layer the processor uses.
type Store interface {
	ListGoals(ctx context.Context, onlyEnabled bool) ([]*catalog.Goal, error)
	GetGoal(ctx context.Context, id uuid.UUID) (*catalog.Goal, error)
	PairStates(ctx context.Context, individualID uuid.UUID) (map[uuid.UUID]engine.PairState, error)
	GetPair(ctx context.Context, individualID, goalID uuid.UUID) (*history.Record, error)
	RecordAttempt(ctx context.Context, a store.Attempt) (*history.Record, error)
	ApplyResolution(ctx context.Context, upd engine.HistoryUpdate) error
	RunningExperiment(ctx context.Context) (*experiment.Experiment, error)
	RecordArmResult(ctx context.Context, id uuid.UUID, arm experiment.Arm, rating *int) error
}

// Bus is the slice of the hermes client the processor uses.
type Bus interface {
	Publish(subject string, data any) error
}

// Config carries the processor's policy knobs.
type Config struct {
	DefaultDeferDays int // fallback retry window when no outcome matches
	MaxAttempts      int // dispatch gate: attempts per pair
}

// Processor orchestrates cyrano's outreach pipeline.
type Processor struct {
	store    Store
	almanac  engine.SnapshotProvider
	bus      Bus
	executor *engine.Executor
	ctrl     *experiment.Controller
	cfg      Config
	logger   *slog.Logger
}

func New(s Store, almanac engine.SnapshotProvider, bus Bus, ctrl *experiment.Controller, cfg Config, logger *slog.Logger) *Processor {
	if cfg.DefaultDeferDays <= 0 {
		cfg.DefaultDeferDays = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Processor{
		store:    s,
		almanac:  almanac,
		bus:      bus,
		executor: engine.NewExecutor(s, bus, logger),
		ctrl:     ctrl,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleDelivered is the NATS handler for courier's delivery confirmation.
// This is the callback that records the attempt; the upsert is atomic, so
// concurrent confirmations for the same pair merge instead of racing.
func (p *Processor) HandleDelivered(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.DeliveredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse delivered event", "error", err)
		return
	}
	individualID, goalID, ok := p.parsePair(evt.IndividualID, evt.GoalID)
	if !ok {
		return
	}

	attempt := store.Attempt{
		IndividualID:  individualID,
		GoalID:        goalID,
		Reason:        evt.Rationale,
		Score:         evt.Score,
		Method:        history.DecisionMethod(evt.Method),
		ExperimentArm: evt.ExperimentArm,
		MessageRef:    evt.MessageRef,
	}
	if attempt.Method == "" {
		attempt.Method = history.MethodRule
	}
	if evt.ExperimentID != "" {
		if expID, err := uuid.Parse(evt.ExperimentID); err == nil {
			attempt.ExperimentID = expID
		}
	}

	rec, err := p.store.RecordAttempt(ctx, attempt)
	if err != nil {
		p.logger.Error("failed to record attempt",
			"individual_id", individualID, "goal_id", goalID, "error", err)
		return
	}
	p.logger.Info("attempt recorded",
		"individual_id", individualID,
		"goal_id", goalID,
		"attempt", rec.AttemptCount,
		"method", string(rec.DecisionMethod),
	)
}

// HandleResponseClassified is the NATS handler for sibyl's classified replies
// (including the synthetic timeout signal). It resolves the outcome, applies
// the effects, feeds experiment counters, and runs the advance bypass.
func (p *Processor) HandleResponseClassified(subject string, data []byte) {
	ctx := context.Background()

	var evt hermes.ClassifiedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse classified event", "error", err)
		return
	}
	individualID, goalID, ok := p.parsePair(evt.IndividualID, evt.GoalID)
	if !ok {
		return
	}

	rec, err := p.store.GetPair(ctx, individualID, goalID)
	if err != nil {
		p.logger.Warn("response for unknown pair",
			"individual_id", individualID, "goal_id", goalID, "error", err)
		return
	}
	if rec.Status.Terminal() {
		p.logger.Warn("response after terminal state ignored",
			"individual_id", individualID, "goal_id", goalID, "status", string(rec.Status))
		return
	}

	goal, err := p.store.GetGoal(ctx, goalID)
	if err != nil {
		p.logger.Error("goal lookup failed", "goal_id", goalID, "error", err)
		return
	}

	resp := engine.ClassifiedResponse{
		Text:      evt.Text,
		Sentiment: evt.Sentiment,
		Intent:    evt.Intent,
		ActionID:  evt.ActionID,
		Timeout:   evt.Timeout,
		Rating:    evt.Rating,
	}
	res := engine.Resolve(goal, resp, p.cfg.DefaultDeferDays)
	if !res.Matched {
		p.logger.Warn("no outcome matched, deferring for review",
			"individual_id", individualID, "goal_id", goalID,
			"defer_days", p.cfg.DefaultDeferDays)
	}

	advanceTo, err := p.executor.Apply(ctx, rec, resp, res)
	if err != nil {
		p.logger.Error("failed to apply outcome",
			"individual_id", individualID, "goal_id", goalID, "error", err)
		return
	}

	p.recordExperimentResult(ctx, rec, res, resp.Rating)

	if advanceTo != uuid.Nil {
		p.advance(ctx, individualID, goal, advanceTo)
	}
}

// recordExperimentResult feeds the arm counters for experiment-attributed
// records once their outcome resolves.
func (p *Processor) recordExperimentResult(ctx context.Context, rec *history.Record, res engine.Resolution, rating *int) {
	if rec.DecisionMethod != history.MethodExperiment || rec.ExperimentID == uuid.Nil {
		return
	}
	// Without an explicit rating, terminal branches stand in for one.
	if rating == nil && res.Outcome != nil {
		switch res.Outcome.OutcomeType {
		case catalog.OutcomeSuccess, catalog.OutcomeAdvance:
			r := 5
			rating = &r
		case catalog.OutcomeFailure:
			r := 1
			rating = &r
		}
	}
	err := p.store.RecordArmResult(ctx, rec.ExperimentID, experiment.Arm(rec.ExperimentArm), rating)
	if err != nil {
		if errors.Is(err, store.ErrExperimentConcluded) || errors.Is(err, store.ErrExperimentNotRunning) {
			p.logger.Warn("experiment result rejected", "experiment_id", rec.ExperimentID, "error", err)
			return
		}
		p.logger.Error("failed to record experiment result", "experiment_id", rec.ExperimentID, "error", err)
	}
}

// advance dispatches the advanced-to goal on the same pass, bypassing its
// defer window: the individual just engaged.
func (p *Processor) advance(ctx context.Context, individualID uuid.UUID, from *catalog.Goal, nextGoalID uuid.UUID) {
	next, err := p.store.GetGoal(ctx, nextGoalID)
	if err != nil {
		p.logger.Error("advance target lookup failed", "goal_id", nextGoalID, "error", err)
		return
	}
	if !next.Enabled {
		p.logger.Warn("advance target disabled, skipping", "goal_id", nextGoalID)
		return
	}

	dec := &engine.Decision{
		IndividualID: individualID,
		GoalID:       next.ID,
		GoalName:     next.Name,
		Template:     next.Template,
		Rationale:    "advanced from " + from.Name,
		Score:        float64(next.BasePriority),
		Method:       history.MethodRule,
	}
	p.dispatch(dec)
}

// RunSelection evaluates the full catalog for one individual and publishes
// the selected outreach step, if any. Called on retry sweeps and whenever an
// individual surfaces as interesting.
func (p *Processor) RunSelection(ctx context.Context, individualID uuid.UUID) (*engine.Decision, error) {
	snap, err := p.almanac.Snapshot(ctx, individualID)
	if err != nil {
		return nil, err
	}

	goals, err := p.store.ListGoals(ctx, true)
	if err != nil {
		return nil, err
	}
	states, err := p.store.PairStates(ctx, individualID)
	if err != nil {
		return nil, err
	}

	cands := engine.Eligible(snap, goals, states, p.executor.Clock())
	if len(cands) == 0 {
		return nil, nil
	}

	var picker engine.ArmPicker
	if exp, err := p.store.RunningExperiment(ctx); err != nil {
		p.logger.Error("running experiment lookup failed", "error", err)
	} else if exp != nil {
		byID := make(map[uuid.UUID]*catalog.Goal, len(goals))
		for _, g := range goals {
			byID[g.ID] = g
		}
		picker = &experiment.Picker{Exp: exp, Ctrl: p.ctrl, Goals: byID}
	}

	dec, ok := engine.Select(individualID, cands, picker)
	if !ok {
		return nil, nil
	}

	if gate := CheckGates(snap, dec, states, p.cfg.MaxAttempts); !gate.Allowed {
		p.logger.Info("selection blocked by gate",
			"individual_id", individualID, "goal_id", dec.GoalID, "reason", gate.Reason)
		return nil, nil
	}

	p.dispatch(dec)
	return dec, nil
}

func (p *Processor) dispatch(dec *engine.Decision) {
	if err := p.bus.Publish(hermes.SubjectOutreachSelected, dec); err != nil {
		p.logger.Error("failed to publish selection",
			"individual_id", dec.IndividualID, "goal_id", dec.GoalID, "error", err)
		return
	}
	p.logger.Info("outreach selected",
		"individual_id", dec.IndividualID,
		"goal", dec.GoalName,
		"method", string(dec.Method),
		"rationale", dec.Rationale,
	)
}

func (p *Processor) parsePair(individual, goal string) (uuid.UUID, uuid.UUID, bool) {
	individualID, err := uuid.Parse(individual)
	if err != nil {
		p.logger.Error("invalid individual id", "individual_id", individual, "error", err)
		return uuid.Nil, uuid.Nil, false
	}
	goalID, err := uuid.Parse(goal)
	if err != nil {
		p.logger.Error("invalid goal id", "goal_id", goal, "error", err)
		return uuid.Nil, uuid.Nil, false
	}
	return individualID, goalID, true
}
