package processor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/MikeSquared-Agency/cyrano/internal/experiment"
	"github.com/MikeSquared-Agency/cyrano/internal/hermes"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/MikeSquared-Agency/cyrano/internal/store"
	"github.com/google/uuid"
)

type armResult struct {
	id     uuid.UUID
	arm    experiment.Arm
	rating *int
}

type fakeStore struct {
	goals      map[uuid.UUID]*catalog.Goal
	states     map[uuid.UUID]engine.PairState
	pairs      map[uuid.UUID]*history.Record // keyed by goal id; tests use one individual
	running    *experiment.Experiment
	attempts   []store.Attempt
	updates    []engine.HistoryUpdate
	armResults []armResult
	armErr     error
}

func (f *fakeStore) ListGoals(_ context.Context, onlyEnabled bool) ([]*catalog.Goal, error) {
	var out []*catalog.Goal
	for _, g := range f.goals {
		if onlyEnabled && !g.Enabled {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) GetGoal(_ context.Context, id uuid.UUID) (*catalog.Goal, error) {
	g, ok := f.goals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) PairStates(context.Context, uuid.UUID) (map[uuid.UUID]engine.PairState, error) {
	if f.states == nil {
		return map[uuid.UUID]engine.PairState{}, nil
	}
	return f.states, nil
}

func (f *fakeStore) GetPair(_ context.Context, _, goalID uuid.UUID) (*history.Record, error) {
	rec, ok := f.pairs[goalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) RecordAttempt(_ context.Context, a store.Attempt) (*history.Record, error) {
	f.attempts = append(f.attempts, a)
	return &history.Record{
		ID:             uuid.New(),
		IndividualID:   a.IndividualID,
		GoalID:         a.GoalID,
		Status:         history.StatusSent,
		AttemptCount:   len(f.attempts),
		DecisionMethod: a.Method,
	}, nil
}

func (f *fakeStore) ApplyResolution(_ context.Context, upd engine.HistoryUpdate) error {
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeStore) RunningExperiment(context.Context) (*experiment.Experiment, error) {
	return f.running, nil
}

func (f *fakeStore) RecordArmResult(_ context.Context, id uuid.UUID, arm experiment.Arm, rating *int) error {
	if f.armErr != nil {
		return f.armErr
	}
	f.armResults = append(f.armResults, armResult{id: id, arm: arm, rating: rating})
	return nil
}

type fakeBus struct {
	published []publishedMsg
}

type publishedMsg struct {
	subject string
	data    any
}

func (f *fakeBus) Publish(subject string, data any) error {
	f.published = append(f.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (f *fakeBus) bySubject(subject string) []publishedMsg {
	var out []publishedMsg
	for _, m := range f.published {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type fakeAlmanac struct {
	snap *engine.Snapshot
}

func (f *fakeAlmanac) Snapshot(context.Context, uuid.UUID) (*engine.Snapshot, error) {
	return f.snap, nil
}

func newTestProcessor(s *fakeStore, snap *engine.Snapshot) (*Processor, *fakeBus) {
	bus := &fakeBus{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := experiment.New(rand.NewSource(1))
	p := New(s, &fakeAlmanac{snap: snap}, bus, ctrl, Config{DefaultDeferDays: 2, MaxAttempts: 5}, logger)
	return p, bus
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandleDelivered(t *testing.T) {
	individualID := uuid.New()
	goalID := uuid.New()
	fs := &fakeStore{}
	p, _ := newTestProcessor(fs, nil)

	p.HandleDelivered("", mustJSON(t, hermes.DeliveredEvent{
		IndividualID: individualID.String(),
		GoalID:       goalID.String(),
		MessageRef:   "msg-42",
		Rationale:    "linked=true",
		Score:        80,
	}))

	if len(fs.attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(fs.attempts))
	}
	a := fs.attempts[0]
	if a.IndividualID != individualID || a.GoalID != goalID {
		t.Errorf("attempt pair = (%s, %s)", a.IndividualID, a.GoalID)
	}
	if a.Method != history.MethodRule {
		t.Errorf("method = %q, want rule default", a.Method)
	}
	if a.MessageRef != "msg-42" {
		t.Errorf("message_ref = %q", a.MessageRef)
	}
}

func TestHandleDeliveredBadPayload(t *testing.T) {
	fs := &fakeStore{}
	p, _ := newTestProcessor(fs, nil)

	p.HandleDelivered("", []byte("not json"))
	p.HandleDelivered("", mustJSON(t, hermes.DeliveredEvent{IndividualID: "nope", GoalID: uuid.New().String()}))

	if len(fs.attempts) != 0 {
		t.Fatalf("attempts = %d, want 0", len(fs.attempts))
	}
}

func TestHandleResponseClassifiedSuccess(t *testing.T) {
	individualID := uuid.New()
	goal := &catalog.Goal{
		ID:         uuid.New(),
		Name:       "link-account",
		InsightKey: "account_linked",
		Template:   "Want to link your account?",
		Enabled:    true,
		Outcomes: []catalog.Outcome{
			{ID: uuid.New(), TriggerType: catalog.TriggerKeyword, TriggerValue: "done", OutcomeType: catalog.OutcomeSuccess, ReplyTemplate: "Great!", Priority: 10},
		},
	}
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal},
		pairs: map[uuid.UUID]*history.Record{
			goal.ID: {ID: uuid.New(), IndividualID: individualID, GoalID: goal.ID, Status: history.StatusSent},
		},
	}
	p, bus := newTestProcessor(fs, nil)

	p.HandleResponseClassified("", mustJSON(t, hermes.ClassifiedEvent{
		IndividualID: individualID.String(),
		GoalID:       goal.ID.String(),
		Text:         "all done, thanks",
		Sentiment:    "positive",
	}))

	if len(fs.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(fs.updates))
	}
	if fs.updates[0].Status != history.StatusCompleted {
		t.Errorf("status = %q, want completed", fs.updates[0].Status)
	}
	if got := bus.bySubject(hermes.SubjectInsightRecord); len(got) != 1 {
		t.Errorf("insight publishes = %d, want 1", len(got))
	}
	if got := bus.bySubject(hermes.SubjectOutreachReply); len(got) != 1 {
		t.Errorf("reply publishes = %d, want 1", len(got))
	}
}

func TestHandleResponseClassifiedTerminalIgnored(t *testing.T) {
	individualID := uuid.New()
	goal := &catalog.Goal{ID: uuid.New(), Name: "g", Template: "t", Enabled: true}
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal},
		pairs: map[uuid.UUID]*history.Record{
			goal.ID: {ID: uuid.New(), IndividualID: individualID, GoalID: goal.ID, Status: history.StatusCompleted},
		},
	}
	p, bus := newTestProcessor(fs, nil)

	p.HandleResponseClassified("", mustJSON(t, hermes.ClassifiedEvent{
		IndividualID: individualID.String(),
		GoalID:       goal.ID.String(),
		Text:         "hello again",
	}))

	if len(fs.updates) != 0 {
		t.Errorf("updates = %d, want 0 on terminal pair", len(fs.updates))
	}
	if len(bus.published) != 0 {
		t.Errorf("published = %d, want 0", len(bus.published))
	}
}

func TestHandleResponseClassifiedAdvance(t *testing.T) {
	individualID := uuid.New()
	next := &catalog.Goal{ID: uuid.New(), Name: "join-group", Template: "Try this group?", BasePriority: 40, Enabled: true}
	goal := &catalog.Goal{
		ID: uuid.New(), Name: "link-account", Template: "t", Enabled: true,
		Outcomes: []catalog.Outcome{
			{ID: uuid.New(), TriggerType: catalog.TriggerIntent, TriggerValue: "agree", OutcomeType: catalog.OutcomeAdvance, NextGoalID: next.ID, Priority: 5},
		},
	}
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal, next.ID: next},
		pairs: map[uuid.UUID]*history.Record{
			goal.ID: {ID: uuid.New(), IndividualID: individualID, GoalID: goal.ID, Status: history.StatusSent},
		},
	}
	p, bus := newTestProcessor(fs, nil)

	p.HandleResponseClassified("", mustJSON(t, hermes.ClassifiedEvent{
		IndividualID: individualID.String(),
		GoalID:       goal.ID.String(),
		Text:         "sure",
		Intent:       "agree",
	}))

	selected := bus.bySubject(hermes.SubjectOutreachSelected)
	if len(selected) != 1 {
		t.Fatalf("selected publishes = %d, want 1 for advance bypass", len(selected))
	}
	dec, ok := selected[0].data.(*engine.Decision)
	if !ok {
		t.Fatalf("published %T, want *engine.Decision", selected[0].data)
	}
	if dec.GoalID != next.ID {
		t.Errorf("advance dispatched goal %s, want %s", dec.GoalID, next.ID)
	}
}

func TestHandleResponseClassifiedAdvanceDisabledTarget(t *testing.T) {
	individualID := uuid.New()
	next := &catalog.Goal{ID: uuid.New(), Name: "join-group", Template: "t", Enabled: false}
	goal := &catalog.Goal{
		ID: uuid.New(), Name: "link-account", Template: "t", Enabled: true,
		Outcomes: []catalog.Outcome{
			{ID: uuid.New(), TriggerType: catalog.TriggerIntent, TriggerValue: "agree", OutcomeType: catalog.OutcomeAdvance, NextGoalID: next.ID},
		},
	}
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal, next.ID: next},
		pairs: map[uuid.UUID]*history.Record{
			goal.ID: {ID: uuid.New(), IndividualID: individualID, GoalID: goal.ID, Status: history.StatusSent},
		},
	}
	p, bus := newTestProcessor(fs, nil)

	p.HandleResponseClassified("", mustJSON(t, hermes.ClassifiedEvent{
		IndividualID: individualID.String(),
		GoalID:       goal.ID.String(),
		Intent:       "agree",
		Text:         "ok",
	}))

	if got := bus.bySubject(hermes.SubjectOutreachSelected); len(got) != 0 {
		t.Errorf("selected publishes = %d, want 0 for disabled target", len(got))
	}
}

func TestExperimentResultRecordedOnResolution(t *testing.T) {
	individualID := uuid.New()
	expID := uuid.New()
	goal := &catalog.Goal{
		ID: uuid.New(), Name: "g", Template: "t", Enabled: true,
		Outcomes: []catalog.Outcome{
			{ID: uuid.New(), TriggerType: catalog.TriggerKeyword, TriggerValue: "yes", OutcomeType: catalog.OutcomeSuccess},
		},
	}
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal},
		pairs: map[uuid.UUID]*history.Record{
			goal.ID: {
				ID: uuid.New(), IndividualID: individualID, GoalID: goal.ID,
				Status:         history.StatusSent,
				DecisionMethod: history.MethodExperiment,
				ExperimentID:   expID,
				ExperimentArm:  string(experiment.ArmVariant),
			},
		},
	}
	p, _ := newTestProcessor(fs, nil)

	p.HandleResponseClassified("", mustJSON(t, hermes.ClassifiedEvent{
		IndividualID: individualID.String(),
		GoalID:       goal.ID.String(),
		Text:         "yes please",
	}))

	if len(fs.armResults) != 1 {
		t.Fatalf("arm results = %d, want 1", len(fs.armResults))
	}
	r := fs.armResults[0]
	if r.id != expID || r.arm != experiment.ArmVariant {
		t.Errorf("arm result = %+v", r)
	}
	// Terminal success without an explicit rating stands in as positive.
	if r.rating == nil || *r.rating != 5 {
		t.Errorf("rating = %v, want synthetic 5", r.rating)
	}
}

func TestExperimentResultSkippedForRuleDecisions(t *testing.T) {
	individualID := uuid.New()
	goal := &catalog.Goal{
		ID: uuid.New(), Name: "g", Template: "t", Enabled: true,
		Outcomes: []catalog.Outcome{
			{ID: uuid.New(), TriggerType: catalog.TriggerKeyword, TriggerValue: "yes", OutcomeType: catalog.OutcomeSuccess},
		},
	}
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal},
		pairs: map[uuid.UUID]*history.Record{
			goal.ID: {ID: uuid.New(), IndividualID: individualID, GoalID: goal.ID, Status: history.StatusSent, DecisionMethod: history.MethodRule},
		},
	}
	p, _ := newTestProcessor(fs, nil)

	p.HandleResponseClassified("", mustJSON(t, hermes.ClassifiedEvent{
		IndividualID: individualID.String(),
		GoalID:       goal.ID.String(),
		Text:         "yes",
	}))

	if len(fs.armResults) != 0 {
		t.Errorf("arm results = %d, want 0 for rule decisions", len(fs.armResults))
	}
}

func TestRunSelection(t *testing.T) {
	individualID := uuid.New()
	low := &catalog.Goal{ID: uuid.New(), Name: "low", Template: "lo", BasePriority: 10, Enabled: true}
	high := &catalog.Goal{ID: uuid.New(), Name: "high", Template: "hi", BasePriority: 90, Enabled: true}
	fs := &fakeStore{goals: map[uuid.UUID]*catalog.Goal{low.ID: low, high.ID: high}}
	p, bus := newTestProcessor(fs, &engine.Snapshot{IndividualID: individualID})

	dec, err := p.RunSelection(context.Background(), individualID)
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}
	if dec == nil {
		t.Fatal("expected a decision")
	}
	if dec.GoalID != high.ID {
		t.Errorf("selected %q, want high-priority goal", dec.GoalName)
	}
	if got := bus.bySubject(hermes.SubjectOutreachSelected); len(got) != 1 {
		t.Errorf("selected publishes = %d, want 1", len(got))
	}
}

func TestRunSelectionNothingEligible(t *testing.T) {
	individualID := uuid.New()
	gated := &catalog.Goal{ID: uuid.New(), Name: "g", Template: "t", RequiresLinked: true, Enabled: true}
	fs := &fakeStore{goals: map[uuid.UUID]*catalog.Goal{gated.ID: gated}}
	p, bus := newTestProcessor(fs, &engine.Snapshot{IndividualID: individualID, Linked: false})

	dec, err := p.RunSelection(context.Background(), individualID)
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}
	if dec != nil {
		t.Errorf("decision = %+v, want nil", dec)
	}
	if len(bus.published) != 0 {
		t.Errorf("published = %d, want 0", len(bus.published))
	}
}

func TestRunSelectionBlockedByOptOut(t *testing.T) {
	individualID := uuid.New()
	goal := &catalog.Goal{ID: uuid.New(), Name: "g", Template: "t", Enabled: true}
	fs := &fakeStore{goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal}}
	p, bus := newTestProcessor(fs, &engine.Snapshot{
		IndividualID: individualID,
		Insights:     map[string]string{OptOutInsight: "true"},
	})

	dec, err := p.RunSelection(context.Background(), individualID)
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}
	if dec != nil {
		t.Errorf("decision = %+v, want nil when opted out", dec)
	}
	if len(bus.published) != 0 {
		t.Errorf("published = %d, want 0", len(bus.published))
	}
}

func TestRunSelectionBlockedByAttemptCap(t *testing.T) {
	individualID := uuid.New()
	goal := &catalog.Goal{ID: uuid.New(), Name: "g", Template: "t", Enabled: true}
	past := nowMinusDays(3)
	fs := &fakeStore{
		goals: map[uuid.UUID]*catalog.Goal{goal.ID: goal},
		states: map[uuid.UUID]engine.PairState{
			goal.ID: {Status: history.StatusDeferred, NextAttemptAt: &past, AttemptCount: 5},
		},
	}
	p, bus := newTestProcessor(fs, &engine.Snapshot{IndividualID: individualID})

	dec, err := p.RunSelection(context.Background(), individualID)
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}
	if dec != nil {
		t.Errorf("decision = %+v, want nil at attempt cap", dec)
	}
	if len(bus.published) != 0 {
		t.Errorf("published = %d, want 0", len(bus.published))
	}
}

func TestRunSelectionExperimentSubstitution(t *testing.T) {
	individualID := uuid.New()
	control := &catalog.Goal{ID: uuid.New(), Name: "control", Template: "c", BasePriority: 50, Enabled: true}
	variant := &catalog.Goal{ID: uuid.New(), Name: "variant", Template: "v", BasePriority: 50, Enabled: true}
	exp := &experiment.Experiment{
		ID:           uuid.New(),
		Status:       experiment.StatusRunning,
		ControlGoals: []uuid.UUID{control.ID},
		VariantGoals: []uuid.UUID{variant.ID},
		Split:        1.0, // always variant
	}
	fs := &fakeStore{
		goals:   map[uuid.UUID]*catalog.Goal{control.ID: control, variant.ID: variant},
		running: exp,
		// variant pair already in flight so only control is eligible
		states: map[uuid.UUID]engine.PairState{variant.ID: {Status: history.StatusSent}},
	}
	p, bus := newTestProcessor(fs, &engine.Snapshot{IndividualID: individualID})

	dec, err := p.RunSelection(context.Background(), individualID)
	if err != nil {
		t.Fatalf("RunSelection: %v", err)
	}
	if dec == nil {
		t.Fatal("expected a decision")
	}
	if dec.Method != history.MethodExperiment {
		t.Errorf("method = %q, want experiment", dec.Method)
	}
	if dec.ExperimentID != exp.ID {
		t.Errorf("experiment_id = %s, want %s", dec.ExperimentID, exp.ID)
	}
	if dec.GoalID != variant.ID {
		t.Errorf("selected %q, want variant substitution", dec.GoalName)
	}
	if got := bus.bySubject(hermes.SubjectOutreachSelected); len(got) != 1 {
		t.Errorf("selected publishes = %d, want 1", len(got))
	}
}

func nowMinusDays(d int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -d)
}
