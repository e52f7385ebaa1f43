package experiment

import (
	"math/rand"
	"testing"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/google/uuid"
)

func pickerFixture(split float64) (*Picker, *catalog.Goal, *catalog.Goal) {
	control := &catalog.Goal{ID: uuid.New(), Name: "warm-intro", Template: "control text", Enabled: true}
	variant := &catalog.Goal{ID: uuid.New(), Name: "bold-intro", Template: "variant text", Enabled: true}

	exp := &Experiment{
		ID:           uuid.New(),
		Status:       StatusRunning,
		Split:        split,
		ControlGoals: []uuid.UUID{control.ID},
		VariantGoals: []uuid.UUID{variant.ID},
	}
	p := &Picker{
		Exp:  exp,
		Ctrl: New(rand.NewSource(1)),
		Goals: map[uuid.UUID]*catalog.Goal{
			control.ID: control,
			variant.ID: variant,
		},
	}
	return p, control, variant
}

func TestPicker_VariantDrawSubstitutes(t *testing.T) {
	p, control, variant := pickerFixture(1.0) // always variant

	sub, ok := p.Substitute(control)
	if !ok {
		t.Fatal("expected the covered goal to be substituted")
	}
	if sub.Arm != string(ArmVariant) {
		t.Errorf("expected variant arm, got %s", sub.Arm)
	}
	if sub.GoalID != variant.ID || sub.Template != "variant text" {
		t.Errorf("expected the paired variant goal, got %+v", sub)
	}
}

func TestPicker_ControlDrawKeepsGoal(t *testing.T) {
	p, control, _ := pickerFixture(0.0) // always control

	sub, ok := p.Substitute(control)
	if !ok {
		t.Fatal("expected coverage")
	}
	if sub.Arm != string(ArmControl) {
		t.Errorf("expected control arm, got %s", sub.Arm)
	}
	if sub.GoalID != uuid.Nil {
		t.Error("control draw on a control goal must not substitute")
	}
}

func TestPicker_UncoveredGoal(t *testing.T) {
	p, _, _ := pickerFixture(0.5)
	if _, ok := p.Substitute(&catalog.Goal{ID: uuid.New(), Enabled: true}); ok {
		t.Error("uncovered goal must pass through untouched")
	}
}

func TestPicker_NotRunning(t *testing.T) {
	p, control, _ := pickerFixture(1.0)
	p.Exp.Status = StatusPaused
	if _, ok := p.Substitute(control); ok {
		t.Error("paused experiment must not touch selection")
	}
}

func TestPicker_DisabledPairedGoalFallsBack(t *testing.T) {
	p, control, variant := pickerFixture(1.0)
	variant.Enabled = false

	sub, ok := p.Substitute(control)
	if !ok {
		t.Fatal("expected coverage")
	}
	if sub.GoalID != uuid.Nil {
		t.Error("disabled paired goal must not be dispatched")
	}
	if sub.Arm != string(ArmControl) {
		t.Errorf("expected fallback to own arm, got %s", sub.Arm)
	}
}
