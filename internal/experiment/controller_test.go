package experiment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

// 1000 seeded draws at a 50% split must land within statistical tolerance of
// 0.50 (3 sigma ≈ 0.047 for n=1000).
func TestAssignArm_SplitFraction(t *testing.T) {
	ctrl := New(rand.NewSource(42))

	const n = 1000
	variants := 0
	for i := 0; i < n; i++ {
		if ctrl.AssignArm(0.5) == ArmVariant {
			variants++
		}
	}

	fraction := float64(variants) / float64(n)
	if math.Abs(fraction-0.5) > 0.05 {
		t.Errorf("variant fraction %f outside tolerance of 0.50", fraction)
	}
}

func TestAssignArm_Extremes(t *testing.T) {
	ctrl := New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		if ctrl.AssignArm(0) == ArmVariant {
			t.Fatal("split 0 must never assign the variant")
		}
	}
	for i := 0; i < 100; i++ {
		if ctrl.AssignArm(1) == ArmControl {
			t.Fatal("split 1 must never assign the control")
		}
	}
}

func TestAssignArm_Deterministic(t *testing.T) {
	a := New(rand.NewSource(99))
	b := New(rand.NewSource(99))
	for i := 0; i < 50; i++ {
		if a.AssignArm(0.3) != b.AssignArm(0.3) {
			t.Fatal("same seed must produce the same assignment sequence")
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		rating int
		want   int
	}{
		{1, -1},
		{2, -1},
		{3, 0}, // neutral, not counted
		{4, 1},
		{5, 1},
	}
	for _, tt := range tests {
		if got := Classify(tt.rating); got != tt.want {
			t.Errorf("Classify(%d) = %d, want %d", tt.rating, got, tt.want)
		}
	}
}

func TestArmStats(t *testing.T) {
	a := ArmStats{Attempts: 40, Positive: 10, RatingSum: 84, RatingCount: 20}
	if got := a.PositiveRate(); got != 0.25 {
		t.Errorf("PositiveRate = %f, want 0.25", got)
	}
	if got := a.AverageRating(); got != 4.2 {
		t.Errorf("AverageRating = %f, want 4.2", got)
	}

	var empty ArmStats
	if empty.PositiveRate() != 0 || empty.AverageRating() != 0 {
		t.Error("empty stats must report zero rates")
	}
}

func TestSummarize(t *testing.T) {
	t.Run("clear variant win is significant", func(t *testing.T) {
		control := ArmStats{Attempts: 500, Positive: 100}
		variant := ArmStats{Attempts: 500, Positive: 200}
		s := Summarize(control, variant)

		if s.Winner != "variant" {
			t.Errorf("expected variant winner, got %s", s.Winner)
		}
		if !s.Significant {
			t.Errorf("expected significance, z = %f", s.ZScore)
		}
		if s.ZScore <= 0 {
			t.Errorf("expected positive z for a variant win, got %f", s.ZScore)
		}
	})

	t.Run("tiny difference is not significant", func(t *testing.T) {
		control := ArmStats{Attempts: 50, Positive: 10}
		variant := ArmStats{Attempts: 50, Positive: 11}
		s := Summarize(control, variant)

		if s.Significant {
			t.Errorf("expected no significance, z = %f", s.ZScore)
		}
	})

	t.Run("equal rates tie", func(t *testing.T) {
		stats := ArmStats{Attempts: 100, Positive: 30}
		s := Summarize(stats, stats)
		if s.Winner != "tie" {
			t.Errorf("expected tie, got %s", s.Winner)
		}
		if s.ZScore != 0 {
			t.Errorf("expected z 0, got %f", s.ZScore)
		}
	})

	t.Run("empty arms do not divide by zero", func(t *testing.T) {
		s := Summarize(ArmStats{}, ArmStats{})
		if s.ZScore != 0 || s.Significant {
			t.Errorf("expected inert summary, got %+v", s)
		}
	})
}

func TestPairFor(t *testing.T) {
	c1, c2, v1, v2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	exp := &Experiment{
		ControlGoals: []uuid.UUID{c1, c2},
		VariantGoals: []uuid.UUID{v1, v2},
	}

	paired, arm, ok := exp.PairFor(c2)
	if !ok || arm != ArmControl || paired != v2 {
		t.Errorf("PairFor(control) = %v %v %v", paired, arm, ok)
	}

	paired, arm, ok = exp.PairFor(v1)
	if !ok || arm != ArmVariant || paired != c1 {
		t.Errorf("PairFor(variant) = %v %v %v", paired, arm, ok)
	}

	if _, _, ok := exp.PairFor(uuid.New()); ok {
		t.Error("uncovered goal must not be paired")
	}
}
