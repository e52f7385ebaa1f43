package experiment

import (
	"math"
	"math/rand"
)

// Controller assigns arms and classifies results. The randomness source is
// injected so tests can run with a fixed seed.
type Controller struct {
	rng *rand.Rand
}

// New creates a controller with the given source. A nil source falls back to
// a time-seeded one.
func New(src rand.Source) *Controller {
	if src == nil {
		src = rand.NewSource(rand.Int63())
	}
	return &Controller{rng: rand.New(src)}
}

// AssignArm draws one uniform value in [0,1) and returns the variant arm iff
// the draw lands below the traffic-split fraction.
func (c *Controller) AssignArm(split float64) Arm {
	if c.rng.Float64() < split {
		return ArmVariant
	}
	return ArmControl
}

// Rating classification thresholds: >=4 positive, <=2 negative, exactly 3
// neutral and not counted.
const (
	ratingPositiveMin = 4
	ratingNegativeMax = 2
)

// Classify maps a 1-5 rating to a counter delta: +1 positive, -1 negative,
// 0 neutral.
func Classify(rating int) int {
	switch {
	case rating >= ratingPositiveMin:
		return 1
	case rating <= ratingNegativeMax:
		return -1
	default:
		return 0
	}
}

// Summary is the descriptive result of a concluded experiment. The winner is
// advisory; Significant only says the positive-rate gap clears |z| >= 1.96.
type Summary struct {
	ControlRate   float64 `json:"control_rate"`
	VariantRate   float64 `json:"variant_rate"`
	ControlRating float64 `json:"control_rating"`
	VariantRating float64 `json:"variant_rating"`
	Winner        string  `json:"winner"`
	ZScore        float64 `json:"z_score"`
	Significant   bool    `json:"significant"`
}

const significanceThreshold = 1.96 // two-sided 95%

// Summarize computes the conclusion stats from the arm counters using a
// two-proportion z-test on positive rates.
func Summarize(control, variant ArmStats) Summary {
	s := Summary{
		ControlRate:   control.PositiveRate(),
		VariantRate:   variant.PositiveRate(),
		ControlRating: control.AverageRating(),
		VariantRating: variant.AverageRating(),
	}

	switch {
	case s.VariantRate > s.ControlRate:
		s.Winner = string(ArmVariant)
	case s.ControlRate > s.VariantRate:
		s.Winner = string(ArmControl)
	default:
		s.Winner = "tie"
	}

	s.ZScore = twoProportionZ(control.Positive, control.Attempts, variant.Positive, variant.Attempts)
	s.Significant = math.Abs(s.ZScore) >= significanceThreshold
	return s
}

func twoProportionZ(x1, n1, x2, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 0
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0
	}
	return (p2 - p1) / se
}
