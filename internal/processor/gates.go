package processor

import (
	"fmt"

	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/google/uuid"
)

// OptOutInsight is the almanac key that suppresses all outreach for an
// individual.
const OptOutInsight = "outreach_opt_out"

// GateResult reports whether a selection may be dispatched and, when blocked,
// why.
type GateResult struct {
	Allowed bool
	Reason  string
}

// CheckGates runs the dispatch gates over a selection. Gates sit after
// selection on purpose: a blocked top choice blocks the pass rather than
// silently sliding to the runner-up, so the block is visible in the logs.
// Disabled goals never reach here; selection only sees the enabled catalog
// and the advance path re-checks its target.
func CheckGates(snap *engine.Snapshot, dec *engine.Decision, states map[uuid.UUID]engine.PairState, maxAttempts int) GateResult {
	if snap.Insights[OptOutInsight] == "true" {
		return GateResult{Reason: "individual opted out of outreach"}
	}
	if st, ok := states[dec.GoalID]; ok && st.AttemptCount >= maxAttempts {
		return GateResult{Reason: fmt.Sprintf("attempt cap reached (%d/%d)", st.AttemptCount, maxAttempts)}
	}
	return GateResult{Allowed: true}
}
