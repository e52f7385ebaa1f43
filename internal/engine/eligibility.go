package engine

import (
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
)

// PairState is the slice of a history record that eligibility cares about.
type PairState struct {
	Status        history.Status
	NextAttemptAt *time.Time
	AttemptCount  int
}

// Candidate is an eligible goal plus the predicates it matched, kept for the
// selection rationale.
type Candidate struct {
	Goal    *catalog.Goal
	Matched []string
}

// Eligible filters the catalog down to the goals the individual currently
// qualifies for. states is keyed by goal ID and may omit goals the individual
// has never been approached with.
func Eligible(snap *Snapshot, goals []*catalog.Goal, states map[uuid.UUID]PairState, now time.Time) []Candidate {
	var out []Candidate
	for _, g := range goals {
		if !g.Enabled {
			continue
		}
		matched, ok := evaluate(snap, g)
		if !ok {
			continue
		}
		if st, exists := states[g.ID]; exists {
			reason, ok := pairAllows(st, now)
			if !ok {
				continue
			}
			if reason != "" {
				matched = append(matched, reason)
			}
		}
		out = append(out, Candidate{Goal: g, Matched: matched})
	}
	return out
}

// pairAllows applies history-based exclusions: terminal pairs stay excluded
// (re-entry is only via an advance upsert), in-flight pairs are excluded, and
// deferred pairs are excluded until due.
func pairAllows(st PairState, now time.Time) (reason string, ok bool) {
	switch st.Status {
	case history.StatusCompleted, history.StatusFailed:
		return "", false
	case history.StatusSent, history.StatusResponded:
		return "", false // message in flight
	case history.StatusDeferred:
		if st.NextAttemptAt == nil || st.NextAttemptAt.After(now) {
			return "", false
		}
		return "retry_due", true
	}
	return "", true
}

// evaluate checks every configured predicate. Adding matching insight facts
// can only ever satisfy more requires-entries, never trip one, so eligibility
// is monotone in the snapshot's insight map.
func evaluate(snap *Snapshot, g *catalog.Goal) (matched []string, ok bool) {
	if g.RequiresLinked {
		if !snap.Linked {
			return nil, false
		}
		matched = append(matched, "linked")
	}
	if len(g.RequiresOrgTypes) > 0 {
		found := false
		for _, ot := range g.RequiresOrgTypes {
			if ot == snap.OrgType {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		matched = append(matched, "org_type="+snap.OrgType)
	}
	if g.RequiresMinEngagement > 0 {
		if snap.Engagement < g.RequiresMinEngagement {
			return nil, false
		}
		matched = append(matched, fmt.Sprintf("engagement>=%g", g.RequiresMinEngagement))
	}
	for k, want := range g.RequiresInsights {
		got, present := snap.Insights[k]
		if !present || got != want {
			return nil, false
		}
		matched = append(matched, fmt.Sprintf("insight %s=%s", k, want))
	}
	for k, forbidden := range g.ExcludesInsights {
		if got, present := snap.Insights[k]; present && got == forbidden {
			return nil, false
		}
	}
	return matched, true
}
