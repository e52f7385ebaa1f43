package engine

import (
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/history"
	"github.com/google/uuid"
)

// Effect is an explicit side effect produced by outcome resolution. The
// resolver stays pure; the Executor applies effects afterwards.
type Effect interface{ effect() }

// WriteInsight records a fact about the individual in the insight store.
type WriteInsight struct {
	Key   string
	Value string
}

// SendReply sends the outcome's configured reply text.
type SendReply struct {
	Template string
}

// AskClarify sends the clarifying follow-up and keeps waiting for a reply.
type AskClarify struct {
	Template string
}

// ScheduleRetry defers the pair for Days days. NeedsReview marks the default
// no-match branch so operators can spot classifier gaps.
type ScheduleRetry struct {
	Days        int
	NeedsReview bool
}

// AdvanceGoal completes the current goal and makes NextGoalID immediately
// eligible, bypassing any defer window: the individual just engaged.
type AdvanceGoal struct {
	NextGoalID uuid.UUID
}

// EmitTerminal ends selection for the pair.
type EmitTerminal struct {
	Status history.Status
}

func (WriteInsight) effect()  {}
func (SendReply) effect()     {}
func (AskClarify) effect()    {}
func (ScheduleRetry) effect() {}
func (AdvanceGoal) effect()   {}
func (EmitTerminal) effect()  {}

// Resolution is the outcome of resolving a classified response against a
// goal's outcome list.
type Resolution struct {
	Outcome *catalog.Outcome // nil on the default no-match branch
	Matched bool
	Status  history.Status
	Effects []Effect
}

// Resolve evaluates a goal's outcomes against a classified response in
// descending priority order; the first structural match wins, ties resolving
// to configuration order (stable sort). When nothing matches, the individual
// is deferred for defaultDeferDays and flagged for operator review rather
// than dropped.
func Resolve(goal *catalog.Goal, resp ClassifiedResponse, defaultDeferDays int) Resolution {
	outcomes := make([]catalog.Outcome, len(goal.Outcomes))
	copy(outcomes, goal.Outcomes)
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Priority > outcomes[j].Priority
	})

	for i := range outcomes {
		o := &outcomes[i]
		if !matches(o, resp) {
			continue
		}
		return resolution(goal, o)
	}

	return Resolution{
		Matched: false,
		Status:  history.StatusDeferred,
		Effects: []Effect{ScheduleRetry{Days: defaultDeferDays, NeedsReview: true}},
	}
}

// matches applies the per-trigger matching semantics.
func matches(o *catalog.Outcome, resp ClassifiedResponse) bool {
	switch o.TriggerType {
	case catalog.TriggerKeyword:
		if resp.Timeout || resp.Text == "" {
			return false
		}
		return strings.Contains(strings.ToLower(resp.Text), strings.ToLower(o.TriggerValue))
	case catalog.TriggerSentiment:
		return !resp.Timeout && resp.Sentiment != "" && strings.EqualFold(resp.Sentiment, o.TriggerValue)
	case catalog.TriggerIntent:
		return !resp.Timeout && resp.Intent != "" && strings.EqualFold(resp.Intent, o.TriggerValue)
	case catalog.TriggerTimeout:
		return resp.Timeout
	case catalog.TriggerAction:
		return resp.ActionID != "" && resp.ActionID == o.TriggerValue
	}
	return false
}

func resolution(goal *catalog.Goal, o *catalog.Outcome) Resolution {
	res := Resolution{Outcome: o, Matched: true}

	if o.HasInsight() {
		res.Effects = append(res.Effects, WriteInsight{Key: o.InsightKey, Value: o.InsightValue})
	}

	switch o.OutcomeType {
	case catalog.OutcomeSuccess:
		res.Status = history.StatusCompleted
		if goal.InsightKey != "" && !o.HasInsight() {
			res.Effects = append(res.Effects, WriteInsight{Key: goal.InsightKey, Value: "true"})
		}
		if o.ReplyTemplate != "" {
			res.Effects = append(res.Effects, SendReply{Template: o.ReplyTemplate})
		}
		res.Effects = append(res.Effects, EmitTerminal{Status: history.StatusCompleted})
	case catalog.OutcomeFailure:
		res.Status = history.StatusFailed
		if o.ReplyTemplate != "" {
			res.Effects = append(res.Effects, SendReply{Template: o.ReplyTemplate})
		}
		res.Effects = append(res.Effects, EmitTerminal{Status: history.StatusFailed})
	case catalog.OutcomeAdvance:
		res.Status = history.StatusCompleted
		if o.ReplyTemplate != "" {
			res.Effects = append(res.Effects, SendReply{Template: o.ReplyTemplate})
		}
		res.Effects = append(res.Effects, AdvanceGoal{NextGoalID: o.NextGoalID})
	case catalog.OutcomeDefer:
		res.Status = history.StatusDeferred
		if o.ReplyTemplate != "" {
			res.Effects = append(res.Effects, SendReply{Template: o.ReplyTemplate})
		}
		res.Effects = append(res.Effects, ScheduleRetry{Days: o.DeferDays})
	case catalog.OutcomeClarify:
		res.Status = history.StatusResponded
		tmpl := o.ReplyTemplate
		if tmpl == "" {
			tmpl = goal.ClarifyTemplate
		}
		res.Effects = append(res.Effects, AskClarify{Template: tmpl})
	}
	return res
}
