package experiment

import (
	"github.com/MikeSquared-Agency/cyrano/internal/catalog"
	"github.com/MikeSquared-Agency/cyrano/internal/engine"
	"github.com/google/uuid"
)

// Picker adapts a running experiment to the selector's ArmPicker hook. The
// draw decides which arm of the pair the individual lands in; if the drawn
// arm's goal differs from the rule-selected one, its goal and template are
// substituted.
type Picker struct {
	Exp   *Experiment
	Ctrl  *Controller
	Goals map[uuid.UUID]*catalog.Goal // catalog lookup for substituted templates
}

func (p *Picker) Substitute(g *catalog.Goal) (engine.Substitution, bool) {
	if p.Exp == nil || p.Exp.Status != StatusRunning {
		return engine.Substitution{}, false
	}
	paired, ownArm, covered := p.Exp.PairFor(g.ID)
	if !covered {
		return engine.Substitution{}, false
	}

	drawn := p.Ctrl.AssignArm(p.Exp.Split)
	sub := engine.Substitution{
		ExperimentID: p.Exp.ID,
		Arm:          string(drawn),
	}
	if drawn == ownArm || paired == uuid.Nil {
		return sub, true // keep the rule-selected goal, attribution only
	}

	target, ok := p.Goals[paired]
	if !ok || !target.Enabled {
		// Paired goal missing or disabled mid-rollout: keep the selected
		// goal rather than dispatch something unreviewable.
		sub.Arm = string(ownArm)
		return sub, true
	}
	sub.GoalID = target.ID
	sub.GoalName = target.Name
	sub.Template = target.Template
	return sub, true
}
