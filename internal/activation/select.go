package activation

import (
	"sort"

	"github.com/nvandessel/nudge/internal/models"
)

// SelectConstraints is the phase-based activation path. It keeps the
// constraints listing phase, sorts them by priority (stable on ties) and
// returns at most topK of them. It does not score relevance.
func SelectConstraints(constraints []models.Constraint, phase string, topK int) []models.Constraint {
	if topK <= 0 || phase == "" {
		return []models.Constraint{}
	}

	type entry struct {
		c        models.Constraint
		priority models.Priority
	}
	matched := make([]entry, 0, len(constraints))
	for _, c := range constraints {
		var def models.Definition
		switch v := c.(type) {
		case *models.AtomicConstraint:
			def = v.Def()
		case *models.CompositeConstraint:
			def = v.Def()
		default:
			continue
		}
		if def.HasPhase(phase) {
			matched = append(matched, entry{c: c, priority: def.Priority})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].priority > matched[j].priority
	})

	if len(matched) > topK {
		matched = matched[:topK]
	}
	out := make([]models.Constraint, len(matched))
	for i, m := range matched {
		out[i] = m.c
	}
	return out
}
