package composition

import (
	"fmt"
	"sort"

	"github.com/nvandessel/nudge/internal/models"
)

// HierarchicalConstraintInfo places a constraint at a hierarchy level.
// Lower levels come first; the meaning of a level is up to the user.
type HierarchicalConstraintInfo struct {
	ConstraintID models.ConstraintID `json:"constraint_id"`
	Level        int                 `json:"level"`
	Priority     models.Priority     `json:"priority"`
}

// HierarchicalState tracks completed constraints.
type HierarchicalState struct {
	Completed []models.ConstraintID `json:"completed,omitempty"`
}

// Hierarchical hands out constraints in ascending level order. Priority only
// breaks ties within a level, and equal priorities keep declaration order.
type Hierarchical struct {
	ordered []HierarchicalConstraintInfo
}

// NewHierarchical validates and orders members.
func NewHierarchical(members []HierarchicalConstraintInfo) (*Hierarchical, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("hierarchical composition needs at least one constraint")
	}
	seen := make(map[models.ConstraintID]bool, len(members))
	for _, m := range members {
		if m.ConstraintID == "" {
			return nil, fmt.Errorf("hierarchical member needs a constraint id")
		}
		if seen[m.ConstraintID] {
			return nil, fmt.Errorf("duplicate hierarchical member %s", m.ConstraintID)
		}
		if m.Level < 0 {
			return nil, fmt.Errorf("hierarchical member %s has negative level %d", m.ConstraintID, m.Level)
		}
		if _, err := models.NewPriority(float64(m.Priority)); err != nil {
			return nil, fmt.Errorf("hierarchical member %s: %w", m.ConstraintID, err)
		}
		seen[m.ConstraintID] = true
	}
	return &Hierarchical{ordered: OrderHierarchy(members)}, nil
}

// OrderHierarchy sorts by level ascending, then priority descending.
// The input is not modified.
func OrderHierarchy(members []HierarchicalConstraintInfo) []HierarchicalConstraintInfo {
	out := append([]HierarchicalConstraintInfo(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Kind implements Strategy.
func (h *Hierarchical) Kind() models.CompositionType { return models.CompositionHierarchical }

// Members implements Strategy, in hierarchy order.
func (h *Hierarchical) Members() []models.ConstraintID {
	out := make([]models.ConstraintID, len(h.ordered))
	for i, m := range h.ordered {
		out[i] = m.ConstraintID
	}
	return out
}

// Order returns the members in hierarchy order.
func (h *Hierarchical) Order() []HierarchicalConstraintInfo {
	return append([]HierarchicalConstraintInfo(nil), h.ordered...)
}

// Initial implements Strategy.
func (h *Hierarchical) Initial() HierarchicalState {
	return HierarchicalState{}
}

// Next implements Strategy: the first incomplete member in hierarchy order.
func (h *Hierarchical) Next(state HierarchicalState, ctx Context) (models.ConstraintActivation, bool) {
	for _, m := range h.ordered {
		if !containsID(state.Completed, m.ConstraintID) {
			return ctx.activate(m.ConstraintID, models.ReasonCompositionStep), true
		}
	}
	return models.ConstraintActivation{}, false
}

// Advance implements Strategy.
func (h *Hierarchical) Advance(state HierarchicalState, completed models.ConstraintActivation, _ Context) HierarchicalState {
	next := HierarchicalState{Completed: append([]models.ConstraintID(nil), state.Completed...)}
	for _, m := range h.ordered {
		if m.ConstraintID == completed.ConstraintID && !containsID(next.Completed, m.ConstraintID) {
			next.Completed = append(next.Completed, m.ConstraintID)
		}
	}
	return next
}
