package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ErrInvalidConstraint is wrapped by every validation error raised while
// constructing constraint definitions.
var ErrInvalidConstraint = errors.New("invalid constraint")

// ConstraintID identifies a constraint. It is a non-empty, dot-segmented
// string such as "tdd.test-first".
type ConstraintID string

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// NewConstraintID validates and returns a ConstraintID.
func NewConstraintID(s string) (ConstraintID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidConstraint)
	}
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("%w: id %q must be dot-segmented (letters, digits, '-', '_')", ErrInvalidConstraint, s)
	}
	return ConstraintID(s), nil
}

// String implements fmt.Stringer.
func (id ConstraintID) String() string {
	return string(id)
}

// Priority orders constraints; higher sorts first. Range: 0.0 to 1.0.
type Priority float64

// NewPriority validates and returns a Priority.
func NewPriority(v float64) (Priority, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: priority must be between 0 and 1, got %f", ErrInvalidConstraint, v)
	}
	return Priority(v), nil
}

// CompositionType names the strategy that sequences a composite constraint.
type CompositionType string

const (
	CompositionSequential   CompositionType = "sequential"
	CompositionHierarchical CompositionType = "hierarchical"
	CompositionLayered      CompositionType = "layered"
	CompositionProgressive  CompositionType = "progressive"
)

// Valid reports whether t is a known composition type.
func (t CompositionType) Valid() bool {
	switch t {
	case CompositionSequential, CompositionHierarchical, CompositionLayered, CompositionProgressive:
		return true
	default:
		return false
	}
}

// Definition holds the fields shared by every constraint shape.
type Definition struct {
	ID       ConstraintID `json:"id"`
	Title    string       `json:"title,omitempty"`
	Priority Priority     `json:"priority"`

	// Phases is used by the phase-based selection path. A constraint with
	// several phases matches any of them.
	Phases []string `json:"phases,omitempty"`

	// Trigger is used by the trigger-matching path. Nil means the constraint
	// only participates in phase-based selection.
	Trigger *TriggerConfiguration `json:"trigger,omitempty"`

	// Reminders are the texts the injection layer renders.
	Reminders []string `json:"reminders,omitempty"`
}

// HasPhase reports whether the definition lists phase.
func (d Definition) HasPhase(phase string) bool {
	for _, p := range d.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

func (d Definition) validate() error {
	if _, err := NewConstraintID(string(d.ID)); err != nil {
		return err
	}
	if _, err := NewPriority(float64(d.Priority)); err != nil {
		return fmt.Errorf("constraint %s: %w", d.ID, err)
	}
	if len(d.Phases) == 0 && d.Trigger == nil {
		return fmt.Errorf("%w: constraint %s needs at least one phase or a trigger configuration", ErrInvalidConstraint, d.ID)
	}
	if d.Trigger != nil {
		if th := d.Trigger.ConfidenceThreshold; math.IsNaN(th) || th < 0 || th > 1 {
			return fmt.Errorf("%w: constraint %s: confidence_threshold must be between 0 and 1, got %f", ErrInvalidConstraint, d.ID, th)
		}
	}
	for _, p := range d.Phases {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: constraint %s has an empty phase name", ErrInvalidConstraint, d.ID)
		}
	}
	return nil
}

func (d Definition) clone() Definition {
	out := d
	out.Phases = append([]string(nil), d.Phases...)
	out.Reminders = append([]string(nil), d.Reminders...)
	if d.Trigger != nil {
		t := d.Trigger.clone()
		out.Trigger = &t
	}
	return out
}

// Constraint is the closed set of constraint shapes: *AtomicConstraint or
// *CompositeConstraint. Callers that need shape-specific behavior use a type
// switch over those two types.
type Constraint interface {
	// Def returns a copy of the shared definition fields.
	Def() Definition

	sealed()
}

// AtomicConstraint is a single reminder.
type AtomicConstraint struct {
	def Definition
}

// NewAtomicConstraint validates def and returns an immutable constraint.
func NewAtomicConstraint(def Definition) (*AtomicConstraint, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &AtomicConstraint{def: def.clone()}, nil
}

// Def returns a copy of the constraint's definition.
func (c *AtomicConstraint) Def() Definition { return c.def.clone() }

func (c *AtomicConstraint) sealed() {}

// CompositeConstraint groups component constraints into a methodology whose
// steps are sequenced by a composition strategy.
type CompositeConstraint struct {
	def         Definition
	components  []ConstraintID
	composition CompositionType
}

// NewCompositeConstraint validates its arguments and returns an immutable
// composite constraint.
func NewCompositeConstraint(def Definition, composition CompositionType, components []ConstraintID) (*CompositeConstraint, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	if !composition.Valid() {
		return nil, fmt.Errorf("%w: constraint %s has unknown composition %q", ErrInvalidConstraint, def.ID, composition)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: composite constraint %s needs at least one component", ErrInvalidConstraint, def.ID)
	}
	seen := make(map[ConstraintID]bool, len(components))
	for _, id := range components {
		if _, err := NewConstraintID(string(id)); err != nil {
			return nil, fmt.Errorf("composite %s: %w", def.ID, err)
		}
		if id == def.ID {
			return nil, fmt.Errorf("%w: composite constraint %s lists itself as a component", ErrInvalidConstraint, def.ID)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: composite constraint %s lists %s twice", ErrInvalidConstraint, def.ID, id)
		}
		seen[id] = true
	}
	return &CompositeConstraint{
		def:         def.clone(),
		components:  append([]ConstraintID(nil), components...),
		composition: composition,
	}, nil
}

// Def returns a copy of the constraint's definition.
func (c *CompositeConstraint) Def() Definition { return c.def.clone() }

// Components returns the component ids in declaration order.
func (c *CompositeConstraint) Components() []ConstraintID {
	return append([]ConstraintID(nil), c.components...)
}

// Composition returns the strategy type sequencing the components.
func (c *CompositeConstraint) Composition() CompositionType { return c.composition }

func (c *CompositeConstraint) sealed() {}
