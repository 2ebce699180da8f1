// Package composition sequences the steps of multi-step methodologies.
//
// Each strategy is a state machine whose transitions come from user
// configuration. Strategies are pure with respect to their state argument:
// Next and Advance never modify the state they are given, and Advance always
// returns a fresh value. Per-session state lives in a Runner.
package composition

import (
	"github.com/nvandessel/nudge/internal/constants"
	"github.com/nvandessel/nudge/internal/models"
)

// EvaluationStatus is the user-named outcome of the latest check, for
// example "failing" or "passing".
type EvaluationStatus struct {
	State        string `json:"state,omitempty"`
	IsSuccessful bool   `json:"is_successful"`
}

// CodeDependency is one observed source -> target namespace reference.
type CodeDependency struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Context is the input every strategy decision sees. Values are immutable;
// the With* methods return modified copies.
type Context struct {
	// WorkflowState is the caller's user-named state, e.g. "red" or "planning".
	WorkflowState string           `json:"workflow_state,omitempty"`
	Evaluation    EvaluationStatus `json:"evaluation"`
	Dependencies  []CodeDependency `json:"dependencies,omitempty"`

	// Trigger is attached to the activations a strategy produces.
	Trigger models.TriggerContext `json:"trigger"`
}

// WithWorkflowState returns a copy with the workflow state replaced.
func (c Context) WithWorkflowState(state string) Context {
	out := c.clone()
	out.WorkflowState = state
	return out
}

// WithEvaluation returns a copy with the evaluation status replaced.
func (c Context) WithEvaluation(status EvaluationStatus) Context {
	out := c.clone()
	out.Evaluation = status
	return out
}

// WithDependencies returns a copy carrying deps.
func (c Context) WithDependencies(deps []CodeDependency) Context {
	out := c.clone()
	out.Dependencies = append([]CodeDependency(nil), deps...)
	return out
}

func (c Context) clone() Context {
	out := c
	out.Dependencies = append([]CodeDependency(nil), c.Dependencies...)
	out.Trigger.Keywords = append([]string(nil), c.Trigger.Keywords...)
	return out
}

// activate builds the activation a strategy hands out for id.
func (c Context) activate(id models.ConstraintID, reason models.ActivationReason) models.ConstraintActivation {
	return models.ConstraintActivation{
		ConstraintID:    id,
		ConfidenceScore: constants.CompositionConfidence,
		Reason:          reason,
		TriggerContext:  c.clone().Trigger,
		Timestamp:       c.Trigger.Timestamp,
	}
}

// containsString reports whether list contains s.
func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []models.ConstraintID, id models.ConstraintID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
