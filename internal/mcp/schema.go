// Package mcp serves the activation pipeline to agents over the Model Context
// Protocol.
package mcp

import (
	"time"

	"github.com/nvandessel/nudge/internal/composition"
)

// EvaluationInput is the outcome of the agent's latest check (tests, build).
type EvaluationInput struct {
	State      string `json:"state,omitempty" jsonschema:"User-named outcome such as failing or passing"`
	Successful bool   `json:"successful,omitempty" jsonschema:"Whether the check succeeded"`
}

// DependencyInput is one observed source to target namespace reference.
type DependencyInput struct {
	Source string `json:"source" jsonschema:"Namespace that holds the reference"`
	Target string `json:"target" jsonschema:"Namespace being referenced"`
}

// WorkflowInput carries the signals composition workflows react to.
type WorkflowInput struct {
	WorkflowState string            `json:"workflow_state,omitempty" jsonschema:"Named workflow state such as red or green"`
	Evaluation    *EvaluationInput  `json:"evaluation,omitempty" jsonschema:"Latest check outcome"`
	Dependencies  []DependencyInput `json:"dependencies,omitempty" jsonschema:"Observed code dependencies for layered workflows"`
}

func (w *WorkflowInput) state() string {
	if w == nil {
		return ""
	}
	return w.WorkflowState
}

func (w *WorkflowInput) evaluation() composition.EvaluationStatus {
	if w == nil || w.Evaluation == nil {
		return composition.EvaluationStatus{}
	}
	return composition.EvaluationStatus{State: w.Evaluation.State, IsSuccessful: w.Evaluation.Successful}
}

func (w *WorkflowInput) dependencies() []composition.CodeDependency {
	if w == nil || len(w.Dependencies) == 0 {
		return nil
	}
	out := make([]composition.CodeDependency, len(w.Dependencies))
	for i, d := range w.Dependencies {
		out[i] = composition.CodeDependency{Source: d.Source, Target: d.Target}
	}
	return out
}

// NudgeCheckInput defines the input for nudge_check tool.
type NudgeCheckInput struct {
	SessionID string                 `json:"session_id" jsonschema:"Session id shared by every call of one agent conversation"`
	Tool      string                 `json:"tool,omitempty" jsonschema:"Name of the tool the agent is about to call"`
	Params    map[string]interface{} `json:"params,omitempty" jsonschema:"Parameters of that tool call"`
	Text      string                 `json:"text,omitempty" jsonschema:"Free text such as the user prompt"`
	File      string                 `json:"file,omitempty" jsonschema:"File being worked on, relative to the project root"`
	Phase     string                 `json:"phase,omitempty" jsonschema:"Current workflow phase, used for cadence overrides"`
	Format    string                 `json:"format,omitempty" jsonschema:"Reminder format: markdown (default), xml or plain"`
	Signals   *WorkflowInput         `json:"signals,omitempty" jsonschema:"Signals for composition workflows"`
}

// NudgeCheckOutput defines the output for nudge_check tool.
type NudgeCheckOutput struct {
	SessionID   string              `json:"session_id"`
	Interaction int                 `json:"interaction" jsonschema:"Interaction number within the session"`
	Injected    bool                `json:"injected" jsonschema:"False when the cadence skipped this interaction"`
	TimedOut    bool                `json:"timed_out,omitempty"`
	ContextType string              `json:"context_type"`
	Activations []ActivationSummary `json:"activations"`
	Steps       []StepSummary       `json:"steps,omitempty"`
	Reminder    string              `json:"reminder,omitempty" jsonschema:"Rendered reminder text ready for injection"`
}

// ActivationSummary is one ranked constraint.
type ActivationSummary struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// StepSummary is a step a composition workflow mandates.
type StepSummary struct {
	Workflow     string `json:"workflow"`
	Kind         string `json:"kind"`
	ConstraintID string `json:"constraint_id"`
	Reason       string `json:"reason"`
	Guidance     string `json:"guidance,omitempty"`
}

// NudgeSelectInput defines the input for nudge_select tool.
type NudgeSelectInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id shared by every call of one agent conversation"`
	Phase     string `json:"phase" jsonschema:"Workflow phase to select constraints for"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"Maximum number of constraints (defaults to the active cap)"`
	Format    string `json:"format,omitempty" jsonschema:"Reminder format: markdown (default), xml or plain"`
}

// NudgeSessionInput defines the input for nudge_session tool.
type NudgeSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session to inspect"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Number of most recent activations to return (0 for all)"`
}

// NudgeSessionOutput defines the output for nudge_session tool.
type NudgeSessionOutput struct {
	SessionID           string              `json:"session_id"`
	CreatedAt           time.Time           `json:"created_at"`
	ToolCalls           int                 `json:"tool_calls"`
	ActivityPattern     string              `json:"activity_pattern"`
	DominantContextType string              `json:"dominant_context_type"`
	Activations         int                 `json:"activations"`
	History             []ActivationSummary `json:"history"`
	Workflows           []string            `json:"workflows,omitempty" jsonschema:"Workflows with saved progress"`
}

// NudgeResetInput defines the input for nudge_reset tool.
type NudgeResetInput struct {
	SessionID string `json:"session_id" jsonschema:"Session to clear"`
}

// NudgeResetOutput defines the output for nudge_reset tool.
type NudgeResetOutput struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// NudgeNextStepInput defines the input for nudge_next_step tool.
type NudgeNextStepInput struct {
	SessionID string         `json:"session_id" jsonschema:"Session id shared by every call of one agent conversation"`
	Workflow  string         `json:"workflow" jsonschema:"Composite constraint id of the workflow"`
	Signals   *WorkflowInput `json:"signals,omitempty" jsonschema:"Signals for composition workflows"`
}

// NudgeStepOutput is the output of the workflow tools.
type NudgeStepOutput struct {
	Workflow string       `json:"workflow"`
	Done     bool         `json:"done" jsonschema:"True when the workflow has nothing left to do"`
	Next     *StepSummary `json:"next,omitempty"`
	Reminder string       `json:"reminder,omitempty"`
}

// NudgeAdvanceInput defines the input for nudge_advance tool.
type NudgeAdvanceInput struct {
	SessionID string         `json:"session_id" jsonschema:"Session id shared by every call of one agent conversation"`
	Workflow  string         `json:"workflow" jsonschema:"Composite constraint id of the workflow"`
	Completed string         `json:"completed" jsonschema:"Constraint id of the step that was completed"`
	Signals   *WorkflowInput `json:"signals,omitempty" jsonschema:"Signals for composition workflows"`
}

// NudgeSkipStageInput defines the input for nudge_skip_stage tool.
type NudgeSkipStageInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id shared by every call of one agent conversation"`
	Workflow  string `json:"workflow" jsonschema:"Composite constraint id of a progressive workflow"`
	Stage     int    `json:"stage" jsonschema:"Stage number to jump to"`
}

// NudgeSkipStageOutput defines the output for nudge_skip_stage tool.
type NudgeSkipStageOutput struct {
	Workflow string       `json:"workflow"`
	OK       bool         `json:"ok"`
	Reason   string       `json:"reason,omitempty" jsonschema:"Why the skip was refused"`
	Next     *StepSummary `json:"next,omitempty"`
}
