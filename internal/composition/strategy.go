package composition

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nvandessel/nudge/internal/models"
)

// Strategy is a composition state machine over state type S.
type Strategy[S any] interface {
	// Kind names the composition type.
	Kind() models.CompositionType

	// Members lists every constraint the strategy may hand out.
	Members() []models.ConstraintID

	// Initial returns the state of a fresh session.
	Initial() S

	// Next returns the constraint that should be active now, if any.
	Next(state S, ctx Context) (models.ConstraintActivation, bool)

	// Advance returns the state after completed was carried out.
	Advance(state S, completed models.ConstraintActivation, ctx Context) S
}

// Workflow is a type-erased strategy bound to the composite constraint that
// declares it. Workflows are immutable and shared across sessions.
type Workflow interface {
	ID() models.ConstraintID
	Kind() models.CompositionType
	Members() []models.ConstraintID

	// NewRunner returns a runner in the strategy's initial state.
	NewRunner() Stepper

	// RestoreRunner returns a runner resuming a state saved with Stepper.MarshalState.
	RestoreRunner(data []byte) (Stepper, error)
}

// Stepper drives one session through a workflow.
type Stepper interface {
	Workflow() Workflow
	Next(ctx Context) (models.ConstraintActivation, bool)
	Complete(completed models.ConstraintActivation, ctx Context)

	// SkipTo jumps to a later stage. Strategies without stages refuse.
	SkipTo(target int) (ok bool, reason string)

	// Guidance returns extra text attached to the current step, if any.
	Guidance() (string, bool)

	MarshalState() ([]byte, error)
}

// Bind ties strategy to the composite constraint id.
func Bind[S any](id models.ConstraintID, strategy Strategy[S]) Workflow {
	return &binding[S]{id: id, strategy: strategy}
}

type binding[S any] struct {
	id       models.ConstraintID
	strategy Strategy[S]
}

func (b *binding[S]) ID() models.ConstraintID { return b.id }
func (b *binding[S]) Kind() models.CompositionType { return b.strategy.Kind() }
func (b *binding[S]) Members() []models.ConstraintID { return b.strategy.Members() }

func (b *binding[S]) NewRunner() Stepper {
	return &Runner[S]{binding: b, state: b.strategy.Initial()}
}

func (b *binding[S]) RestoreRunner(data []byte) (Stepper, error) {
	state := b.strategy.Initial()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("restoring %s state: %w", b.id, err)
		}
	}
	return &Runner[S]{binding: b, state: state}, nil
}

// skipper is implemented by strategies with numbered stages.
type skipper[S any] interface {
	skip(state S, target int) (S, bool, string)
}

// guide is implemented by strategies that attach guidance to steps.
type guide[S any] interface {
	guidance(state S) (string, bool)
}

// Runner holds one session's state for a strategy.
type Runner[S any] struct {
	mu      sync.Mutex
	binding *binding[S]
	state   S
}

// Workflow returns the workflow the runner drives.
func (r *Runner[S]) Workflow() Workflow {
	return r.binding
}

// State returns the current state value.
func (r *Runner[S]) State() S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Next returns the step that should be active now.
func (r *Runner[S]) Next(ctx Context) (models.ConstraintActivation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.binding.strategy.Next(r.state, ctx)
}

// Complete records that completed was carried out.
func (r *Runner[S]) Complete(completed models.ConstraintActivation, ctx Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = r.binding.strategy.Advance(r.state, completed, ctx)
}

// SkipTo jumps to stage target when the strategy supports it.
func (r *Runner[S]) SkipTo(target int) (bool, string) {
	sk, ok := any(r.binding.strategy).(skipper[S])
	if !ok {
		return false, fmt.Sprintf("%s composition has no stages to skip", r.binding.strategy.Kind())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok, reason := sk.skip(r.state, target)
	if ok {
		r.state = next
	}
	return ok, reason
}

// Guidance returns extra text attached to the current step.
func (r *Runner[S]) Guidance() (string, bool) {
	g, ok := any(r.binding.strategy).(guide[S])
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return g.guidance(r.state)
}

// MarshalState encodes the current state as JSON.
func (r *Runner[S]) MarshalState() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(r.state)
	if err != nil {
		return nil, fmt.Errorf("encoding %s state: %w", r.binding.id, err)
	}
	return data, nil
}
