package pipeline

import (
	"errors"
	"fmt"

	"github.com/nvandessel/nudge/internal/composition"
	"github.com/nvandessel/nudge/internal/library"
	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/session"
)

// ErrNotAStep is returned when a completed constraint is not a member of the
// workflow being advanced.
var ErrNotAStep = errors.New("constraint is not a step of this workflow")

// SkipOutcome is the result of a stage skip request. A refused skip is a
// normal outcome carrying a reason, not an error.
type SkipOutcome struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Next   *Step  `json:"next,omitempty"`
}

// applyWorkflows lets every workflow relevant to ranked override it. A
// workflow is relevant when its composite or any member is ranked. Its
// members other than the mandated step are dropped and the step moves to
// the front. Finished workflows leave the list alone, and so do workflows
// whose step an anti-pattern in the context vetoes.
func (p *Pipeline) applyWorkflows(lib *library.Library, ranked []models.ConstraintActivation, cctx composition.Context, sess *session.Context) ([]models.ConstraintActivation, []Step) {
	present := make(map[models.ConstraintID]bool, len(ranked))
	for _, a := range ranked {
		present[a.ConstraintID] = true
	}

	var steps []Step
	governed := make(map[models.ConstraintID]bool)
	for _, wf := range lib.Workflows() {
		members := wf.Members()
		if !present[wf.ID()] && !anyPresent(present, members) {
			continue
		}
		step, ok := p.next(wf, cctx, sess)
		if !ok {
			continue
		}
		if p.vetoed(lib, step.Activation.ConstraintID, cctx.Trigger) {
			p.logger.Debug("workflow step vetoed", "workflow", wf.ID(), "step", step.Activation.ConstraintID)
			continue
		}
		for _, m := range members {
			governed[m] = true
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return ranked, nil
	}

	placed := make(map[models.ConstraintID]bool, len(steps))
	out := make([]models.ConstraintActivation, 0, len(ranked)+len(steps))
	for _, st := range steps {
		if placed[st.Activation.ConstraintID] {
			continue
		}
		placed[st.Activation.ConstraintID] = true
		out = append(out, st.Activation)
	}
	for _, a := range ranked {
		if placed[a.ConstraintID] || governed[a.ConstraintID] {
			continue
		}
		out = append(out, a)
	}
	return out, steps
}

// vetoed reports whether an anti-pattern of constraint id matches tc.
func (p *Pipeline) vetoed(lib *library.Library, id models.ConstraintID, tc models.TriggerContext) bool {
	c, err := lib.Lookup(id)
	if err != nil {
		return false
	}
	def := c.Def()
	if def.Trigger == nil {
		return false
	}
	return tc.Relevance(*def.Trigger, p.matcher).Vetoed
}

func anyPresent(present map[models.ConstraintID]bool, ids []models.ConstraintID) bool {
	for _, id := range ids {
		if present[id] {
			return true
		}
	}
	return false
}

// runner restores the session's runner for wf. Unreadable state restarts
// the workflow.
func (p *Pipeline) runner(wf composition.Workflow, sess *session.Context) composition.Stepper {
	data, ok := sess.WorkflowState(wf.ID())
	if !ok {
		return wf.NewRunner()
	}
	r, err := wf.RestoreRunner(data)
	if err != nil {
		p.logger.Warn("discarding unreadable workflow state", "session", sess.ID(), "workflow", wf.ID(), "error", err)
		return wf.NewRunner()
	}
	return r
}

func (p *Pipeline) next(wf composition.Workflow, cctx composition.Context, sess *session.Context) (Step, bool) {
	return stepOf(wf, p.runner(wf, sess), cctx)
}

func stepOf(wf composition.Workflow, r composition.Stepper, cctx composition.Context) (Step, bool) {
	act, ok := r.Next(cctx)
	if !ok {
		return Step{}, false
	}
	step := Step{WorkflowID: wf.ID(), Kind: wf.Kind(), Activation: act}
	if g, ok := r.Guidance(); ok {
		step.Guidance = g
	}
	return step, true
}

func (p *Pipeline) save(wf composition.Workflow, r composition.Stepper, sess *session.Context) error {
	data, err := r.MarshalState()
	if err != nil {
		return err
	}
	sess.SetWorkflowState(wf.ID(), data)
	return nil
}

// NextStep returns the step workflow id mandates for req in sess. The bool
// is false when the workflow has nothing left to do.
func (p *Pipeline) NextStep(req Request, sess *session.Context, id models.ConstraintID) (Step, bool, error) {
	wf, err := p.snapshot(req).Workflow(id)
	if err != nil {
		return Step{}, false, err
	}
	step, ok := p.next(wf, compositionContext(req, p.Analyze(req)), sess)
	return step, ok, nil
}

// Advance marks completed as done in workflow id and returns the next step.
func (p *Pipeline) Advance(req Request, sess *session.Context, id, completed models.ConstraintID) (Step, bool, error) {
	wf, err := p.snapshot(req).Workflow(id)
	if err != nil {
		return Step{}, false, err
	}
	if !isMember(wf, completed) {
		return Step{}, false, fmt.Errorf("%w: %s in %s", ErrNotAStep, completed, id)
	}

	cctx := compositionContext(req, p.Analyze(req))
	r := p.runner(wf, sess)
	done, err := models.NewConstraintActivation(completed, 1.0, models.ReasonCompositionStep, cctx.Trigger, p.now())
	if err != nil {
		return Step{}, false, err
	}
	r.Complete(done, cctx)
	if err := p.save(wf, r, sess); err != nil {
		return Step{}, false, err
	}

	step, ok := stepOf(wf, r, cctx)
	return step, ok, nil
}

// SkipStage asks workflow id to jump to stage target. Only progressive
// workflows have stages to skip; the others refuse with a reason.
func (p *Pipeline) SkipStage(req Request, sess *session.Context, id models.ConstraintID, target int) (SkipOutcome, error) {
	wf, err := p.snapshot(req).Workflow(id)
	if err != nil {
		return SkipOutcome{}, err
	}
	r := p.runner(wf, sess)
	ok, reason := r.SkipTo(target)
	if !ok {
		return SkipOutcome{OK: false, Reason: reason}, nil
	}
	if err := p.save(wf, r, sess); err != nil {
		return SkipOutcome{}, err
	}

	out := SkipOutcome{OK: true}
	if step, ok := stepOf(wf, r, compositionContext(req, p.Analyze(req))); ok {
		out.Next = &step
	}
	return out, nil
}

func isMember(wf composition.Workflow, id models.ConstraintID) bool {
	for _, m := range wf.Members() {
		if m == id {
			return true
		}
	}
	return false
}
