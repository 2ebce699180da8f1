// Package pipeline wires the activation components into the per-interaction
// flow: analyze, gate on cadence, rank or select, adjust for the session,
// let composition workflows override, cap.
//
// A Pipeline is safe for concurrent use across sessions. Calls for one
// session must be serialized by the host, normally through session.Registry.Do.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/nudge/internal/activation"
	"github.com/nvandessel/nudge/internal/composition"
	"github.com/nvandessel/nudge/internal/constants"
	"github.com/nvandessel/nudge/internal/keywords"
	"github.com/nvandessel/nudge/internal/library"
	"github.com/nvandessel/nudge/internal/logging"
	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/schedule"
	"github.com/nvandessel/nudge/internal/session"
)

// Path names the activation path an evaluation took.
type Path string

const (
	// PathTrigger scores trigger configurations against the interaction.
	PathTrigger Path = "trigger"
	// PathPhase selects constraints by workflow phase and static priority.
	PathPhase Path = "phase"
)

// Request is one interaction as the host delivers it.
type Request struct {
	SessionID string

	// Method and Params describe a tool call. Text is free user input.
	// Either or both may be set.
	Method string
	Params map[string]interface{}
	Text   string

	// FilePath overrides the path found in Params.
	FilePath string

	// Path selects the activation path. Empty means PathTrigger.
	Path Path

	// Phase drives phase-based selection and per-phase cadence overrides.
	Phase string

	// TopK bounds phase-based selection. Zero uses the active-constraint cap.
	TopK int

	// WorkflowState, Evaluation and Dependencies feed composition workflows.
	WorkflowState string
	Evaluation    composition.EvaluationStatus
	Dependencies  []composition.CodeDependency

	// Library pins the snapshot to evaluate against, so a caller can render
	// with the same one. Nil uses the provider's current snapshot.
	Library *library.Library
}

func (r Request) path() Path {
	if r.Path == "" {
		return PathTrigger
	}
	return r.Path
}

// Step is the step a composition workflow mandates.
type Step struct {
	WorkflowID models.ConstraintID         `json:"workflow_id"`
	Kind       models.CompositionType      `json:"kind"`
	Activation models.ConstraintActivation `json:"activation"`
	Guidance   string                      `json:"guidance,omitempty"`
}

// Result is the outcome of one evaluation.
type Result struct {
	SessionID   string                `json:"session_id"`
	Interaction int                   `json:"interaction"`
	Path        Path                  `json:"path"`
	Injected    bool                  `json:"injected"`
	TimedOut    bool                  `json:"timed_out,omitempty"`
	Trigger     models.TriggerContext `json:"trigger"`

	// Activations is the final ranked, capped list. Empty when not injected.
	Activations []models.ConstraintActivation `json:"activations"`

	// Steps are the composition steps that shaped Activations.
	Steps []Step `json:"steps,omitempty"`
}

// IDs returns the activated constraint ids in order.
func (r Result) IDs() []models.ConstraintID {
	out := make([]models.ConstraintID, len(r.Activations))
	for i, a := range r.Activations {
		out[i] = a.ConstraintID
	}
	return out
}

// Options configures a Pipeline.
type Options struct {
	// Provider supplies constraints and workflows. Nil serves the built-in library.
	Provider library.Provider

	// Matcher scores keywords. Nil uses the built-in tables.
	Matcher *keywords.Matcher

	// ContextRules overrides the context type detection rules.
	ContextRules []activation.ContextRule

	Schedule models.ScheduleConfiguration

	// MaxActiveConstraints caps every result. Zero uses the default.
	MaxActiveConstraints int

	// Timeout bounds EvaluateWithin when the context carries no deadline.
	Timeout time.Duration

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
}

// Pipeline evaluates interactions.
type Pipeline struct {
	provider  library.Provider
	matcher   *keywords.Matcher
	analyzer  *activation.Analyzer
	scheduler *schedule.Scheduler
	maxActive int
	timeout   time.Duration
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	now       func() time.Time
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Provider == nil {
		opts.Provider = library.NewStatic(nil)
	}
	if opts.Matcher == nil {
		opts.Matcher = keywords.NewMatcher(nil)
	}
	if opts.MaxActiveConstraints <= 0 {
		opts.MaxActiveConstraints = constants.DefaultMaxActiveConstraints
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		provider:  opts.Provider,
		matcher:   opts.Matcher,
		analyzer:  activation.NewAnalyzer(opts.Matcher, opts.ContextRules),
		scheduler: schedule.New(opts.Schedule),
		maxActive: opts.MaxActiveConstraints,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		decisions: opts.Decisions,
		now:       time.Now,
	}
}

// Library returns the current library snapshot.
func (p *Pipeline) Library() *library.Library {
	return p.provider.Current()
}

func (p *Pipeline) snapshot(req Request) *library.Library {
	if req.Library != nil {
		return req.Library
	}
	return p.provider.Current()
}

// Scheduler returns the cadence gate.
func (p *Pipeline) Scheduler() *schedule.Scheduler {
	return p.scheduler
}

// Analyze turns a request into a trigger context without touching any session.
func (p *Pipeline) Analyze(req Request) models.TriggerContext {
	var tc models.TriggerContext
	switch {
	case req.Method != "":
		tc = p.analyzer.AnalyzeToolCallContext(req.Method, req.Params, req.SessionID)
		if req.Text != "" {
			extra := p.analyzer.AnalyzeUserInput(req.Text, req.SessionID)
			tc.Keywords = mergeKeywords(tc.Keywords, extra.Keywords)
		}
	default:
		tc = p.analyzer.AnalyzeUserInput(req.Text, req.SessionID)
	}
	if req.FilePath != "" {
		tc.FilePath = req.FilePath
	}
	tc.ContextType = p.analyzer.DetectContextType(tc.Keywords, tc.FilePath)
	return tc
}

// Evaluate counts the interaction in sess and runs the pipeline
// synchronously. It never fails: faults yield an empty result.
func (p *Pipeline) Evaluate(ctx context.Context, req Request, sess *session.Context) Result {
	n := sess.RecordToolCall()
	res := p.run(ctx, req, n, sess)
	p.logDecision(res)
	return res
}

// EvaluateWithin is Evaluate under a deadline: the context's own, or the
// configured timeout when it has none. The interaction is always counted.
// Work runs on a copy of the session so an abandoned evaluation cannot
// touch it; on timeout the result is empty and marked TimedOut.
func (p *Pipeline) EvaluateWithin(ctx context.Context, req Request, sess *session.Context) Result {
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	n := sess.RecordToolCall()
	shadow := sess.Clone()

	done := make(chan Result, 1)
	go func() {
		done <- p.run(ctx, req, n, shadow)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{
			SessionID:   req.SessionID,
			Interaction: n,
			Path:        req.path(),
			TimedOut:    true,
			Activations: []models.ConstraintActivation{},
		}
		p.logger.Warn("evaluation timed out, skipping injection",
			"session", req.SessionID, "interaction", n, "error", ctx.Err())
	}
	p.logDecision(res)
	return res
}

// Commit records an injected result's activations in sess.
func (p *Pipeline) Commit(res Result, sess *session.Context) {
	if !res.Injected {
		return
	}
	for _, a := range res.Activations {
		sess.RecordActivation(a)
	}
}

// run is the pipeline proper. Panics are converted into an empty result.
func (p *Pipeline) run(ctx context.Context, req Request, n int, sess *session.Context) (res Result) {
	res = Result{
		SessionID:   req.SessionID,
		Interaction: n,
		Path:        req.path(),
		Activations: []models.ConstraintActivation{},
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("pipeline aborted", "session", req.SessionID, "panic", fmt.Sprint(r))
			res.Injected = false
			res.Activations = []models.ConstraintActivation{}
			res.Steps = nil
		}
	}()

	res.Trigger = p.Analyze(req)

	if !p.scheduler.ShouldInjectInPhase(n, req.Phase) {
		p.logger.Debug("cadence gate closed", "session", req.SessionID, "interaction", n,
			"next", p.scheduler.NextInjection(n, req.Phase))
		return res
	}
	res.Injected = true

	lib := p.snapshot(req)
	switch res.Path {
	case PathPhase:
		res.Activations = p.selectByPhase(ctx, lib, req, res.Trigger)
	default:
		res.Activations, res.Steps = p.rankByTrigger(ctx, lib, req, res.Trigger, sess)
	}
	return res
}

func (p *Pipeline) rankByTrigger(ctx context.Context, lib *library.Library, req Request, tc models.TriggerContext, sess *session.Context) ([]models.ConstraintActivation, []Step) {
	engine := activation.NewEngine(lib, p.matcher, activation.EngineConfig{MaxActiveConstraints: p.maxActive}, p.logger)
	ranked := engine.RankConstraints(ctx, tc)

	adjusted := make([]models.ConstraintActivation, len(ranked))
	for i, a := range ranked {
		adj := sess.GetSessionRelevanceAdjustment(a.ConstraintID)
		adjusted[i] = a.WithConfidence(min(1.0, a.ConfidenceScore*adj))
	}
	activation.SortActivations(adjusted)

	cctx := compositionContext(req, tc)
	final, steps := p.applyWorkflows(lib, adjusted, cctx, sess)
	if len(final) > p.maxActive {
		final = final[:p.maxActive]
	}
	return final, steps
}

func (p *Pipeline) selectByPhase(ctx context.Context, lib *library.Library, req Request, tc models.TriggerContext) []models.ConstraintActivation {
	constraints, err := lib.Constraints(ctx)
	if err != nil {
		p.logger.Warn("constraint library unavailable", "session", req.SessionID, "error", err)
		return []models.ConstraintActivation{}
	}
	topK := req.TopK
	if topK <= 0 || topK > p.maxActive {
		topK = p.maxActive
	}

	now := p.now()
	selected := activation.SelectConstraints(constraints, req.Phase, topK)
	out := make([]models.ConstraintActivation, 0, len(selected))
	for _, c := range selected {
		def := c.Def()
		a, err := models.NewConstraintActivation(def.ID, float64(def.Priority), models.ReasonPhaseMatch, tc, now)
		if err != nil {
			p.logger.Warn("skipping constraint", "error", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

func (p *Pipeline) logDecision(res Result) {
	if p.decisions == nil {
		return
	}
	entries := make([]logging.DecisionEntry, len(res.Activations))
	for i, a := range res.Activations {
		entries[i] = logging.DecisionEntry{
			ConstraintID: string(a.ConstraintID),
			Confidence:   a.ConfidenceScore,
			Reason:       string(a.Reason),
		}
	}
	p.decisions.LogDecision(logging.Decision{
		Event:       "evaluate",
		SessionID:   res.SessionID,
		Interaction: res.Interaction,
		Path:        string(res.Path),
		Gated:       !res.Injected,
		TimedOut:    res.TimedOut,
		Activations: entries,
		Trigger:     res.Trigger,
	})
}

func compositionContext(req Request, tc models.TriggerContext) composition.Context {
	return composition.Context{
		WorkflowState: req.WorkflowState,
		Evaluation:    req.Evaluation,
		Dependencies:  append([]composition.CodeDependency(nil), req.Dependencies...),
		Trigger:       tc,
	}
}

func mergeKeywords(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, kw := range list {
			if !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}
