package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/nudge/internal/inject"
	"github.com/nvandessel/nudge/internal/library"
	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/pathutil"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/ratelimit"
	"github.com/nvandessel/nudge/internal/sanitize"
	"github.com/nvandessel/nudge/internal/session"
)

const (
	libraryURI        = "nudge://library"
	constraintURIBase = "nudge://constraints/"
)

// registerTools registers all nudge MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_check",
		Description: "Evaluate one interaction (tool call and/or text) and return the constraint reminders to keep in mind. Call it before acting; the session cadence decides whether reminders are injected.",
	}, s.handleNudgeCheck)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_select",
		Description: "Select the highest-priority constraints for a workflow phase, independent of the interaction text",
	}, s.handleNudgeSelect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_session",
		Description: "Show a session: interaction count, activity pattern, dominant context type and recent activations",
	}, s.handleNudgeSession)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_reset",
		Description: "Clear a session's history, counters and workflow progress",
	}, s.handleNudgeReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_next_step",
		Description: "Return the step a composition workflow mandates next in this session",
	}, s.handleNudgeNextStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_advance",
		Description: "Mark a workflow step as completed and return the next one",
	}, s.handleNudgeAdvance)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "nudge_skip_stage",
		Description: "Jump a progressive workflow to a later stage; refused with a reason when a barrier stage is in the way",
	}, s.handleNudgeSkipStage)
}

// registerResources registers the library as readable resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         libraryURI,
		Name:        "nudge-library",
		Description: "Every constraint in the active library with its reminders",
		MIMEType:    "text/markdown",
	}, s.handleLibraryResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: constraintURIBase + "{id}",
		Name:        "nudge-constraint",
		Description: "Full definition of one constraint: trigger, phases and reminders",
		MIMEType:    "text/markdown",
	}, s.handleConstraintResource)
}

func (s *Server) compiler(format string) (*inject.Compiler, error) {
	f := s.format
	switch inject.Format(format) {
	case "":
	case inject.FormatMarkdown, inject.FormatXML, inject.FormatPlain:
		f = inject.Format(format)
	default:
		return nil, fmt.Errorf("unknown format %q: want markdown, xml or plain", format)
	}
	return inject.NewCompiler().WithFormat(f).WithMaxTokens(s.maxTokens), nil
}

func (s *Server) handleNudgeCheck(ctx context.Context, req *sdk.CallToolRequest, args NudgeCheckInput) (_ *sdk.CallToolResult, _ NudgeCheckOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_check", args.SessionID, start, retErr, sanitizeToolParams(map[string]interface{}{
			"tool": args.Tool, "phase": args.Phase, "format": args.Format,
			"text": args.Text, "file": args.File, "params": args.Params, "signals": args.Signals,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_check", args.SessionID); err != nil {
		return nil, NudgeCheckOutput{}, err
	}
	compiler, err := s.compiler(args.Format)
	if err != nil {
		return nil, NudgeCheckOutput{}, err
	}

	preq := pipeline.Request{
		SessionID:     args.SessionID,
		Method:        args.Tool,
		Params:        args.Params,
		Text:          sanitize.Input(args.Text),
		FilePath:      pathutil.ProjectRelative(s.root, args.File),
		Phase:         args.Phase,
		WorkflowState: args.Signals.state(),
		Evaluation:    args.Signals.evaluation(),
		Dependencies:  args.Signals.dependencies(),
		Library:       s.pipeline.Library(),
	}

	var res pipeline.Result
	err = s.sessions.Do(ctx, args.SessionID, func(sess *session.Context) error {
		res = s.pipeline.EvaluateWithin(ctx, preq, sess)
		s.pipeline.Commit(res, sess)
		return nil
	})
	if err != nil {
		return nil, NudgeCheckOutput{}, err
	}

	lib := preq.Library
	return nil, NudgeCheckOutput{
		SessionID:   res.SessionID,
		Interaction: res.Interaction,
		Injected:    res.Injected,
		TimedOut:    res.TimedOut,
		ContextType: res.Trigger.ContextType,
		Activations: summarize(res.Activations, lib),
		Steps:       stepSummaries(res.Steps),
		Reminder:    compiler.Compile(res, lib).Text,
	}, nil
}

func (s *Server) handleNudgeSelect(ctx context.Context, req *sdk.CallToolRequest, args NudgeSelectInput) (_ *sdk.CallToolResult, _ NudgeCheckOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_select", args.SessionID, start, retErr, sanitizeToolParams(map[string]interface{}{
			"phase": args.Phase, "top_k": args.TopK, "format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_select", args.SessionID); err != nil {
		return nil, NudgeCheckOutput{}, err
	}
	if strings.TrimSpace(args.Phase) == "" {
		return nil, NudgeCheckOutput{}, fmt.Errorf("phase is required")
	}
	if args.TopK < 0 {
		return nil, NudgeCheckOutput{}, fmt.Errorf("top_k must be non-negative, got %d", args.TopK)
	}
	compiler, err := s.compiler(args.Format)
	if err != nil {
		return nil, NudgeCheckOutput{}, err
	}

	preq := pipeline.Request{
		SessionID: args.SessionID,
		Path:      pipeline.PathPhase,
		Phase:     args.Phase,
		TopK:      args.TopK,
		Library:   s.pipeline.Library(),
	}
	var res pipeline.Result
	err = s.sessions.Do(ctx, args.SessionID, func(sess *session.Context) error {
		res = s.pipeline.EvaluateWithin(ctx, preq, sess)
		s.pipeline.Commit(res, sess)
		return nil
	})
	if err != nil {
		return nil, NudgeCheckOutput{}, err
	}

	lib := preq.Library
	return nil, NudgeCheckOutput{
		SessionID:   res.SessionID,
		Interaction: res.Interaction,
		Injected:    res.Injected,
		TimedOut:    res.TimedOut,
		ContextType: res.Trigger.ContextType,
		Activations: summarize(res.Activations, lib),
		Reminder:    compiler.Compile(res, lib).Text,
	}, nil
}

func (s *Server) handleNudgeSession(ctx context.Context, req *sdk.CallToolRequest, args NudgeSessionInput) (_ *sdk.CallToolResult, _ NudgeSessionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_session", args.SessionID, start, retErr, sanitizeToolParams(map[string]interface{}{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_session", args.SessionID); err != nil {
		return nil, NudgeSessionOutput{}, err
	}

	var snap session.Snapshot
	err := s.sessions.Do(ctx, args.SessionID, func(sess *session.Context) error {
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		return nil, NudgeSessionOutput{}, err
	}

	history := snap.History
	if args.Limit > 0 && len(history) > args.Limit {
		history = history[len(history)-args.Limit:]
	}
	workflows := make([]string, 0, len(snap.Workflows))
	for id := range snap.Workflows {
		workflows = append(workflows, string(id))
	}
	sort.Strings(workflows)

	return nil, NudgeSessionOutput{
		SessionID:           snap.ID,
		CreatedAt:           snap.CreatedAt,
		ToolCalls:           snap.ToolCalls,
		ActivityPattern:     snap.ActivityPattern,
		DominantContextType: snap.DominantContextType,
		Activations:         len(snap.History),
		History:             summarize(history, s.pipeline.Library()),
		Workflows:           workflows,
	}, nil
}

func (s *Server) handleNudgeReset(ctx context.Context, req *sdk.CallToolRequest, args NudgeResetInput) (_ *sdk.CallToolResult, _ NudgeResetOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_reset", args.SessionID, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_reset", args.SessionID); err != nil {
		return nil, NudgeResetOutput{}, err
	}
	if args.SessionID == "" {
		return nil, NudgeResetOutput{}, fmt.Errorf("session id is required")
	}
	if err := s.sessions.Reset(ctx, args.SessionID); err != nil {
		return nil, NudgeResetOutput{}, err
	}
	return nil, NudgeResetOutput{
		SessionID: args.SessionID,
		Message:   fmt.Sprintf("session %s cleared", args.SessionID),
	}, nil
}

func (s *Server) handleNudgeNextStep(ctx context.Context, req *sdk.CallToolRequest, args NudgeNextStepInput) (_ *sdk.CallToolResult, _ NudgeStepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_next_step", args.SessionID, start, retErr, sanitizeToolParams(map[string]interface{}{
			"workflow": args.Workflow, "signals": args.Signals,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_next_step", args.SessionID); err != nil {
		return nil, NudgeStepOutput{}, err
	}

	preq := s.workflowRequest(args.SessionID, args.Signals)
	var (
		step pipeline.Step
		ok   bool
	)
	err := s.sessions.Do(ctx, args.SessionID, func(sess *session.Context) error {
		var err error
		step, ok, err = s.pipeline.NextStep(preq, sess, models.ConstraintID(args.Workflow))
		return err
	})
	if err != nil {
		return nil, NudgeStepOutput{}, err
	}
	return nil, s.stepOutput(preq.Library, args.Workflow, step, ok), nil
}

func (s *Server) handleNudgeAdvance(ctx context.Context, req *sdk.CallToolRequest, args NudgeAdvanceInput) (_ *sdk.CallToolResult, _ NudgeStepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_advance", args.SessionID, start, retErr, sanitizeToolParams(map[string]interface{}{
			"workflow": args.Workflow, "completed": args.Completed, "signals": args.Signals,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_advance", args.SessionID); err != nil {
		return nil, NudgeStepOutput{}, err
	}

	preq := s.workflowRequest(args.SessionID, args.Signals)
	var (
		step pipeline.Step
		ok   bool
	)
	err := s.sessions.Do(ctx, args.SessionID, func(sess *session.Context) error {
		var err error
		step, ok, err = s.pipeline.Advance(preq, sess, models.ConstraintID(args.Workflow), models.ConstraintID(args.Completed))
		return err
	})
	if err != nil {
		return nil, NudgeStepOutput{}, err
	}
	return nil, s.stepOutput(preq.Library, args.Workflow, step, ok), nil
}

func (s *Server) handleNudgeSkipStage(ctx context.Context, req *sdk.CallToolRequest, args NudgeSkipStageInput) (_ *sdk.CallToolResult, _ NudgeSkipStageOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("nudge_skip_stage", args.SessionID, start, retErr, sanitizeToolParams(map[string]interface{}{
			"workflow": args.Workflow, "stage": args.Stage,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "nudge_skip_stage", args.SessionID); err != nil {
		return nil, NudgeSkipStageOutput{}, err
	}

	var out pipeline.SkipOutcome
	err := s.sessions.Do(ctx, args.SessionID, func(sess *session.Context) error {
		var err error
		out, err = s.pipeline.SkipStage(pipeline.Request{SessionID: args.SessionID, Library: s.pipeline.Library()}, sess, models.ConstraintID(args.Workflow), args.Stage)
		return err
	})
	if err != nil {
		return nil, NudgeSkipStageOutput{}, err
	}

	result := NudgeSkipStageOutput{Workflow: args.Workflow, OK: out.OK, Reason: out.Reason}
	if out.Next != nil {
		summary := stepSummary(*out.Next)
		result.Next = &summary
	}
	return nil, result, nil
}

func (s *Server) stepOutput(lib *library.Library, workflow string, step pipeline.Step, ok bool) NudgeStepOutput {
	out := NudgeStepOutput{Workflow: workflow, Done: !ok}
	if !ok {
		return out
	}
	summary := stepSummary(step)
	out.Next = &summary

	res := pipeline.Result{
		Injected:    true,
		Activations: []models.ConstraintActivation{step.Activation},
		Steps:       []pipeline.Step{step},
	}
	out.Reminder = inject.NewCompiler().WithFormat(s.format).Compile(res, lib).Text
	return out
}

func (s *Server) workflowRequest(sessionID string, signals *WorkflowInput) pipeline.Request {
	return pipeline.Request{
		SessionID:     sessionID,
		WorkflowState: signals.state(),
		Evaluation:    signals.evaluation(),
		Dependencies:  signals.dependencies(),
		Library:       s.pipeline.Library(),
	}
}

func summarize(acts []models.ConstraintActivation, lib *library.Library) []ActivationSummary {
	out := make([]ActivationSummary, 0, len(acts))
	for _, a := range acts {
		sum := ActivationSummary{
			ID:         string(a.ConstraintID),
			Confidence: a.ConfidenceScore,
			Reason:     string(a.Reason),
		}
		if c, err := lib.Lookup(a.ConstraintID); err == nil {
			sum.Title = c.Def().Title
		}
		out = append(out, sum)
	}
	return out
}

func stepSummaries(steps []pipeline.Step) []StepSummary {
	if len(steps) == 0 {
		return nil
	}
	out := make([]StepSummary, len(steps))
	for i, st := range steps {
		out[i] = stepSummary(st)
	}
	return out
}

func stepSummary(st pipeline.Step) StepSummary {
	return StepSummary{
		Workflow:     string(st.WorkflowID),
		Kind:         string(st.Kind),
		ConstraintID: string(st.Activation.ConstraintID),
		Reason:       string(st.Activation.Reason),
		Guidance:     st.Guidance,
	}
}

// handleLibraryResource lists every constraint in the active library.
func (s *Server) handleLibraryResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	lib := s.pipeline.Library()

	var sb strings.Builder
	sb.WriteString("# Constraint Library\n\n")
	fmt.Fprintf(&sb, "*%d constraints from %s*\n\n", lib.Len(), pathutil.RedactPath(lib.Source()))

	for _, c := range lib.Snapshot() {
		def := c.Def()
		title := def.Title
		if title == "" {
			title = string(def.ID)
		}
		fmt.Fprintf(&sb, "## %s\n\n", sanitize.Reminder(title))
		fmt.Fprintf(&sb, "**ID:** %s  \n**Priority:** %.2f\n", def.ID, float64(def.Priority))
		if comp, ok := c.(*models.CompositeConstraint); ok {
			fmt.Fprintf(&sb, "**Composition:** %s of %s\n", comp.Composition(), joinIDs(comp.Components()))
		}
		for _, r := range def.Reminders {
			fmt.Fprintf(&sb, "- %s\n", sanitize.Reminder(r))
		}
		sb.WriteString("\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: libraryURI, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

// handleConstraintResource returns the full definition of one constraint.
// URI format: nudge://constraints/{id}
func (s *Server) handleConstraintResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, constraintURIBase)
	if !ok {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	if id == "" {
		return nil, fmt.Errorf("constraint ID is required")
	}

	c, err := s.pipeline.Library().Lookup(models.ConstraintID(id))
	if err != nil {
		return nil, sdk.ResourceNotFoundError(uri)
	}
	def := c.Def()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Constraint: %s\n\n", def.ID)
	if def.Title != "" {
		fmt.Fprintf(&sb, "**Title:** %s\n", sanitize.Reminder(def.Title))
	}
	fmt.Fprintf(&sb, "**Priority:** %.2f\n", float64(def.Priority))
	if len(def.Phases) > 0 {
		fmt.Fprintf(&sb, "**Phases:** %s\n", strings.Join(def.Phases, ", "))
	}
	if t := def.Trigger; t != nil {
		sb.WriteString("\n## Trigger\n\n")
		writeList(&sb, "Keywords", t.Keywords)
		writeList(&sb, "File patterns", t.FilePatterns)
		writeList(&sb, "Context patterns", t.ContextPatterns)
		writeList(&sb, "Anti-patterns", t.AntiPatterns)
		fmt.Fprintf(&sb, "- **Confidence threshold:** %.2f\n", t.ConfidenceThreshold)
	}
	if len(def.Reminders) > 0 {
		sb.WriteString("\n## Reminders\n\n")
		for _, r := range def.Reminders {
			fmt.Fprintf(&sb, "- %s\n", sanitize.Reminder(r))
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "- **%s:** %s\n", label, strings.Join(items, ", "))
}

func joinIDs(ids []models.ConstraintID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
