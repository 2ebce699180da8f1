package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/nudge/internal/composition"
	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/session"
	"github.com/spf13/cobra"
)

// stepOutput is the JSON shape of the workflow commands.
type stepOutput struct {
	Workflow string         `json:"workflow"`
	Done     bool           `json:"done"`
	OK       *bool          `json:"ok,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Next     *pipeline.Step `json:"next,omitempty"`
}

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Drive composition workflows step by step",
		Long: `Composite constraints (sequential, progressive, layered) keep per-session
progress. These commands ask a workflow for its next step, mark a step as
completed and jump between progressive stages.`,
	}

	cmd.PersistentFlags().String("session", "", "Session id (required)")
	cmd.PersistentFlags().String("state", "", "Named workflow state such as red or green")
	cmd.PersistentFlags().String("eval-state", "", "Outcome of the latest check, such as failing or passing")
	cmd.PersistentFlags().Bool("eval-ok", false, "Whether the latest check succeeded")
	cmd.PersistentFlags().StringArray("dep", nil, "Observed dependency as source=target (repeatable)")

	cmd.AddCommand(
		newWorkflowNextCmd(),
		newWorkflowAdvanceCmd(),
		newWorkflowSkipCmd(),
	)
	return cmd
}

func newWorkflowNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <workflow>",
		Short: "Show the step a workflow mandates now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], func(p *pipeline.Pipeline, req pipeline.Request, sess *session.Context) (stepOutput, error) {
				step, ok, err := p.NextStep(req, sess, models.ConstraintID(args[0]))
				return stepResult(args[0], step, ok), err
			})
		},
	}
}

func newWorkflowAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <workflow> <completed-constraint>",
		Short: "Mark a step as completed and show the next one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], func(p *pipeline.Pipeline, req pipeline.Request, sess *session.Context) (stepOutput, error) {
				step, ok, err := p.Advance(req, sess, models.ConstraintID(args[0]), models.ConstraintID(args[1]))
				return stepResult(args[0], step, ok), err
			})
		},
	}
}

func newWorkflowSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip <workflow> <stage>",
		Short: "Jump a progressive workflow to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid stage %q: %w", args[1], err)
			}
			return runWorkflow(cmd, args[0], func(p *pipeline.Pipeline, req pipeline.Request, sess *session.Context) (stepOutput, error) {
				out, err := p.SkipStage(req, sess, models.ConstraintID(args[0]), target)
				if err != nil {
					return stepOutput{}, err
				}
				ok := out.OK
				return stepOutput{
					Workflow: args[0],
					Done:     out.OK && out.Next == nil,
					OK:       &ok,
					Reason:   out.Reason,
					Next:     out.Next,
				}, nil
			})
		},
	}
}

func stepResult(workflow string, step pipeline.Step, ok bool) stepOutput {
	out := stepOutput{Workflow: workflow, Done: !ok}
	if ok {
		out.Next = &step
	}
	return out
}

// runWorkflow runs fn against the --session session and prints its outcome.
func runWorkflow(cmd *cobra.Command, workflow string, fn func(*pipeline.Pipeline, pipeline.Request, *session.Context) (stepOutput, error)) error {
	req, err := workflowRequest(cmd)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var out stepOutput
	err = rt.sessions.Do(cmd.Context(), req.SessionID, func(sess *session.Context) error {
		var err error
		out, err = fn(rt.pipeline, req, sess)
		return err
	})
	if err != nil {
		return err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		return printJSON(cmd, out)
	}

	w := cmd.OutOrStdout()
	if out.OK != nil && !*out.OK {
		fmt.Fprintf(w, "Skip refused: %s\n", out.Reason)
		return nil
	}
	if out.Next == nil {
		fmt.Fprintf(w, "Workflow %s is complete.\n", workflow)
		return nil
	}

	lib := rt.pipeline.Library()
	id := out.Next.Activation.ConstraintID
	line := id.String()
	if c, err := lib.Lookup(id); err == nil && c.Def().Title != "" {
		line = fmt.Sprintf("%s (%s)", c.Def().Title, id)
	}
	fmt.Fprintf(w, "Next step in %s: %s [%s]\n", workflow, line, out.Next.Activation.Reason)
	for _, r := range lib.Reminders(id) {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	if out.Next.Guidance != "" {
		fmt.Fprintf(w, "  > %s\n", out.Next.Guidance)
	}
	return nil
}

// workflowRequest builds the signals shared by the workflow commands.
func workflowRequest(cmd *cobra.Command) (pipeline.Request, error) {
	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		return pipeline.Request{}, fmt.Errorf("--session is required")
	}
	state, _ := cmd.Flags().GetString("state")
	evalState, _ := cmd.Flags().GetString("eval-state")
	evalOK, _ := cmd.Flags().GetBool("eval-ok")
	rawDeps, _ := cmd.Flags().GetStringArray("dep")

	deps := make([]composition.CodeDependency, 0, len(rawDeps))
	for _, d := range rawDeps {
		source, target, ok := strings.Cut(d, "=")
		if !ok || source == "" || target == "" {
			return pipeline.Request{}, fmt.Errorf("invalid --dep %q: expected source=target", d)
		}
		deps = append(deps, composition.CodeDependency{Source: source, Target: target})
	}

	return pipeline.Request{
		SessionID:     sessionID,
		WorkflowState: state,
		Evaluation:    composition.EvaluationStatus{State: evalState, IsSuccessful: evalOK},
		Dependencies:  deps,
	}, nil
}
