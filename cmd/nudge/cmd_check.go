package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nvandessel/nudge/internal/inject"
	"github.com/nvandessel/nudge/internal/library"
	"github.com/nvandessel/nudge/internal/pathutil"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/sanitize"
	"github.com/nvandessel/nudge/internal/session"
	"github.com/spf13/cobra"
)

// checkOutput is the JSON shape of check and select.
type checkOutput struct {
	SessionID   string             `json:"session_id"`
	Interaction int                `json:"interaction"`
	Injected    bool               `json:"injected"`
	TimedOut    bool               `json:"timed_out,omitempty"`
	ContextType string             `json:"context_type"`
	Activations []activationOutput `json:"activations"`
	Steps       []pipeline.Step    `json:"steps,omitempty"`
	Reminder    string             `json:"reminder,omitempty"`
}

type activationOutput struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one interaction and print the reminder to inject",
		Long: `Score every constraint against a tool call or a piece of text and print
the reminder for this interaction. The interaction counts toward the
session's cadence, so most calls print nothing.

Examples:
  nudge check --session s1 --tool write_file --param path=src/user_test.go
  nudge check --session s1 --text "add a hotfix for the login bug"
  nudge check --session s1 --text "write the tests" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, _ := cmd.Flags().GetString("tool")
			rawParams, _ := cmd.Flags().GetStringArray("param")
			text, _ := cmd.Flags().GetString("text")
			file, _ := cmd.Flags().GetString("file")
			phase, _ := cmd.Flags().GetString("phase")
			state, _ := cmd.Flags().GetString("state")

			if tool == "" && text == "" && file == "" {
				return fmt.Errorf("one of --tool, --text or --file is required")
			}
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			return runEvaluation(cmd, rt, pipeline.Request{
				Method:        tool,
				Params:        params,
				Text:          sanitize.Input(text),
				FilePath:      pathutil.ProjectRelative(rt.root, file),
				Phase:         phase,
				WorkflowState: state,
			})
		},
	}

	cmd.Flags().String("session", "", "Session id (a new one is generated when empty)")
	cmd.Flags().String("tool", "", "Name of the tool being called")
	cmd.Flags().StringArray("param", nil, "Tool parameter as key=value (repeatable)")
	cmd.Flags().String("text", "", "Free text such as the user prompt")
	cmd.Flags().String("file", "", "File being worked on")
	cmd.Flags().String("phase", "", "Current workflow phase")
	cmd.Flags().String("state", "", "Named workflow state such as red or green")
	cmd.Flags().String("format", string(inject.FormatMarkdown), "Reminder format: markdown, xml, plain")
	cmd.Flags().Int("max-tokens", 0, "Token budget for the reminder (0 for no limit)")
	return cmd
}

func newSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select constraints for a workflow phase",
		Long: `Pick the highest priority constraints declared for a phase, ignoring
triggers. Like check, the call counts toward the session's cadence.

Examples:
  nudge select --session s1 --phase red
  nudge select --session s1 --phase refactor --top 2 --format plain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, _ := cmd.Flags().GetString("phase")
			top, _ := cmd.Flags().GetInt("top")
			if strings.TrimSpace(phase) == "" {
				return fmt.Errorf("--phase is required")
			}
			if top < 0 {
				return fmt.Errorf("--top must be non-negative, got %d", top)
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			return runEvaluation(cmd, rt, pipeline.Request{
				Path:  pipeline.PathPhase,
				Phase: phase,
				TopK:  top,
			})
		},
	}

	cmd.Flags().String("session", "", "Session id (a new one is generated when empty)")
	cmd.Flags().String("phase", "", "Workflow phase to select for")
	cmd.Flags().Int("top", 0, "Maximum number of constraints (0 uses the active cap)")
	cmd.Flags().String("format", string(inject.FormatMarkdown), "Reminder format: markdown, xml, plain")
	cmd.Flags().Int("max-tokens", 0, "Token budget for the reminder (0 for no limit)")
	return cmd
}

// runEvaluation evaluates req in the --session session, records it and
// prints the result.
func runEvaluation(cmd *cobra.Command, rt *runtime, req pipeline.Request) error {
	compiler, err := compilerFromFlags(cmd)
	if err != nil {
		return err
	}

	req.SessionID, _ = cmd.Flags().GetString("session")
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	res, err := evaluate(cmd.Context(), rt, req)
	if err != nil {
		return err
	}

	lib := rt.pipeline.Library()
	rendered := compiler.Compile(res, lib)

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		return printJSON(cmd, checkOutput{
			SessionID:   res.SessionID,
			Interaction: res.Interaction,
			Injected:    res.Injected,
			TimedOut:    res.TimedOut,
			ContextType: res.Trigger.ContextType,
			Activations: activationOutputs(res, lib),
			Steps:       res.Steps,
			Reminder:    rendered.Text,
		})
	}

	out := cmd.OutOrStdout()
	if !res.Injected {
		fmt.Fprintf(out, "Interaction %d of session %s: no reminder this time.\n", res.Interaction, res.SessionID)
		return nil
	}
	if rendered.Text == "" {
		fmt.Fprintf(out, "Interaction %d of session %s: no constraint applies.\n", res.Interaction, res.SessionID)
		return nil
	}
	fmt.Fprintln(out, rendered.Text)
	return nil
}

// evaluate runs one bounded evaluation and commits it to the session.
func evaluate(ctx context.Context, rt *runtime, req pipeline.Request) (pipeline.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var res pipeline.Result
	err := rt.sessions.Do(ctx, req.SessionID, func(sess *session.Context) error {
		res = rt.pipeline.EvaluateWithin(ctx, req, sess)
		rt.pipeline.Commit(res, sess)
		return nil
	})
	return res, err
}

func compilerFromFlags(cmd *cobra.Command) (*inject.Compiler, error) {
	format, _ := cmd.Flags().GetString("format")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	f := inject.Format(format)
	switch f {
	case inject.FormatMarkdown, inject.FormatXML, inject.FormatPlain:
	default:
		return nil, fmt.Errorf("invalid format %q (valid: markdown, xml, plain)", format)
	}
	return inject.NewCompiler().WithFormat(f).WithMaxTokens(maxTokens), nil
}

func activationOutputs(res pipeline.Result, lib *library.Library) []activationOutput {
	out := make([]activationOutput, 0, len(res.Activations))
	for _, a := range res.Activations {
		item := activationOutput{
			ID:         a.ConstraintID.String(),
			Confidence: a.ConfidenceScore,
			Reason:     string(a.Reason),
		}
		if c, err := lib.Lookup(a.ConstraintID); err == nil {
			item.Title = c.Def().Title
		}
		out = append(out, item)
	}
	return out
}

// parseParams turns key=value pairs into tool parameters.
func parseParams(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		params[strings.TrimSpace(key)] = value
	}
	return params, nil
}
