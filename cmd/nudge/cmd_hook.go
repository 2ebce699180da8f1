package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/nudge/internal/activation"
	"github.com/nvandessel/nudge/internal/inject"
	"github.com/nvandessel/nudge/internal/pathutil"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/sanitize"
	"github.com/spf13/cobra"
)

// hookDefaultSession is used when the agent sends no session id.
const hookDefaultSession = "default"

// newHookCmd creates the parent 'hook' command with subcommands for each
// agent hook event.
func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook subcommands for agent integration",
		Long: `Hook handlers read the event JSON the agent writes to stdin and print the
reminder to inject, if any.

Hooks fail open: malformed input, a broken config or a slow evaluation
never blocks the agent. They print nothing instead.`,
	}

	cmd.AddCommand(
		newHookPreToolUseCmd(),
		newHookUserPromptCmd(),
	)
	return cmd
}

// hookToolEvent is the PreToolUse payload.
type hookToolEvent struct {
	SessionID string                 `json:"session_id"`
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]interface{} `json:"tool_input"`
}

// hookPromptEvent is the UserPromptSubmit payload.
type hookPromptEvent struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// hookOutput is the structured reply for tool hooks.
type hookOutput struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

func newHookPreToolUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pre-tool-use",
		Short: "Remind constraints before a tool call",
		RunE: func(cmd *cobra.Command, args []string) error {
			var input hookToolEvent
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&input); err != nil {
				return nil // invalid input, exit silently
			}
			if input.ToolName == "" {
				return nil
			}

			text, ok := runHook(cmd, input.SessionID, func(root string) pipeline.Request {
				return pipeline.Request{
					Method:   input.ToolName,
					Params:   input.ToolInput,
					FilePath: pathutil.ProjectRelative(root, activation.ExtractFilePath(input.ToolInput)),
				}
			})
			if !ok {
				return nil
			}

			var out hookOutput
			out.HookSpecificOutput.HookEventName = "PreToolUse"
			out.HookSpecificOutput.AdditionalContext = text
			return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
		},
	}
	cmd.Flags().String("format", string(inject.FormatMarkdown), "Reminder format: markdown, xml, plain")
	cmd.Flags().Int("max-tokens", 0, "Token budget for the reminder (0 for no limit)")
	return cmd
}

func newHookUserPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user-prompt",
		Short: "Remind constraints when the user submits a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			var input hookPromptEvent
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&input); err != nil {
				return nil
			}
			if input.Prompt == "" {
				return nil
			}

			text, ok := runHook(cmd, input.SessionID, func(string) pipeline.Request {
				return pipeline.Request{Text: sanitize.Input(input.Prompt)}
			})
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().String("format", string(inject.FormatMarkdown), "Reminder format: markdown, xml, plain")
	cmd.Flags().Int("max-tokens", 0, "Token budget for the reminder (0 for no limit)")
	return cmd
}

// runHook evaluates the request built by build and returns the rendered
// reminder. Every failure is logged and reported as nothing to inject.
func runHook(cmd *cobra.Command, sessionID string, build func(root string) pipeline.Request) (string, bool) {
	compiler, err := compilerFromFlags(cmd)
	if err != nil {
		return "", false
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "nudge: hook skipped: %v\n", err)
		return "", false
	}
	defer rt.Close()

	if sessionID == "" {
		sessionID = hookDefaultSession
	}
	req := build(rt.root)
	req.SessionID = sessionID

	res, err := evaluate(cmd.Context(), rt, req)
	if err != nil {
		rt.logger.Warn("hook evaluation failed", "session", sessionID, "error", err)
		return "", false
	}
	if res.TimedOut {
		rt.logger.Debug("hook evaluation timed out", "session", sessionID)
	}

	text := compiler.Compile(res, rt.pipeline.Library()).Text
	return text, text != ""
}
