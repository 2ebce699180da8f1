package main

import (
	"context"
	"fmt"

	"github.com/nvandessel/nudge/internal/inject"
	"github.com/nvandessel/nudge/internal/mcp"
	"github.com/nvandessel/nudge/internal/store"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve nudge to agents over the Model Context Protocol (stdio)",
		Long: `Run a long-lived MCP server on stdin/stdout. Sessions stay in memory
between calls and are persisted to the configured store, so hooks and the
server can share them.

Tool calls are audited to .nudge/audit.jsonl without their free text.
With library.watch enabled the constraint library is reloaded when its file
changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := compilerFromFlags(cmd); err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			maxTokens, _ := cmd.Flags().GetInt("max-tokens")

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := &mcp.Config{
				Name:      "nudge",
				Version:   version,
				Root:      rt.root,
				Pipeline:  rt.pipeline,
				Sessions:  rt.sessions,
				Format:    inject.Format(format),
				MaxTokens: maxTokens,
				AuditDir:  store.LocalNudgePath(rt.root),
				Logger:    rt.logger,
			}
			if rt.cfg.Library.Watch && rt.file != nil {
				cfg.Watch = rt.file
			}

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("creating mcp server: %w", err)
			}
			defer server.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt.logger.Info("mcp server starting", "root", rt.root, "library", rt.pipeline.Library().Source(), "watch", cfg.Watch != nil)
			return server.Run(ctx)
		},
	}
	cmd.Flags().String("format", string(inject.FormatMarkdown), "Default reminder format: markdown, xml, plain")
	cmd.Flags().Int("max-tokens", 0, "Token budget for reminders (0 for no limit)")
	cmd.Flags().Bool("log-json", false, "Write logs to stderr as JSON")
	return cmd
}
