package main

import (
	"fmt"
	"path/filepath"

	"github.com/nvandessel/nudge/internal/config"
	"github.com/nvandessel/nudge/internal/hooks"
	"github.com/nvandessel/nudge/internal/store"
	"github.com/spf13/cobra"
)

// initResult is the JSON shape of init.
type initResult struct {
	ConfigPath    string                  `json:"config_path"`
	ConfigCreated bool                    `json:"config_created"`
	Hooks         []hooks.ConfigureResult `json:"hooks"`
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and install agent hooks",
		Long: `Create .nudge/config.yaml with the default settings (an existing file is
left alone) and install nudge's hooks into every detected agent platform.
When no platform is detected, Claude Code is configured.

Examples:
  nudge init                  # Project: .nudge/ and .claude/settings.json
  nudge init --global         # User: ~/.nudge/ and ~/.claude/settings.json
  nudge init --no-hooks       # Config only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			global, _ := cmd.Flags().GetBool("global")
			noHooks, _ := cmd.Flags().GetBool("no-hooks")
			command, _ := cmd.Flags().GetString("command")
			jsonOut, _ := cmd.Flags().GetBool("json")

			nudgeDir := store.LocalNudgePath(root)
			hookRoot := root
			if global {
				dir, err := store.GlobalNudgePath()
				if err != nil {
					return err
				}
				nudgeDir = dir
				hookRoot = filepath.Dir(dir)
			}

			res := initResult{ConfigPath: filepath.Join(nudgeDir, "config.yaml")}
			created, err := config.WriteDefault(res.ConfigPath)
			if err != nil {
				return err
			}
			res.ConfigCreated = created

			if !noHooks {
				platforms := hooks.DetectAll(hookRoot)
				if len(platforms) == 0 {
					if err := hooks.EnsureClaudeDir(hookRoot); err != nil {
						return fmt.Errorf("creating .claude directory: %w", err)
					}
					platforms = hooks.DetectAll(hookRoot)
				}
				for _, d := range platforms {
					r := hooks.ConfigurePlatform(d.Platform, hookRoot, command)
					if r.Error != nil {
						return fmt.Errorf("configuring %s: %w", r.Platform, r.Error)
					}
					res.Hooks = append(res.Hooks, r)
				}
			}

			if jsonOut {
				return printJSON(cmd, res)
			}
			w := cmd.OutOrStdout()
			if res.ConfigCreated {
				fmt.Fprintf(w, "✓ Created %s\n", res.ConfigPath)
			} else {
				fmt.Fprintf(w, "  Kept existing %s\n", res.ConfigPath)
			}
			for _, r := range res.Hooks {
				verb := "Installed"
				if r.Replaced {
					verb = "Updated"
				}
				fmt.Fprintf(w, "✓ %s %s hooks in %s\n", verb, r.Platform, r.ConfigPath)
			}
			return nil
		},
	}

	cmd.Flags().Bool("global", false, "Configure the user's home directory instead of the project")
	cmd.Flags().Bool("no-hooks", false, "Only write the config file")
	cmd.Flags().String("command", "nudge", "Command the hooks run")
	return cmd
}
