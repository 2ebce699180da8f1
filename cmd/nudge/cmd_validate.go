package main

import (
	"fmt"

	"github.com/nvandessel/nudge/internal/library"
	"github.com/spf13/cobra"
)

// validateReport is the JSON shape of validate.
type validateReport struct {
	Valid       bool             `json:"valid"`
	Source      string           `json:"source,omitempty"`
	Constraints int              `json:"constraints"`
	Workflows   []workflowReport `json:"workflows,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type workflowReport struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Members []string `json:"members"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [library.yaml]",
		Short: "Validate the configuration and a constraint library",
		Long: `Validate the configuration and a constraint library.

This command checks for:
  - Invalid configuration values
  - Malformed constraint definitions (ids, priorities, thresholds)
  - Composite constraints referring to unknown components
  - Invalid workflow definitions (stages, layers, state machines)

Without an argument the configured library is checked, or the built-in one.

Examples:
  nudge validate
  nudge validate constraints.yaml --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			path := cfg.Library.Path
			if len(args) == 1 {
				path = args[0]
			}

			var lib *library.Library
			if path == "" {
				lib = library.Default()
			} else {
				lib, err = library.Load(path)
			}
			if err != nil {
				if jsonOut {
					if perr := printJSON(cmd, validateReport{Source: path, Error: err.Error()}); perr != nil {
						return perr
					}
				}
				return fmt.Errorf("validation failed: %w", err)
			}

			report := validateReport{
				Valid:       true,
				Source:      lib.Source(),
				Constraints: lib.Len(),
			}
			for _, wf := range lib.Workflows() {
				wr := workflowReport{ID: wf.ID().String(), Kind: string(wf.Kind())}
				for _, m := range wf.Members() {
					wr.Members = append(wr.Members, m.String())
				}
				report.Workflows = append(report.Workflows, wr)
			}

			if jsonOut {
				return printJSON(cmd, report)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "✓ %s: %d constraints, %d workflows\n", report.Source, report.Constraints, len(report.Workflows))
			for _, wr := range report.Workflows {
				fmt.Fprintf(w, "  %s (%s): %v\n", wr.ID, wr.Kind, wr.Members)
			}
			return nil
		},
	}
	return cmd
}
