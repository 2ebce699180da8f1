package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/session"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and clear session state",
	}
	cmd.AddCommand(
		newSessionShowCmd(),
		newSessionHistoryCmd(),
		newSessionResetCmd(),
		newSessionListCmd(),
	)
	return cmd
}

// sessionView is the JSON shape of session show.
type sessionView struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	ToolCalls           int       `json:"tool_calls"`
	Activations         int       `json:"activations"`
	ActivityPattern     string    `json:"activity_pattern"`
	DominantContextType string    `json:"dominant_context_type"`
	Workflows           []string  `json:"workflows,omitempty"`
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show a session's counters and classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd, args[0])
			if err != nil {
				return err
			}

			view := sessionView{
				ID:                  snap.ID,
				CreatedAt:           snap.CreatedAt,
				ToolCalls:           snap.ToolCalls,
				Activations:         len(snap.History),
				ActivityPattern:     snap.ActivityPattern,
				DominantContextType: snap.DominantContextType,
			}
			for id := range snap.Workflows {
				view.Workflows = append(view.Workflows, id.String())
			}
			sort.Strings(view.Workflows)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, view)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Session:      %s\n", view.ID)
			fmt.Fprintf(w, "Created:      %s\n", view.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Tool calls:   %d\n", view.ToolCalls)
			fmt.Fprintf(w, "Activations:  %d\n", view.Activations)
			fmt.Fprintf(w, "Pattern:      %s\n", view.ActivityPattern)
			fmt.Fprintf(w, "Context type: %s\n", view.DominantContextType)
			if len(view.Workflows) > 0 {
				fmt.Fprintf(w, "Workflows:    %v\n", view.Workflows)
			}
			return nil
		},
	}
}

func newSessionHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session>",
		Short: "List a session's activations, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative, got %d", limit)
			}

			history, err := loadHistory(cmd, args[0], limit)
			if err != nil {
				return err
			}
			if history == nil {
				history = []models.ConstraintActivation{}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, history)
			}
			if len(history) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activations recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCONSTRAINT\tCONFIDENCE\tREASON")
			for _, a := range history {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", a.Timestamp.Format(time.RFC3339), a.ConstraintID, a.ConfidenceScore, a.Reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 0, "Number of most recent activations (0 for all)")
	return cmd
}

func newSessionResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session>",
		Short: "Clear a session's history, counters and workflow progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.sessions.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]string{"session_id": args[0], "status": "reset"})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s cleared.\n", args[0])
			return nil
		},
	}
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.sqlite == nil {
				return fmt.Errorf("session list needs the sqlite store driver")
			}
			sessions, err := rt.sqlite.List(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions stored.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tTOOL CALLS\tACTIVATIONS\tPATTERN\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.ID, s.ToolCalls, s.Activations, s.ActivityPattern, s.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

// loadSnapshot reads session id through the registry.
func loadSnapshot(cmd *cobra.Command, id string) (session.Snapshot, error) {
	rt, err := openRuntime(cmd)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer rt.Close()

	var snap session.Snapshot
	err = rt.sessions.Do(cmd.Context(), id, func(sess *session.Context) error {
		snap = sess.Snapshot()
		return nil
	})
	return snap, err
}

// loadHistory reads the activation history, straight from the database when
// the sqlite driver is in use.
func loadHistory(cmd *cobra.Command, id string, limit int) ([]models.ConstraintActivation, error) {
	rt, err := openRuntime(cmd)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	if rt.sqlite != nil {
		return rt.sqlite.History(cmd.Context(), id, limit)
	}

	var history []models.ConstraintActivation
	err = rt.sessions.Do(cmd.Context(), id, func(sess *session.Context) error {
		history = sess.History()
		return nil
	})
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, err
}
