package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/output"
)

var conflictReason string

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Inspect or resume a paused session",
}

var conflictStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the conflict state of a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictStatusRun(commandContext(cmd))
	},
}

var conflictResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Mark a paused session as resumed",
	Long: `Mark a session paused for human resolution as resumed. The next
'ledger status' that finds the branches in sync marks it resolved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return conflictResumeRun(commandContext(cmd))
	},
}

func init() {
	conflictResumeCmd.Flags().StringVar(&conflictReason, "reason", "", "Reason for resuming")
	conflictCmd.AddCommand(conflictStatusCmd)
	conflictCmd.AddCommand(conflictResumeCmd)
	rootCmd.AddCommand(conflictCmd)
}

func conflictStatusRun(ctx context.Context) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	state, err := m.ConflictStatus(ctx, sessionID)
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(state)
	}
	printConflict(state)
	return nil
}

func conflictResumeRun(ctx context.Context) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	if dryRun {
		c, err := m.Resolve(ctx, sessionID)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would mark conflict of %s resumed", c.SessionID)
		return nil
	}

	state, err := m.ResumeConflict(ctx, sessionID, conflictReason)
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(state)
	}
	ui.Success("Session %s resumed", output.Cyan(state.SessionID))
	return nil
}

func printConflict(state *models.ConflictState) {
	fmt.Fprintf(ui.Out, "Session:  %s\n", output.Cyan(state.SessionID))
	fmt.Fprintf(ui.Out, "Status:   %s\n", output.StatusColor(string(state.Status)))
	if state.SourceBranch != "" {
		fmt.Fprintf(ui.Out, "Branches: %s -> %s\n", state.SourceBranch, state.AIBranch)
	}
	if state.Reason != "" {
		fmt.Fprintf(ui.Out, "Reason:   %s\n", state.Reason)
	}
	if !state.UpdatedAt.IsZero() {
		fmt.Fprintf(ui.Out, "Updated:  %s\n", formatActivity(state.UpdatedAt))
	}
	for _, c := range state.Conflicts {
		fmt.Fprintf(ui.Out, "  %s  %s\n", c.Type, c.File)
	}
}
