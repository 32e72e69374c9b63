package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/ledger/internal/output"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show or set a session's tracking policy",
	Long: `Show or set the tracking policy that decides how a session's ai/*
branch follows its human branch.

  mirror-only  fast-forward the ai branch; pause on AI-only commits
  rebase-ai    replay AI-only commits on top of the human branch
  merge-ai     merge the human branch into the ai branch
  manual       always pause for a human`,
}

var policyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the effective tracking policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return policyGetRun(commandContext(cmd))
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <policy>",
	Short: "Set the session's tracking policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return policySetRun(commandContext(cmd), args[0])
	},
}

func init() {
	policyCmd.AddCommand(policyGetCmd)
	policyCmd.AddCommand(policySetCmd)
	rootCmd.AddCommand(policyCmd)
}

func policyGetRun(ctx context.Context) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	info, err := m.EffectivePolicy(ctx, sessionID)
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(info)
	}
	if info.SessionID != "" {
		fmt.Fprintf(ui.Out, "Session: %s\n", output.Cyan(info.SessionID))
	}
	fmt.Fprintf(ui.Out, "Policy:  %s (%s)\n", info.Policy, info.Source)
	return nil
}

func policySetRun(ctx context.Context, value string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	if dryRun {
		c, err := m.Resolve(ctx, sessionID)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would set tracking policy of %s to %s", c.SessionID, value)
		return nil
	}

	s, err := m.SetPolicy(ctx, sessionID, value)
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(s)
	}
	ui.Success("Session %s now uses %s", output.Cyan(s.SessionID), s.TrackingPolicy)
	return nil
}
