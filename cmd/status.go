package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/ledger/internal/output"
	"github.com/joescharf/ledger/internal/policy"
	"github.com/joescharf/ledger/internal/sessions"
)

var statusApply bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show divergence and the tracking policy's recommendation",
	Long: `Compare the session's human branch with its ai/* mirror and show what
the tracking policy recommends.

With --apply, a fast-forward of the ai branch is performed. Rebases and
merges are never run for you; their git commands are printed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(commandContext(cmd), statusApply)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusApply, "apply", false, "Fast-forward the ai branch when the policy allows it")
	rootCmd.AddCommand(statusCmd)
}

func statusRun(ctx context.Context, apply bool) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	var result *sessions.CheckResult
	switch {
	case dryRun:
		result, err = m.Preview(ctx, sessionID)
	case apply:
		result, err = m.Apply(ctx, sessionID)
	default:
		result, err = m.Check(ctx, sessionID)
	}
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(result)
	}

	div := result.Divergence
	fmt.Fprintf(ui.Out, "Session:    %s\n", output.Cyan(result.SessionID))
	fmt.Fprintf(ui.Out, "Branches:   %s <-> %s\n", result.HumanBranch, result.AIBranch)
	fmt.Fprintf(ui.Out, "Divergence: %s (human +%d, ai +%d)\n",
		output.StatusColor(string(div.Status)), div.AheadHuman, div.AheadAI)
	ui.VerboseLog("merge base %s, recommendation %s", div.MergeBase, div.Recommendation)
	fmt.Fprintf(ui.Out, "Policy:     %s (%s)\n", result.Resolution.Policy, result.PolicySource)
	fmt.Fprintf(ui.Out, "Action:     %s\n", output.ActionColor(string(result.Resolution.Action)))
	fmt.Fprintf(ui.Out, "Reason:     %s\n", result.Resolution.Reason)

	if result.Conflict != nil {
		fmt.Fprintf(ui.Out, "Conflict:   %s\n", output.StatusColor(string(result.Conflict.Status)))
	}

	if ui.Verbose && div.MergeBase != "" && div.AheadAI > 0 {
		if files, err := gitClient.DiffNameOnly(repoDir(), div.MergeBase, result.AIBranch); err == nil {
			ui.VerboseLog("AI-only changes since %s:", div.MergeBase)
			for _, f := range files {
				ui.VerboseLog("  %s", f)
			}
		}
	}

	switch {
	case result.Applied:
		ui.Success("Fast-forwarded %s to %s", result.AIBranch, result.HumanBranch)
	case apply && dryRun && result.Resolution.Action == policy.ActionFastForwardAI:
		ui.DryRunMsg("Would fast-forward %s to %s", result.AIBranch, result.HumanBranch)
	case len(result.SuggestedCommands) > 0:
		fmt.Fprintln(ui.Out)
		ui.Info("Suggested commands:")
		for _, c := range result.SuggestedCommands {
			fmt.Fprintf(ui.Out, "  %s\n", c)
		}
	}
	return nil
}
