package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ledger/internal/health"
	"github.com/joescharf/ledger/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the repository is ready for the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorRun(commandContext(cmd))
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	checker := health.NewChecker(gitClient, s, repoDir(), health.Settings{
		LedgerRoot:     ledgerRoot(),
		TrackingPolicy: viper.GetString("session.tracking_policy"),
		LLMSummary:     viper.GetBool("hook.llm_summary"),
		APIKey:         viper.GetString("anthropic.api_key"),
		Model:          viper.GetString("anthropic.model"),
	})
	checks := checker.Run(ctx)
	overall := health.Overall(checks)

	if jsonOut {
		if err := ui.JSON(map[string]any{"status": overall, "checks": checks}); err != nil {
			return err
		}
	} else {
		table := ui.Table([]string{"Check", "Status", "Details"})
		for _, c := range checks {
			table.Append([]string{c.Name, output.StatusColor(string(c.Status)), c.Details})
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "Overall: %s\n", output.StatusColor(string(overall)))
	}

	if overall == health.StatusFail {
		return fmt.Errorf("doctor found failing checks")
	}
	return nil
}
