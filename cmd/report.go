package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/output"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Store and read session reports",
	Long: `Session reports (timeline, diff-report, explain) are markdown files kept
under .codex-ledger/reports. The ledger stores them; other tools render them.`,
}

var reportListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the reports stored for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun(commandContext(cmd))
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <kind>",
	Short: "Print a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportShowRun(commandContext(cmd), args[0])
	},
}

var reportSaveCmd = &cobra.Command{
	Use:   "save <kind> [file]",
	Short: "Store a report from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 2 && args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			in = f
		}
		return reportSaveRun(commandContext(cmd), args[0], in)
	},
}

func init() {
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportSaveCmd)
	rootCmd.AddCommand(reportCmd)
}

func parseReportKind(s string) (models.ReportKind, error) {
	if !models.IsReportKind(s) {
		return "", fmt.Errorf("unknown report kind %q (expected timeline, diff-report or explain): %w", s, errs.ErrInvalidInput)
	}
	return models.ReportKind(s), nil
}

// reportSession resolves the session reports are filed under.
func reportSession(ctx context.Context) (string, error) {
	m, err := getManager()
	if err != nil {
		return "", err
	}
	c, err := m.Resolve(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return c.SessionID, nil
}

func reportListRun(ctx context.Context) error {
	sid, err := reportSession(ctx)
	if err != nil {
		return err
	}
	kinds, err := ledgerStore.ListReports(ctx, sid)
	if err != nil {
		return err
	}

	if jsonOut {
		if kinds == nil {
			kinds = []models.ReportKind{}
		}
		return ui.JSON(kinds)
	}
	if len(kinds) == 0 {
		ui.Info("No reports for session %s", sid)
		return nil
	}
	for _, k := range kinds {
		fmt.Fprintf(ui.Out, "%s\n", k)
	}
	return nil
}

func reportShowRun(ctx context.Context, kindArg string) error {
	kind, err := parseReportKind(kindArg)
	if err != nil {
		return err
	}
	sid, err := reportSession(ctx)
	if err != nil {
		return err
	}
	content, err := ledgerStore.ReadReport(ctx, sid, kind)
	if err != nil {
		return err
	}
	_, err = io.WriteString(ui.Out, content)
	return err
}

func reportSaveRun(ctx context.Context, kindArg string, in io.Reader) error {
	kind, err := parseReportKind(kindArg)
	if err != nil {
		return err
	}
	sid, err := reportSession(ctx)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would store %s report for session %s (%d bytes)", kind, sid, len(data))
		return nil
	}

	if err := ledgerStore.EnsureStore(ctx); err != nil {
		return err
	}
	key, err := ledgerStore.WriteReport(ctx, sid, kind, string(data))
	if err != nil {
		return err
	}
	ui.Success("Stored %s report at %s", output.Cyan(string(kind)), key)
	return nil
}
