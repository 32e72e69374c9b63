package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ledger/internal/hook"
	"github.com/joescharf/ledger/internal/llm"
)

var (
	hooksForce   bool
	hooksBinary  string
	hooksContext string
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage the post-commit hook",
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the post-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return hooksInstallRun()
	},
}

var hooksUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the post-commit hook installed by ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return hooksUninstallRun()
	},
}

var hooksRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Record a trace for HEAD and mirror it to ai/<branch>",
	Long: `Run the post-commit work for HEAD: write the commit trace, consume any
pending annotation and move ai/<branch> to the new commit. Commits on ai/*
branches are skipped. Invoked by the installed hook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hooksRunRun(commandContext(cmd))
	},
}

func init() {
	hooksInstallCmd.Flags().BoolVar(&hooksForce, "force", false, "Overwrite an existing post-commit hook")
	hooksInstallCmd.Flags().StringVar(&hooksBinary, "binary", "", "Path of the ledger binary the hook runs (default: this executable)")
	hooksRunCmd.Flags().StringVar(&hooksContext, "context", "", "Extra context passed to the summarizer")

	hooksCmd.AddCommand(hooksInstallCmd)
	hooksCmd.AddCommand(hooksUninstallCmd)
	hooksCmd.AddCommand(hooksRunCmd)
	rootCmd.AddCommand(hooksCmd)
}

func hooksInstallRun() error {
	binary := hooksBinary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		binary = exe
	}
	dir, err := hook.HooksDir(gitClient, repoDir())
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would install %s hook in %s running %s", hook.HookName, dir, binary)
		return nil
	}

	path, installed, err := hook.Install(dir, binary, hooksForce)
	if err != nil {
		return err
	}
	if !installed {
		ui.Warning("Hook already exists at %s (use --force to overwrite)", path)
		return nil
	}
	ui.Success("Installed %s", path)
	return nil
}

func hooksUninstallRun() error {
	dir, err := hook.HooksDir(gitClient, repoDir())
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would remove %s hook from %s", hook.HookName, dir)
		return nil
	}

	path, err := hook.Uninstall(dir)
	if err != nil {
		return err
	}
	ui.Success("Removed %s", path)
	return nil
}

func hooksRunRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	runner := &hook.Runner{
		Store: s,
		Git:   gitClient,
		Dir:   repoDir(),
		Config: hook.Config{
			LedgerCommits: viper.GetBool("hook.ledger_commits"),
			LLMSummary:    viper.GetBool("hook.llm_summary"),
			MaxDiffChars:  viper.GetInt("hook.max_diff_chars"),
			ExtraContext:  hooksContext,
		},
	}
	if runner.Config.LLMSummary {
		if key := viper.GetString("anthropic.api_key"); key != "" {
			runner.Summarizer = llm.NewClient(key, viper.GetString("anthropic.model"))
		} else {
			slog.Warn("hook.llm_summary is set but anthropic.api_key is empty")
		}
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(result)
	}
	if result.Skipped {
		ui.VerboseLog("Skipped: %s", result.SkipReason)
		return nil
	}
	ui.VerboseLog("Trace %s", result.TraceKey)
	ui.VerboseLog("Mirrored %s to %s", result.MirrorBranch, result.MirrorTip)
	return nil
}
