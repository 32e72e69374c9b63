package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/git"
	"github.com/joescharf/ledger/internal/hook"
	"github.com/joescharf/ledger/internal/llm"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/output"
	"github.com/joescharf/ledger/internal/policy"
	"github.com/joescharf/ledger/internal/sessions"
	"github.com/joescharf/ledger/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui          *output.UI
	ledgerStore store.Store
	gitClient   git.Client = git.NewClient()

	verbose   bool
	dryRun    bool
	jsonOut   bool
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Session ledger for AI-assisted git work",
	Long: `ledger keeps ai/* branches alongside your human branches.
It records sessions, commit traces and pending prompt annotations in
.codex-ledger, detects divergence between a branch and its ai/* mirror,
and tells you what the configured tracking policy would do about it.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging, initDeps)
	cobra.OnFinalize(closeStore)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "Session ID (default: inferred from the current branch)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <repo>/.codex-ledger/config.yaml)")
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	viper.SetDefault("ledger.dir", store.DefaultDir)
	viper.SetDefault("ledger.backend", store.BackendFile)
	viper.SetDefault("ledger.lock", false)
	viper.SetDefault("session.tracking_policy", string(policy.DefaultPolicy))
	viper.SetDefault("session.base_branch", "")
	viper.SetDefault("divergence.max_skip_depth", divergence.DefaultMaxLedgerSkipDepth)
	viper.SetDefault("hook.ledger_commits", false)
	viper.SetDefault("hook.llm_summary", false)
	viper.SetDefault("hook.max_diff_chars", hook.DefaultMaxDiffChars)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", llm.DefaultModel)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(filepath.Join(repoDir(), store.DefaultDir))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CODEX_LEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run outside a repository.
}

func closeStore() {
	if ledgerStore == nil {
		return
	}
	if err := ledgerStore.Close(); err != nil {
		slog.Warn("close ledger store", "error", err)
	}
	ledgerStore = nil
}

// rootRun handles `ledger` with no subcommand: show the current session's
// status when one resolves, help otherwise.
func rootRun(cmd *cobra.Command) error {
	m, err := getManager()
	if err != nil {
		return cmd.Help()
	}
	if _, err := m.Resolve(commandContext(cmd), sessionID); err != nil {
		return cmd.Help()
	}
	return statusRun(commandContext(cmd), false)
}

// repoDirFunc returns the repository directory, replaceable in tests.
var repoDirFunc = defaultRepoDir

func repoDir() string { return repoDirFunc() }

// defaultRepoDir returns the root of the repository containing the working
// directory, or the working directory itself outside a repository.
func defaultRepoDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root, err := gitClient.RepoRoot(cwd); err == nil && root != "" {
		return root
	}
	return cwd
}

// ledgerRoot resolves ledger.dir against the repository root.
func ledgerRoot() string {
	dir := viper.GetString("ledger.dir")
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(repoDir(), dir)
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if ledgerStore != nil {
		return ledgerStore, nil
	}

	s, err := store.Open(store.Config{
		Root:    ledgerRoot(),
		Backend: viper.GetString("ledger.backend"),
		Lock:    viper.GetBool("ledger.lock"),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	ledgerStore = s
	return ledgerStore, nil
}

// configuredPolicy returns session.tracking_policy, validated.
func configuredPolicy() (models.TrackingPolicy, error) {
	p, err := policy.ParseTrackingPolicy(viper.GetString("session.tracking_policy"), policy.DefaultPolicy)
	if err != nil {
		return "", fmt.Errorf("session.tracking_policy: %w", err)
	}
	return p, nil
}

// getManager builds a sessions manager for the current repository.
func getManager() (*sessions.Manager, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	p, err := configuredPolicy()
	if err != nil {
		return nil, err
	}
	return sessions.NewManager(s, gitClient, repoDir(), sessions.Config{
		DefaultPolicy:      p,
		BaseBranch:         viper.GetString("session.base_branch"),
		MaxLedgerSkipDepth: viper.GetInt("divergence.max_skip_depth"),
	}), nil
}

// commandContext returns cmd's context, or Background when run directly.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
