package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/ledger/internal/store"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	return filepath.Join(repoDir(), store.DefaultDir), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ledger configuration.

Environment variables (CODEX_LEDGER_SESSION_TRACKING_POLICY and so on)
override <repo>/.codex-ledger/config.yaml, which overrides the defaults.

Running bare 'ledger config' is the same as 'ledger config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ledger configuration
# See: ledger config show (for effective values and sources)

ledger:
  # Directory holding sessions, traces and annotations (default: .codex-ledger)
  dir: "{{ .LedgerDir }}"

  # Storage backend: file, sqlite or memory (default: file)
  backend: "{{ .LedgerBackend }}"

  # Serialize writes through a PID lock file (default: false)
  lock: {{ .LedgerLock }}

session:
  # Tracking policy for new sessions: mirror-only, rebase-ai, merge-ai, manual
  tracking_policy: "{{ .TrackingPolicy }}"

  # Base branch for new sessions (default: the current branch)
  base_branch: "{{ .BaseBranch }}"

divergence:
  # How many bookkeeping commits to skip at the ai branch tip (default: 200)
  max_skip_depth: {{ .MaxSkipDepth }}

hook:
  # Append a bookkeeping commit to ai/<branch> after each mirror (default: false)
  ledger_commits: {{ .LedgerCommits }}

  # Ask Anthropic for a commit rationale (default: false)
  llm_summary: {{ .LLMSummary }}

  # Diff characters sent to the summarizer (default: 8000)
  max_diff_chars: {{ .MaxDiffChars }}

anthropic:
  # API key; prefer the CODEX_LEDGER_ANTHROPIC_API_KEY env var
  # api_key: ""

  # Model used for commit summaries
  model: "{{ .AnthropicModel }}"

log:
  # debug, info, warn or error (default: info)
  level: "{{ .LogLevel }}"

  # text or json (default: text)
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	LedgerDir      string
	LedgerBackend  string
	LedgerLock     bool
	TrackingPolicy string
	BaseBranch     string
	MaxSkipDepth   int
	LedgerCommits  bool
	LLMSummary     bool
	MaxDiffChars   int
	AnthropicModel string
	LogLevel       string
	LogFormat      string
}

func configFilePath() (string, error) {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		LedgerDir:      viper.GetString("ledger.dir"),
		LedgerBackend:  viper.GetString("ledger.backend"),
		LedgerLock:     viper.GetBool("ledger.lock"),
		TrackingPolicy: viper.GetString("session.tracking_policy"),
		BaseBranch:     viper.GetString("session.base_branch"),
		MaxSkipDepth:   viper.GetInt("divergence.max_skip_depth"),
		LedgerCommits:  viper.GetBool("hook.ledger_commits"),
		LLMSummary:     viper.GetBool("hook.llm_summary"),
		MaxDiffChars:   viper.GetInt("hook.max_diff_chars"),
		AnthropicModel: viper.GetString("anthropic.model"),
		LogLevel:       viper.GetString("log.level"),
		LogFormat:      viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "ledger.dir", EnvVar: "CODEX_LEDGER_LEDGER_DIR"},
	{Key: "ledger.backend", EnvVar: "CODEX_LEDGER_LEDGER_BACKEND"},
	{Key: "ledger.lock", EnvVar: "CODEX_LEDGER_LEDGER_LOCK"},
	{Key: "session.tracking_policy", EnvVar: "CODEX_LEDGER_SESSION_TRACKING_POLICY"},
	{Key: "session.base_branch", EnvVar: "CODEX_LEDGER_SESSION_BASE_BRANCH"},
	{Key: "divergence.max_skip_depth", EnvVar: "CODEX_LEDGER_DIVERGENCE_MAX_SKIP_DEPTH"},
	{Key: "hook.ledger_commits", EnvVar: "CODEX_LEDGER_HOOK_LEDGER_COMMITS"},
	{Key: "hook.llm_summary", EnvVar: "CODEX_LEDGER_HOOK_LLM_SUMMARY"},
	{Key: "hook.max_diff_chars", EnvVar: "CODEX_LEDGER_HOOK_MAX_DIFF_CHARS"},
	{Key: "anthropic.api_key", EnvVar: "CODEX_LEDGER_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "CODEX_LEDGER_ANTHROPIC_MODEL"},
	{Key: "log.level", EnvVar: "CODEX_LEDGER_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "CODEX_LEDGER_LOG_FORMAT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'ledger config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
