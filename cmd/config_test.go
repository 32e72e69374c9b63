package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ledger/internal/output"
	"github.com/joescharf/ledger/internal/store"
	"github.com/joescharf/ledger/internal/testutil"
)

// testEnv sets up an isolated repository, viper and output for testing.
// Returns the config dir; output is captured in the returned buffer.
func testEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()
	repo := testutil.InitRepo(t)
	dir := filepath.Join(repo, store.DefaultDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	// Override configDirFunc and repoDirFunc for tests
	origConfig, origRepo := configDirFunc, repoDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	repoDirFunc = func() string { return repo }
	t.Cleanup(func() {
		configDirFunc, repoDirFunc = origConfig, origRepo
		closeStore()
	})

	// Reset viper and shared flags
	viper.Reset()
	setDefaults()
	ledgerStore = nil
	verbose, dryRun, jsonOut = false, false, false
	sessionID = ""
	sessionExplore, sessionBranch, sessionBase, sessionIDFlag, sessionPolicy = false, "", "", "", ""
	sessionReason, sessionStatus, sessionFormat = "", "", "yaml"
	statusApply, conflictReason, annotateModel = false, "", ""
	hooksForce, hooksBinary, hooksContext = false, "", ""

	// Initialize output
	buf := &bytes.Buffer{}
	ui = &output.UI{Out: buf, ErrOut: buf}

	return dir, buf
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir, _ := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ledger configuration")
	assert.Contains(t, string(data), "tracking_policy: \"mirror-only\"")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir, _ := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir, _ := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ledger configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	_, _ = testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	_, _ = testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_SourcesAndSecrets(t *testing.T) {
	_, buf := testEnv(t)

	t.Setenv("CODEX_LEDGER_LOG_LEVEL", "debug")
	viper.SetEnvPrefix("CODEX_LEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.Set("anthropic.api_key", "sk-very-secret")

	require.NoError(t, configShowRun())
	out := buf.String()
	assert.Contains(t, out, "(env: CODEX_LEDGER_LOG_LEVEL)")
	assert.Contains(t, out, "debug")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "sk-very-secret")
}

func TestConfigEdit_NoEditor(t *testing.T) {
	_, _ = testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	_, _ = testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	os.Setenv("CODEX_LEDGER_TEST_KEY", "val")
	defer os.Unsetenv("CODEX_LEDGER_TEST_KEY")
	assert.Contains(t, detectSource("test_key", "CODEX_LEDGER_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "CODEX_LEDGER_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "CODEX_LEDGER_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir, _ := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}
