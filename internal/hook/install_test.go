package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/git"
	"github.com/joescharf/ledger/internal/testutil"
)

func TestInstall(t *testing.T) {
	hooksDir := t.TempDir()

	path, installed, err := Install(hooksDir, "/usr/local/bin/ledger", false)
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Equal(t, filepath.Join(hooksDir, HookName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#!/bin/sh\n")
	assert.Contains(t, string(data), Marker)
	assert.Contains(t, string(data), `'/usr/local/bin/ledger' hooks run`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "hook must be executable")

	state, err := Inspect(hooksDir)
	require.NoError(t, err)
	assert.Equal(t, StateInstalled, state)
}

func TestInstall_ExistingHookNeedsForce(t *testing.T) {
	hooksDir := t.TempDir()
	path := filepath.Join(hooksDir, HookName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho other\n"), 0o644))

	_, installed, err := Install(hooksDir, "ledger", false)
	require.NoError(t, err)
	assert.False(t, installed)

	state, err := Inspect(hooksDir)
	require.NoError(t, err)
	assert.Equal(t, StateForeign, state)

	_, installed, err = Install(hooksDir, "ledger", true)
	require.NoError(t, err)
	assert.True(t, installed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestInstall_NoHooksDir(t *testing.T) {
	_, _, err := Install(filepath.Join(t.TempDir(), "missing"), "ledger", false)
	assert.ErrorIs(t, err, errs.ErrPreconditionFailed)
}

func TestUninstall(t *testing.T) {
	hooksDir := t.TempDir()

	_, err := Uninstall(hooksDir)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(hooksDir, HookName), []byte("#!/bin/sh\n"), 0o755))
	_, err = Uninstall(hooksDir)
	assert.ErrorIs(t, err, errs.ErrPreconditionFailed)

	_, _, err = Install(hooksDir, "ledger", true)
	require.NoError(t, err)
	path, err := Uninstall(hooksDir)
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	state, err := Inspect(hooksDir)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, state)
}

func TestScript_QuotesBinaryForShell(t *testing.T) {
	script := Script("/opt/$HOME/`id`/it's/ledger")
	assert.Contains(t, script, `'/opt/$HOME/`+"`id`"+`/it'\''s/ledger' hooks run || true`)
}

func TestHooksDir(t *testing.T) {
	dir := testutil.InitRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "hooks"), 0o755))
	g := git.NewClient()

	t.Run("default", func(t *testing.T) {
		got, err := HooksDir(g, dir)
		require.NoError(t, err)
		assertSamePath(t, filepath.Join(dir, ".git", "hooks"), got)
	})

	t.Run("linked worktree uses the common hooks dir", func(t *testing.T) {
		wt := filepath.Join(t.TempDir(), "wt")
		testutil.Git(t, dir, "worktree", "add", "-b", "feature", wt)

		got, err := HooksDir(g, wt)
		require.NoError(t, err)
		assertSamePath(t, filepath.Join(dir, ".git", "hooks"), got)
	})

	t.Run("core.hooksPath", func(t *testing.T) {
		custom := filepath.Join(t.TempDir(), "custom-hooks")
		require.NoError(t, os.MkdirAll(custom, 0o755))
		testutil.Git(t, dir, "config", "core.hooksPath", custom)
		t.Cleanup(func() { testutil.Git(t, dir, "config", "--unset", "core.hooksPath") })

		got, err := HooksDir(g, dir)
		require.NoError(t, err)
		assertSamePath(t, custom, got)
	})
}

func assertSamePath(t *testing.T, want, got string) {
	t.Helper()
	w, err := filepath.EvalSymlinks(want)
	require.NoError(t, err)
	g, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, w, g)
}
