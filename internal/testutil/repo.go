// Package testutil provides git repository fixtures for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Git runs git in dir and fails the test on error. Returns trimmed stdout.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), string(out))
	return strings.TrimSpace(string(out))
}

// InitRepo creates a git repo on branch main with a user config so commits
// work on CI, plus one base commit. Returns the repo directory.
func InitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := exec.Command("git", "-C", dir, "init", "-b", "main").Run(); err != nil {
		Git(t, dir, "init")
		Git(t, dir, "checkout", "-b", "main")
	}
	Git(t, dir, "config", "user.email", "test@test.com")
	Git(t, dir, "config", "user.name", "Test")
	Git(t, dir, "config", "commit.gpgsign", "false")
	CommitFile(t, dir, "README.md", "base\n", "chore: base")
	return dir
}

// CommitFile writes content to name and commits it with message.
func CommitFile(t *testing.T, dir, name, content, message string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	Git(t, dir, "add", name)
	Git(t, dir, "commit", "-m", message)
	return Git(t, dir, "rev-parse", "HEAD")
}

// CommitEmpty creates an empty commit with message on the current branch.
func CommitEmpty(t *testing.T, dir, message string) string {
	t.Helper()
	Git(t, dir, "commit", "--allow-empty", "-m", message)
	return Git(t, dir, "rev-parse", "HEAD")
}
