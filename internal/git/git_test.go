package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/testutil"
)

func TestParseLeftRightCount(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLeft  int
		wantRight int
		wantErr   bool
	}{
		{name: "tab separated", input: "3\t1", wantLeft: 3, wantRight: 1},
		{name: "space separated", input: "0 0", wantLeft: 0, wantRight: 0},
		{name: "trailing newline", input: "2\t5\n", wantLeft: 2, wantRight: 5},
		{name: "empty", input: "", wantErr: true},
		{name: "not a number", input: "a\t1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right, err := ParseLeftRightCount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLeft, left)
			assert.Equal(t, tt.wantRight, right)
		})
	}
}

func TestRealClient_Branches(t *testing.T) {
	dir := testutil.InitRepo(t)
	c := NewClient()

	assert.True(t, c.IsRepo(dir))
	assert.False(t, c.IsRepo(t.TempDir()))

	branch, err := c.CurrentBranch(dir)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	ok, err := c.BranchExists(dir, "main")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.BranchExists(dir, "ai/main")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Checkout(dir, "ai/main", true))
	branches, err := c.BranchList(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "ai/main"}, branches)
}

func TestRealClient_CommitInspection(t *testing.T) {
	dir := testutil.InitRepo(t)
	base := testutil.Git(t, dir, "rev-parse", "HEAD")
	head := testutil.CommitFile(t, dir, "src/app.go", "package app\n", "feat: add app\n\nlonger body")
	c := NewClient()

	subject, err := c.CommitSubject(dir, head)
	require.NoError(t, err)
	assert.Equal(t, "feat: add app", subject)

	msg, err := c.CommitMessage(dir, head)
	require.NoError(t, err)
	assert.Contains(t, msg, "longer body")

	parent, err := c.ParentCommit(dir, head)
	require.NoError(t, err)
	assert.Equal(t, base, parent)

	_, err = c.ParentCommit(dir, base)
	assert.Error(t, err, "root commit has no parent")

	files, err := c.CommitFiles(dir, head)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.go"}, files)
}

func TestRealClient_Diff(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.Git(t, dir, "checkout", "-b", "feature")
	testutil.CommitFile(t, dir, "README.md", "hello world\n", "feature changes")
	testutil.CommitFile(t, dir, "file2.txt", "new file\n", "more feature changes")

	c := NewClient()

	t.Run("Diff returns diff content", func(t *testing.T) {
		diff, err := c.Diff(dir, "main", "feature")
		require.NoError(t, err)
		assert.Contains(t, diff, "hello world")
		assert.Contains(t, diff, "file2.txt")
	})

	t.Run("DiffStat returns stat summary", func(t *testing.T) {
		stat, err := c.DiffStat(dir, "main", "feature")
		require.NoError(t, err)
		assert.Contains(t, stat, "changed")
	})

	t.Run("DiffNameOnly returns changed file names", func(t *testing.T) {
		names, err := c.DiffNameOnly(dir, "main", "feature")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"README.md", "file2.txt"}, names)
	})

	t.Run("LeftRightCount counts unique commits", func(t *testing.T) {
		left, right, err := c.LeftRightCount(dir, "main", "feature")
		require.NoError(t, err)
		assert.Equal(t, 0, left)
		assert.Equal(t, 2, right)
	})

	t.Run("MergeBase finds common ancestor", func(t *testing.T) {
		mainHead := testutil.Git(t, dir, "rev-parse", "main")
		base, err := c.MergeBase(dir, "main", "feature")
		require.NoError(t, err)
		assert.Equal(t, mainHead, base)
	})
}

func TestRealClient_CommitTreeAndUpdateRef(t *testing.T) {
	dir := testutil.InitRepo(t)
	c := NewClient()
	head, err := c.HeadCommit(dir)
	require.NoError(t, err)

	hash, err := c.CommitTree(dir, head, "chore: bookkeeping\n\nbody line")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.NoError(t, c.UpdateRef(dir, "refs/heads/ai/main", hash))
	resolved, err := c.ResolveRef(dir, "ai/main")
	require.NoError(t, err)
	assert.Equal(t, hash, resolved)

	parent, err := c.ParentCommit(dir, "ai/main")
	require.NoError(t, err)
	assert.Equal(t, head, parent)

	dirty, err := c.IsDirty(dir)
	require.NoError(t, err)
	assert.False(t, dirty, "commit-tree must not touch the working tree")
}

func TestIsDirty(t *testing.T) {
	dir := testutil.InitRepo(t)
	c := NewClient()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("x"), 0o644))
	dirty, err := c.IsDirty(dir)
	require.NoError(t, err)
	assert.False(t, dirty, "untracked files are ignored")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed\n"), 0o644))
	dirty, err = c.IsDirty(dir)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestCommandError_IsUpstreamTool(t *testing.T) {
	dir := testutil.InitRepo(t)
	_, err := Run(dir, "rev-parse", "--verify", "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstreamTool))

	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	assert.NotZero(t, cerr.ExitCode)
	assert.Contains(t, cerr.Error(), "git rev-parse")
}
