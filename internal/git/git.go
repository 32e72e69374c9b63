package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joescharf/ledger/internal/errs"
)

// CommandError is returned when a git invocation exits non-zero. It carries
// the captured output for diagnostics and matches errs.ErrUpstreamTool.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: exit %d", strings.Join(e.Args, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is reports whether target is errs.ErrUpstreamTool.
func (e *CommandError) Is(target error) bool {
	return target == errs.ErrUpstreamTool
}

// Client defines the git primitives the ledger needs.
// All methods take a path parameter naming the working tree to operate on.
type Client interface {
	IsRepo(path string) bool
	RepoRoot(path string) (string, error)
	HooksDir(path string) (string, error)
	CurrentBranch(path string) (string, error)
	HeadCommit(path string) (string, error)
	ResolveRef(path, ref string) (string, error)
	BranchExists(path, branch string) (bool, error)
	BranchList(path string) ([]string, error)
	IsDirty(path string) (bool, error)

	CommitSubject(path, ref string) (string, error)
	CommitMessage(path, ref string) (string, error)
	ParentCommit(path, ref string) (string, error)
	CommitFiles(path, ref string) ([]string, error)
	MergeBase(path, left, right string) (string, error)
	LeftRightCount(path, left, right string) (int, int, error)

	Diff(path, from, to string) (string, error)
	DiffStat(path, from, to string) (string, error)
	DiffNameOnly(path, from, to string) ([]string, error)

	Checkout(path, branch string, create bool) error
	UpdateRef(path, ref, hash string) error
	CommitTree(path, parent, message string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

// Run executes git in path and returns trimmed stdout.
func Run(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	cmd := exec.Command("git", fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cerr := &CommandError{
			Args:     args,
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		return "", cerr
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *RealClient) IsRepo(path string) bool {
	out, err := Run(path, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return Run(path, "rev-parse", "--show-toplevel")
}

// HooksDir resolves the hooks directory git runs hooks from, honoring
// core.hooksPath and linked worktrees.
func (c *RealClient) HooksDir(path string) (string, error) {
	dir, err := Run(path, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(path, dir)
	}
	return dir, nil
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return Run(path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) HeadCommit(path string) (string, error) {
	return Run(path, "rev-parse", "HEAD")
}

func (c *RealClient) ResolveRef(path, ref string) (string, error) {
	return Run(path, "rev-parse", "--verify", ref+"^{commit}")
}

func (c *RealClient) BranchExists(path, branch string) (bool, error) {
	_, err := Run(path, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		var cerr *CommandError
		if errors.As(err, &cerr) && cerr.ExitCode == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *RealClient) BranchList(path string) ([]string, error) {
	out, err := Run(path, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// IsDirty reports uncommitted changes to tracked files. Untracked files, such
// as a fresh ledger directory, do not count.
func (c *RealClient) IsDirty(path string) (bool, error) {
	out, err := Run(path, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (c *RealClient) CommitSubject(path, ref string) (string, error) {
	return Run(path, "log", "-1", "--pretty=%s", ref)
}

func (c *RealClient) CommitMessage(path, ref string) (string, error) {
	return Run(path, "log", "-1", "--pretty=%B", ref)
}

func (c *RealClient) ParentCommit(path, ref string) (string, error) {
	return Run(path, "rev-parse", "--verify", "--quiet", ref+"^")
}

func (c *RealClient) CommitFiles(path, ref string) ([]string, error) {
	out, err := Run(path, "diff-tree", "--root", "--no-commit-id", "--name-only", "-r", ref)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (c *RealClient) MergeBase(path, left, right string) (string, error) {
	return Run(path, "merge-base", left, right)
}

// LeftRightCount returns the number of commits reachable only from left and
// only from right.
func (c *RealClient) LeftRightCount(path, left, right string) (int, int, error) {
	out, err := Run(path, "rev-list", "--left-right", "--count", left+"..."+right)
	if err != nil {
		return 0, 0, err
	}
	return ParseLeftRightCount(out)
}

func (c *RealClient) Diff(path, from, to string) (string, error) {
	return Run(path, "diff", "--no-color", from+".."+to)
}

func (c *RealClient) DiffStat(path, from, to string) (string, error) {
	return Run(path, "diff", "--stat", from+".."+to)
}

func (c *RealClient) DiffNameOnly(path, from, to string) ([]string, error) {
	out, err := Run(path, "diff", "--name-only", from+".."+to)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (c *RealClient) Checkout(path, branch string, create bool) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)
	_, err := Run(path, args...)
	return err
}

func (c *RealClient) UpdateRef(path, ref, hash string) error {
	_, err := Run(path, "update-ref", ref, hash)
	return err
}

// CommitTree creates a commit whose tree and single parent are parent's,
// without touching the index or working tree, and returns its hash.
func (c *RealClient) CommitTree(path, parent, message string) (string, error) {
	return Run(path, "commit-tree", parent+"^{tree}", "-p", parent, "-m", message)
}

// ParseLeftRightCount parses the "<left>\t<right>" output of
// `git rev-list --left-right --count`.
func ParseLeftRightCount(output string) (int, int, error) {
	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", output)
	}
	left, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse left count: %w", err)
	}
	right, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse right count: %w", err)
	}
	return left, right, nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
