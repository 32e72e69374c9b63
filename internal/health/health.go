// Package health runs the readiness checks behind `ledger doctor`.
package health

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/git"
	"github.com/joescharf/ledger/internal/hook"
	"github.com/joescharf/ledger/internal/policy"
	"github.com/joescharf/ledger/internal/store"
)

// Status is the outcome of one check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check is one named result.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Details string `json:"details"`
}

// Settings are the configured values the checker validates.
type Settings struct {
	LedgerRoot     string
	TrackingPolicy string
	LLMSummary     bool
	APIKey         string
	Model          string
}

// Checker inspects the repository at Dir.
type Checker struct {
	Git      git.Client
	Store    store.Store
	Dir      string
	Settings Settings
}

// NewChecker returns a Checker.
func NewChecker(g git.Client, s store.Store, dir string, settings Settings) *Checker {
	return &Checker{Git: g, Store: s, Dir: dir, Settings: settings}
}

func result(name string, status Status, details string) Check {
	return Check{Name: name, Status: status, Details: details}
}

// Run executes every check. Outside a git repository only the git check runs.
func (c *Checker) Run(ctx context.Context) []Check {
	var checks []Check

	if !c.Git.IsRepo(c.Dir) {
		return append(checks, result("git", StatusFail, "Not a git repository."))
	}
	checks = append(checks, result("git", StatusOK, "Git repository detected."))

	root, err := c.Git.RepoRoot(c.Dir)
	if err != nil {
		checks = append(checks, result("git.root", StatusWarn, err.Error()))
	} else {
		checks = append(checks, result("git.root", StatusOK, root))
	}

	if branch, err := c.Git.CurrentBranch(c.Dir); err != nil {
		checks = append(checks, result("git.branch", StatusWarn, err.Error()))
	} else {
		checks = append(checks, result("git.branch", StatusOK, branch))
	}

	if head, err := c.Git.HeadCommit(c.Dir); err != nil {
		checks = append(checks, result("git.head", StatusWarn, err.Error()))
	} else {
		checks = append(checks, result("git.head", StatusOK, head))
	}

	if dirty, err := c.Git.IsDirty(c.Dir); err != nil {
		checks = append(checks, result("git.status", StatusWarn, err.Error()))
	} else if dirty {
		checks = append(checks, result("git.status", StatusWarn, "Working tree has uncommitted changes."))
	} else {
		checks = append(checks, result("git.status", StatusOK, "Working tree clean."))
	}

	if policy.IsTrackingPolicy(c.Settings.TrackingPolicy) {
		checks = append(checks, result("config.tracking_policy", StatusOK, c.Settings.TrackingPolicy))
	} else {
		checks = append(checks, result("config.tracking_policy", StatusFail,
			fmt.Sprintf("Unknown tracking policy %q.", c.Settings.TrackingPolicy)))
	}

	if c.Settings.LLMSummary {
		if c.Settings.APIKey == "" {
			checks = append(checks, result("anthropic.api_key", StatusWarn, "LLM summaries are enabled but no API key is set."))
		} else {
			checks = append(checks, result("anthropic.api_key", StatusOK, "API key is set."))
		}
		checks = append(checks, result("anthropic.model", StatusOK, c.Settings.Model))
	}

	if err := c.Store.EnsureStore(ctx); err != nil {
		checks = append(checks, result("ledger.store", StatusWarn, err.Error()))
	} else {
		checks = append(checks, result("ledger.store", StatusOK, c.Settings.LedgerRoot))
	}

	if traces, err := c.Store.ListTraces(ctx); err != nil {
		checks = append(checks, result("ledger.traces", StatusWarn, err.Error()))
	} else {
		checks = append(checks, result("ledger.traces", StatusOK, fmt.Sprintf("%d commit traces.", len(traces))))
	}

	if c.Settings.LedgerRoot != "" {
		lock := store.NewPIDLock(filepath.Join(c.Settings.LedgerRoot, store.LockFile))
		if pid, alive := lock.Holder(); pid != 0 {
			if alive {
				checks = append(checks, result("ledger.lock", StatusWarn, fmt.Sprintf("Held by PID %d.", pid)))
			} else {
				checks = append(checks, result("ledger.lock", StatusWarn, fmt.Sprintf("Stale lock from PID %d, the next write takes it over.", pid)))
			}
		}
	}

	if branches, err := c.Git.BranchList(c.Dir); err != nil {
		checks = append(checks, result("git.ai_branches", StatusWarn, err.Error()))
	} else {
		var mirrors int
		for _, b := range branches {
			if divergence.IsAIBranch(b) {
				mirrors++
			}
		}
		checks = append(checks, result("git.ai_branches", StatusOK, fmt.Sprintf("%d ai/* branches.", mirrors)))
	}

	if root != "" {
		hooksDir, err := hook.HooksDir(c.Git, root)
		var state hook.State
		if err == nil {
			state, err = hook.Inspect(hooksDir)
		}
		switch {
		case err != nil:
			checks = append(checks, result("hooks.post-commit", StatusWarn, err.Error()))
		case state == hook.StateInstalled:
			checks = append(checks, result("hooks.post-commit", StatusOK, "Hook installed."))
		case state == hook.StateForeign:
			checks = append(checks, result("hooks.post-commit", StatusWarn, "Hook exists but is not the ledger hook."))
		default:
			checks = append(checks, result("hooks.post-commit", StatusWarn, "Hook not installed."))
		}
	}

	return checks
}

// Overall is the worst status among checks.
func Overall(checks []Check) Status {
	overall := StatusOK
	for _, c := range checks {
		switch c.Status {
		case StatusFail:
			return StatusFail
		case StatusWarn:
			overall = StatusWarn
		}
	}
	return overall
}
