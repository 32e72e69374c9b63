// Package hook implements the post-commit hook that mirrors human commits
// onto their ai/* branch and records a trace for each one.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/git"
	"github.com/joescharf/ledger/internal/llm"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/store"
)

// DefaultMaxDiffChars caps the diff sent to the summarizer.
const DefaultMaxDiffChars = 8000

// Config toggles the optional parts of a hook run.
type Config struct {
	// LedgerCommits appends a bookkeeping commit on top of the mirrored tip.
	LedgerCommits bool
	// LLMSummary asks Summarizer for a rationale.
	LLMSummary   bool
	MaxDiffChars int
	ExtraContext string
}

// Runner executes one post-commit run for the repository at Dir.
type Runner struct {
	Store      store.Store
	Git        git.Client
	Dir        string
	Summarizer llm.Summarizer
	Config     Config
	Now        func() time.Time
}

// Result reports what a run did.
type Result struct {
	Skipped      bool                             `json:"skipped"`
	SkipReason   string                           `json:"skipReason,omitempty"`
	Branch       string                           `json:"branch,omitempty"`
	CommitHash   string                           `json:"commitHash,omitempty"`
	MirrorBranch string                           `json:"mirrorBranch,omitempty"`
	MirrorTip    string                           `json:"mirrorTip,omitempty"`
	TraceKey     string                           `json:"traceKey,omitempty"`
	MetaKey      string                           `json:"metaKey,omitempty"`
	Annotation   *models.ConsumedAnnotationRecord `json:"annotation,omitempty"`
	Summarized   bool                             `json:"summarized"`
}

// Run records a trace for HEAD, consumes any pending annotation and moves
// ai/<branch> to HEAD. Commits on ai/* branches are skipped.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	now := r.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if err := r.Store.EnsureStore(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger store: %w", err)
	}

	branch, err := r.Git.CurrentBranch(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("get current branch: %w", err)
	}
	if divergence.IsAIBranch(branch) {
		return &Result{Skipped: true, SkipReason: "commit is on an ai/* branch", Branch: branch}, nil
	}
	if branch == "HEAD" {
		return &Result{Skipped: true, SkipReason: "detached HEAD", Branch: branch}, nil
	}

	hash, err := r.Git.HeadCommit(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("get head commit: %w", err)
	}
	message, err := r.Git.CommitMessage(r.Dir, hash)
	if err != nil {
		return nil, fmt.Errorf("read commit message: %w", err)
	}
	subject, err := r.Git.CommitSubject(r.Dir, hash)
	if err != nil {
		return nil, fmt.Errorf("read commit subject: %w", err)
	}
	files, err := r.Git.CommitFiles(r.Dir, hash)
	if err != nil {
		return nil, fmt.Errorf("list commit files: %w", err)
	}

	var diffStat, diff string
	if parent, err := r.Git.ParentCommit(r.Dir, hash); err == nil && parent != "" {
		if diffStat, err = r.Git.DiffStat(r.Dir, parent, hash); err != nil {
			return nil, fmt.Errorf("diff stat: %w", err)
		}
		if diff, err = r.Git.Diff(r.Dir, parent, hash); err != nil {
			return nil, fmt.Errorf("diff: %w", err)
		}
	}

	pending, err := r.Store.ReadPendingAnnotation(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Branch: branch, CommitHash: hash, MirrorBranch: divergence.MirrorBranchName(branch)}
	meta := &models.TraceMeta{
		CommitHash:   hash,
		SourceCommit: hash,
		SourceBranch: branch,
		SessionID:    r.sessionIDFor(ctx, branch),
		PromptHash:   store.HashPrompt(message),
		CreatedAt:    now(),
	}
	if r.Config.ExtraContext != "" {
		meta.ChatRefHash = store.HashPrompt(r.Config.ExtraContext)
	}
	if pending != nil {
		meta.Annotation = &models.AnnotationMeta{
			ID:         pending.ID,
			Prompt:     pending.Prompt,
			PromptHash: pending.PromptHash,
			Model:      pending.Model,
			SessionID:  pending.SessionID,
			CreatedAt:  pending.CreatedAt,
		}
	}

	reasoning := fmt.Sprintf("Human commit mirrored from branch %s.", branch)
	if r.Config.LLMSummary && r.Summarizer != nil {
		in := llm.CommitInput{
			Subject:      subject,
			Message:      message,
			ChangedFiles: files,
			DiffStat:     diffStat,
			Diff:         Truncate(diff, r.maxDiffChars()),
			ExtraContext: r.Config.ExtraContext,
		}
		if pending != nil {
			in.AnnotationPrompt = pending.Prompt
		}
		summary, err := r.Summarizer.SummarizeCommit(ctx, in)
		if err != nil {
			// Fall back to the deterministic summary.
			slog.Warn("llm summary failed", "commit", hash, "error", err)
		} else {
			reasoning = summary.Rationale
			meta.Model = summary.Model
			meta.LLM = &models.LLMMetadata{Model: summary.Model, RequestID: summary.RequestID}
			result.Summarized = true
		}
	}

	result.TraceKey, err = r.Store.WriteTraceMarkdown(ctx, hash, models.TraceContent{
		Summary: BuildSummary(message, diffStat),
		Risk:    models.RiskLow,
		Details: reasoning,
	})
	if err != nil {
		return nil, fmt.Errorf("write trace: %w", err)
	}
	if result.MetaKey, err = r.Store.WriteTraceMeta(ctx, meta); err != nil {
		return nil, fmt.Errorf("write trace meta: %w", err)
	}

	if pending != nil {
		if result.Annotation, err = r.Store.ConsumePendingAnnotation(ctx, hash); err != nil {
			return nil, err
		}
	}

	tip := hash
	if r.Config.LedgerCommits {
		tip, err = r.Git.CommitTree(r.Dir, hash, divergence.FormatLedgerCommitMessage(branch, hash))
		if err != nil {
			return nil, fmt.Errorf("create ledger commit: %w", err)
		}
	}
	if err := r.Git.UpdateRef(r.Dir, "refs/heads/"+result.MirrorBranch, tip); err != nil {
		return nil, fmt.Errorf("mirror to %s: %w", result.MirrorBranch, err)
	}
	result.MirrorTip = tip

	slog.Debug("post-commit recorded", "commit", hash, "mirror", result.MirrorBranch, "tip", tip)
	return result, nil
}

func (r *Runner) maxDiffChars() int {
	if r.Config.MaxDiffChars > 0 {
		return r.Config.MaxDiffChars
	}
	return DefaultMaxDiffChars
}

// sessionIDFor names the session a human commit belongs to: the session on
// the branch's mirror when one exists, otherwise "<branch>-human".
func (r *Runner) sessionIDFor(ctx context.Context, branch string) string {
	s, err := r.Store.GetSessionByBranch(ctx, divergence.MirrorBranchName(branch))
	if err == nil {
		return s.SessionID
	}
	if !errors.Is(err, errs.ErrNotFound) {
		slog.Warn("session lookup failed", "branch", branch, "error", err)
	}
	return branch + "-human"
}

// BuildSummary is the first non-empty line of message, followed by the
// closing line of the diff stat when there is one.
func BuildSummary(message, diffStat string) string {
	first := "Human commit"
	for _, line := range strings.Split(message, "\n") {
		if strings.TrimSpace(line) != "" {
			first = strings.TrimSpace(line)
			break
		}
	}
	stat := strings.TrimSpace(diffStat)
	if stat == "" {
		return first
	}
	if i := strings.LastIndex(stat, "\n"); i >= 0 {
		stat = strings.TrimSpace(stat[i+1:])
	}
	return fmt.Sprintf("%s (%s)", first, stat)
}

// Truncate shortens value to at most maxLen bytes, ending in "...".
func Truncate(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return value[:maxLen]
	}
	return value[:maxLen-3] + "..."
}
