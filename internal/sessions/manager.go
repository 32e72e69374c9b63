// Package sessions opens, tracks and reconciles ledger sessions.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/git"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/plan"
	"github.com/joescharf/ledger/internal/policy"
	"github.com/joescharf/ledger/internal/store"
)

// Policy sources reported by EffectivePolicy.
const (
	PolicySourceSession = "session"
	PolicySourceConfig  = "config"
)

// DefaultResumeReason is recorded when a conflict is resumed without a reason.
const DefaultResumeReason = "Manual resume requested."

// Config holds the configured defaults a Manager applies.
type Config struct {
	DefaultPolicy      models.TrackingPolicy
	BaseBranch         string
	MaxLedgerSkipDepth int
	Now                func() time.Time
	Token              func() string
}

// Manager ties the ledger store to git for one working tree.
type Manager struct {
	store    store.Store
	git      git.Client
	dir      string
	cfg      Config
	resolver *Resolver
	detector *divergence.Detector
}

// NewManager creates a Manager for the repository at dir.
func NewManager(s store.Store, g git.Client, dir string, cfg Config) *Manager {
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = policy.DefaultPolicy
	}
	if cfg.MaxLedgerSkipDepth <= 0 {
		cfg.MaxLedgerSkipDepth = divergence.DefaultMaxLedgerSkipDepth
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	detector := divergence.NewDetector(g, dir)
	detector.MaxLedgerSkipDepth = cfg.MaxLedgerSkipDepth
	return &Manager{
		store:    s,
		git:      g,
		dir:      dir,
		cfg:      cfg,
		resolver: &Resolver{Store: s, Git: g, Dir: dir},
		detector: detector,
	}
}

// Resolve resolves the session a command applies to.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (*Context, error) {
	return m.resolver.Resolve(ctx, sessionID)
}

// OpenOptions configures opening a session.
type OpenOptions struct {
	Task      string
	Explore   bool
	Branch    string
	Base      string
	SessionID string
	Policy    string
	DryRun    bool
}

// OpenResult is the outcome of Open.
type OpenResult struct {
	Session *models.SessionRecord `json:"session"`
	Plan    plan.SessionPlan      `json:"plan"`
}

// Open plans a session branch, checks it out and records the session as
// active. The working tree must be clean.
func (m *Manager) Open(ctx context.Context, opts OpenOptions) (*OpenResult, error) {
	if !m.git.IsRepo(m.dir) {
		return nil, fmt.Errorf("not a git repository: %s: %w", m.dir, errs.ErrPreconditionFailed)
	}
	dirty, err := m.git.IsDirty(m.dir)
	if err != nil {
		return nil, fmt.Errorf("check working tree: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("working tree has uncommitted changes: %w", errs.ErrPreconditionFailed)
	}

	tracking, err := policy.ParseTrackingPolicy(opts.Policy, m.cfg.DefaultPolicy)
	if err != nil {
		return nil, err
	}

	current, err := m.git.CurrentBranch(m.dir)
	if err != nil {
		return nil, fmt.Errorf("get current branch: %w", err)
	}

	base := opts.Base
	if base == "" {
		base = m.cfg.BaseBranch
	}
	p := plan.Resolve(plan.Intent{
		Task:              opts.Task,
		CurrentBranch:     current,
		Explore:           opts.Explore,
		BaseBranch:        base,
		BranchOverride:    opts.Branch,
		SessionIDOverride: opts.SessionID,
		Now:               m.cfg.Now(),
		Token:             m.cfg.Token,
	})

	record := &models.SessionRecord{
		SessionID:         p.SessionID,
		Branch:            p.BranchName,
		BaseBranch:        p.BaseBranch,
		StartedAt:         m.cfg.Now(),
		Status:            models.SessionStatusActive,
		TrackingPolicy:    tracking,
		LastPromptSummary: opts.Task,
	}
	if opts.DryRun {
		return &OpenResult{Session: record, Plan: p}, nil
	}

	if err := m.checkoutPlan(p, current); err != nil {
		return nil, err
	}

	if err := m.store.EnsureStore(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger store: %w", err)
	}
	session, err := m.store.UpsertSession(ctx, record)
	if err != nil {
		return nil, err
	}
	slog.Debug("session opened", "session", session.SessionID, "branch", session.Branch, "action", p.Action)
	return &OpenResult{Session: session, Plan: p}, nil
}

func (m *Manager) checkoutPlan(p plan.SessionPlan, current string) error {
	if p.Action == plan.ActionCreate {
		if p.BaseBranch != current {
			if err := m.git.Checkout(m.dir, p.BaseBranch, false); err != nil {
				return fmt.Errorf("checkout base branch %s: %w", p.BaseBranch, err)
			}
		}
		if err := m.git.Checkout(m.dir, p.BranchName, true); err != nil {
			return fmt.Errorf("create branch %s: %w", p.BranchName, err)
		}
		return nil
	}
	if p.BranchName != current {
		if err := m.git.Checkout(m.dir, p.BranchName, false); err != nil {
			return fmt.Errorf("checkout %s: %w", p.BranchName, err)
		}
	}
	return nil
}

// Close marks a session closed.
func (m *Manager) Close(ctx context.Context, sessionID, reason string) (*models.SessionRecord, error) {
	return m.transition(ctx, sessionID, models.SessionStatusClosed, reason)
}

// Archive marks a session archived.
func (m *Manager) Archive(ctx context.Context, sessionID, reason string) (*models.SessionRecord, error) {
	return m.transition(ctx, sessionID, models.SessionStatusArchived, reason)
}

// Reopen marks a closed or archived session reopened.
func (m *Manager) Reopen(ctx context.Context, sessionID, reason string) (*models.SessionRecord, error) {
	return m.transition(ctx, sessionID, models.SessionStatusReopened, reason)
}

func (m *Manager) transition(ctx context.Context, sessionID string, status models.SessionStatus, reason string) (*models.SessionRecord, error) {
	c, err := m.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s, err := m.store.UpdateSessionStatus(ctx, c.SessionID, status, reason)
	if err != nil {
		return nil, err
	}
	slog.Debug("session status changed", "session", s.SessionID, "status", s.Status)
	return s, nil
}

// PolicyInfo is the effective tracking policy of a session.
type PolicyInfo struct {
	SessionID string                `json:"sessionId,omitempty"`
	Policy    models.TrackingPolicy `json:"policy"`
	Source    string                `json:"source"`
}

// EffectivePolicy returns the session's own policy, or the configured
// default when the session has none or no session resolves.
func (m *Manager) EffectivePolicy(ctx context.Context, sessionID string) (*PolicyInfo, error) {
	info := &PolicyInfo{SessionID: sessionID, Policy: m.cfg.DefaultPolicy, Source: PolicySourceConfig}

	c, err := m.resolver.Resolve(ctx, sessionID)
	if err != nil {
		slog.Debug("no session resolved, using configured policy", "error", err)
		return info, nil
	}
	info.SessionID = c.SessionID

	if c.Session.TrackingPolicy == "" {
		return info, nil
	}
	p, err := policy.ParseTrackingPolicy(string(c.Session.TrackingPolicy), m.cfg.DefaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", c.SessionID, err)
	}
	info.Policy = p
	info.Source = PolicySourceSession
	return info, nil
}

// SetPolicy validates value and stores it on the resolved session.
func (m *Manager) SetPolicy(ctx context.Context, sessionID, value string) (*models.SessionRecord, error) {
	if value == "" {
		return nil, fmt.Errorf("tracking policy is required: %w", errs.ErrInvalidInput)
	}
	p, err := policy.ParseTrackingPolicy(value, m.cfg.DefaultPolicy)
	if err != nil {
		return nil, err
	}
	c, err := m.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.store.UpdateSessionTrackingPolicy(ctx, c.SessionID, p)
}

// CheckResult is the divergence and remediation picture of one session.
type CheckResult struct {
	SessionID         string                `json:"sessionId"`
	HumanBranch       string                `json:"humanBranch"`
	AIBranch          string                `json:"aiBranch"`
	PolicySource      string                `json:"policySource"`
	Divergence        *divergence.Result    `json:"divergence"`
	Resolution        policy.Resolution     `json:"resolution"`
	Conflict          *models.ConflictState `json:"conflict,omitempty"`
	SuggestedCommands []string              `json:"suggestedCommands,omitempty"`
	Applied           bool                  `json:"applied"`
}

// Check detects divergence for the resolved session and resolves its
// policy. A pause_for_manual outcome records the session as paused for
// human resolution; a noop after a resumed conflict marks it resolved.
func (m *Manager) Check(ctx context.Context, sessionID string) (*CheckResult, error) {
	return m.check(ctx, sessionID, true)
}

// Preview is Check without the conflict-state writes. Conflict reports the
// stored record as is.
func (m *Manager) Preview(ctx context.Context, sessionID string) (*CheckResult, error) {
	return m.check(ctx, sessionID, false)
}

func (m *Manager) check(ctx context.Context, sessionID string, record bool) (*CheckResult, error) {
	c, err := m.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	div, err := m.detector.Detect(divergence.Options{HumanBranch: c.HumanBranch, AIBranch: c.AIBranch})
	if err != nil {
		return nil, fmt.Errorf("detect divergence: %w", err)
	}

	tracking, source := m.cfg.DefaultPolicy, PolicySourceConfig
	if c.Session.TrackingPolicy != "" {
		tracking, err = policy.ParseTrackingPolicy(string(c.Session.TrackingPolicy), m.cfg.DefaultPolicy)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", c.SessionID, err)
		}
		source = PolicySourceSession
	}
	res := policy.Resolve(tracking, div.Status)

	result := &CheckResult{
		SessionID:         c.SessionID,
		HumanBranch:       c.HumanBranch,
		AIBranch:          c.AIBranch,
		PolicySource:      source,
		Divergence:        div,
		Resolution:        res,
		SuggestedCommands: SuggestedCommands(res.Action, c.SessionID, c.HumanBranch, c.AIBranch),
	}

	conflict, err := m.store.ReadConflictState(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}

	switch {
	case !record:
	case res.Action == policy.ActionPauseForManual &&
		(conflict == nil || conflict.Status != models.ConflictStatusPausedForHuman):
		conflict, err = m.store.UpsertConflictState(ctx, c.SessionID, models.ConflictPatch{
			Status:       models.ConflictStatusPausedForHuman,
			SourceBranch: c.HumanBranch,
			AIBranch:     c.AIBranch,
			Reason:       res.Reason,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("session paused for human resolution", "session", c.SessionID, "status", div.Status)
	case res.Action == policy.ActionNoop && conflict != nil && conflict.Status == models.ConflictStatusResumed:
		conflict, err = m.store.UpsertConflictState(ctx, c.SessionID, models.ConflictPatch{
			Status: models.ConflictStatusResolved,
			Reason: res.Reason,
		})
		if err != nil {
			return nil, err
		}
	}
	result.Conflict = conflict
	return result, nil
}

// Apply runs Check and performs the fast_forward_ai remediation, which only
// moves the AI branch ref to the human tip. Other actions are left to the
// operator and reported as suggested commands.
func (m *Manager) Apply(ctx context.Context, sessionID string) (*CheckResult, error) {
	result, err := m.Check(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result.Resolution.Action != policy.ActionFastForwardAI {
		return result, nil
	}

	head, err := m.git.ResolveRef(m.dir, result.HumanBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", result.HumanBranch, err)
	}
	if err := m.git.UpdateRef(m.dir, "refs/heads/"+result.AIBranch, head); err != nil {
		return nil, fmt.Errorf("fast-forward %s: %w", result.AIBranch, err)
	}
	slog.Info("fast-forwarded ai branch", "branch", result.AIBranch, "to", head)
	result.Applied = true
	return result, nil
}

// SuggestedCommands lists the git commands an operator would run to carry
// out action.
func SuggestedCommands(action policy.Action, sessionID, human, ai string) []string {
	switch action {
	case policy.ActionFastForwardAI:
		return []string{fmt.Sprintf("git update-ref refs/heads/%s %s", ai, human)}
	case policy.ActionRebaseAIOnHuman:
		return []string{"git checkout " + ai, "git rebase " + human}
	case policy.ActionMergeHumanIntoAI:
		return []string{"git checkout " + ai, "git merge --no-ff " + human}
	case policy.ActionPauseForManual:
		return []string{
			"ledger conflict status --session " + sessionID,
			"ledger conflict resume --session " + sessionID,
		}
	}
	return nil
}

// ConflictStatus returns the stored conflict state for the resolved session.
// A session with no record reports idle.
func (m *Manager) ConflictStatus(ctx context.Context, sessionID string) (*models.ConflictState, error) {
	c, err := m.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state, err := m.store.ReadConflictState(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &models.ConflictState{
			SessionID:    c.SessionID,
			Status:       models.ConflictStatusIdle,
			SourceBranch: c.HumanBranch,
			AIBranch:     c.AIBranch,
		}, nil
	}
	return state, nil
}

// ResumeConflict moves the resolved session's conflict to resumed.
func (m *Manager) ResumeConflict(ctx context.Context, sessionID, reason string) (*models.ConflictState, error) {
	c, err := m.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = DefaultResumeReason
	}
	return m.store.UpsertConflictState(ctx, c.SessionID, models.ConflictPatch{
		Status:       models.ConflictStatusResumed,
		Reason:       reason,
		SourceBranch: c.HumanBranch,
		AIBranch:     c.AIBranch,
	})
}

// List returns every session, most recently active first.
func (m *Manager) List(ctx context.Context) ([]*models.SessionRecord, error) {
	return m.store.ListSessions(ctx)
}
