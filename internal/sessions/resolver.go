package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/store"
)

// Context is a session resolved against the current checkout.
type Context struct {
	CurrentBranch string                `json:"currentBranch"`
	Session       *models.SessionRecord `json:"session"`
	SessionID     string                `json:"sessionId"`
	HumanBranch   string                `json:"humanBranch"`
	AIBranch      string                `json:"aiBranch"`
}

// BranchReader reports the branch checked out at a path.
type BranchReader interface {
	CurrentBranch(path string) (string, error)
}

// Resolver finds the session a command applies to.
type Resolver struct {
	Store store.Store
	Git   BranchReader
	Dir   string
}

// Resolve picks a session in this order: the explicit sessionID; the session
// on the current AI branch; the most recent session under the human branch
// the current branch maps to.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (*Context, error) {
	current, err := r.Git.CurrentBranch(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("get current branch: %w", err)
	}

	var session *models.SessionRecord
	switch {
	case sessionID != "":
		session, err = r.Store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("resolve session: %w", err)
		}
	case divergence.IsAIBranch(current):
		session, err = r.Store.GetSessionByBranch(ctx, current)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		if session == nil {
			if human, ok := divergence.InferHumanBranch(current); ok {
				if session, err = r.latestForHumanBranch(ctx, human); err != nil {
					return nil, err
				}
			}
		}
	default:
		if session, err = r.latestForHumanBranch(ctx, current); err != nil {
			return nil, err
		}
	}

	if session == nil {
		return nil, fmt.Errorf("no matching session found, pass --session to specify one explicitly: %w", errs.ErrNotFound)
	}

	human, ok := HumanBranchOf(session)
	if !ok {
		return nil, fmt.Errorf("unable to infer human branch from session branch %s: %w", session.Branch, errs.ErrNotFound)
	}

	return &Context{
		CurrentBranch: current,
		Session:       session,
		SessionID:     session.SessionID,
		HumanBranch:   human,
		AIBranch:      session.Branch,
	}, nil
}

// latestForHumanBranch returns the most recent session whose branch lives
// under ai/<human>/. Sessions recorded with human as their base branch, or
// on the plain ai/<human> mirror, are the fallback.
func (r *Resolver) latestForHumanBranch(ctx context.Context, human string) (*models.SessionRecord, error) {
	sessions, err := r.Store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	store.SortByActivity(sessions)

	prefix := divergence.MirrorBranchName(human) + "/"
	for _, s := range sessions {
		if strings.HasPrefix(s.Branch, prefix) {
			return s, nil
		}
	}
	for _, s := range sessions {
		if s.BaseBranch == human || s.Branch == divergence.MirrorBranchName(human) {
			return s, nil
		}
	}
	return nil, nil
}

// HumanBranchOf returns the human branch a session tracks: its base branch
// when that is a human branch, otherwise the name inferred from its AI branch.
func HumanBranchOf(s *models.SessionRecord) (string, bool) {
	if s.BaseBranch != "" && !divergence.IsAIBranch(s.BaseBranch) {
		return s.BaseBranch, true
	}
	return divergence.InferHumanBranch(s.Branch)
}
