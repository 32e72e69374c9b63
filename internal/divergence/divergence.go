// Package divergence compares a human branch with its AI mirror.
package divergence

import (
	"fmt"

	"github.com/joescharf/ledger/internal/errs"
)

// Status classifies how two branch histories relate.
type Status string

const (
	StatusInSync     Status = "in_sync"
	StatusAheadHuman Status = "ahead_human"
	StatusAheadAI    Status = "ahead_ai"
	StatusDiverged   Status = "diverged"
)

// Recommendation is the fixed follow-up attached to each Status.
type Recommendation string

const (
	RecommendNone               Recommendation = "none"
	RecommendMirrorHumanToAI    Recommendation = "mirror_human_to_ai"
	RecommendReviewAIOnly       Recommendation = "review_ai_only_commits"
	RecommendReconcileHistories Recommendation = "reconcile_histories"
)

// DefaultMaxLedgerSkipDepth bounds the walk past bookkeeping commits at the
// AI tip, so a corrupt or very deep chain cannot make detection unbounded.
const DefaultMaxLedgerSkipDepth = 200

// Result is the outcome of Detect.
type Result struct {
	Status         Status         `json:"status"`
	HumanBranch    string         `json:"humanBranch"`
	AIBranch       string         `json:"aiBranch"`
	MergeBase      string         `json:"mergeBase,omitempty"`
	AheadHuman     int            `json:"aheadHuman"`
	AheadAI        int            `json:"aheadAi"`
	Recommendation Recommendation `json:"recommendation"`
	Reason         string         `json:"reason"`
}

// GitReader is the subset of git primitives the detector consults.
type GitReader interface {
	CurrentBranch(path string) (string, error)
	BranchExists(path, branch string) (bool, error)
	CommitMessage(path, ref string) (string, error)
	ParentCommit(path, ref string) (string, error)
	MergeBase(path, left, right string) (string, error)
	LeftRightCount(path, left, right string) (int, int, error)
}

// Options selects the branches to compare. An empty HumanBranch is inferred
// from the current branch; an empty AIBranch defaults to the mirror name.
type Options struct {
	HumanBranch string
	AIBranch    string
}

// Detector computes divergence for the repository at Dir.
type Detector struct {
	Git                GitReader
	Dir                string
	MaxLedgerSkipDepth int
}

// NewDetector returns a Detector with the default skip depth.
func NewDetector(g GitReader, dir string) *Detector {
	return &Detector{Git: g, Dir: dir, MaxLedgerSkipDepth: DefaultMaxLedgerSkipDepth}
}

// Detect compares the human branch with its AI branch. Bookkeeping commits at
// the AI tip are ignored. A missing AI branch is reported as ahead_human with
// AheadHuman=1 rather than as an error.
func (d *Detector) Detect(opts Options) (*Result, error) {
	human := opts.HumanBranch
	if human == "" {
		current, err := d.Git.CurrentBranch(d.Dir)
		if err != nil {
			return nil, fmt.Errorf("current branch: %w", err)
		}
		human = current
		if IsAIBranch(current) {
			inferred, ok := InferHumanBranch(current)
			if !ok {
				return nil, fmt.Errorf("%w: unable to determine human branch from %s", errs.ErrNotFound, current)
			}
			human = inferred
		}
	}

	ai := opts.AIBranch
	if ai == "" {
		ai = MirrorBranchName(human)
	}

	exists, err := d.Git.BranchExists(d.Dir, human)
	if err != nil {
		return nil, fmt.Errorf("check human branch: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: human branch does not exist: %s", errs.ErrNotFound, human)
	}

	exists, err = d.Git.BranchExists(d.Dir, ai)
	if err != nil {
		return nil, fmt.Errorf("check ai branch: %w", err)
	}
	if !exists {
		return buildResult(StatusAheadHuman, human, ai, "", 1, 0), nil
	}

	aiRef, err := d.comparableAIRef(ai)
	if err != nil {
		return nil, err
	}

	// Best effort: unrelated histories have no merge base.
	mergeBase, _ := d.Git.MergeBase(d.Dir, human, aiRef)

	aheadHuman, aheadAI, err := d.Git.LeftRightCount(d.Dir, human, aiRef)
	if err != nil {
		return nil, fmt.Errorf("count commits: %w", err)
	}

	return buildResult(StatusFromCounts(aheadHuman, aheadAI), human, ai, mergeBase, aheadHuman, aheadAI), nil
}

// comparableAIRef walks back from the AI tip past bookkeeping commits. It
// stops at the first real commit, at a root commit, or when the skip depth is
// exhausted.
func (d *Detector) comparableAIRef(aiBranch string) (string, error) {
	limit := d.MaxLedgerSkipDepth
	if limit <= 0 {
		limit = DefaultMaxLedgerSkipDepth
	}

	ref := aiBranch
	for i := 0; i < limit; i++ {
		msg, err := d.Git.CommitMessage(d.Dir, ref)
		if err != nil {
			return "", fmt.Errorf("read commit %s: %w", ref, err)
		}
		if !IsLedgerCommit(msg) {
			return ref, nil
		}
		parent, err := d.Git.ParentCommit(d.Dir, ref)
		if err != nil || parent == "" {
			return ref, nil
		}
		ref = parent
	}
	return ref, nil
}

// StatusFromCounts derives the status from the two ahead counts.
func StatusFromCounts(aheadHuman, aheadAI int) Status {
	switch {
	case aheadHuman > 0 && aheadAI > 0:
		return StatusDiverged
	case aheadHuman > 0:
		return StatusAheadHuman
	case aheadAI > 0:
		return StatusAheadAI
	default:
		return StatusInSync
	}
}

func buildResult(status Status, human, ai, mergeBase string, aheadHuman, aheadAI int) *Result {
	r := &Result{
		Status:      status,
		HumanBranch: human,
		AIBranch:    ai,
		MergeBase:   mergeBase,
		AheadHuman:  aheadHuman,
		AheadAI:     aheadAI,
	}
	switch status {
	case StatusInSync:
		r.Recommendation = RecommendNone
		r.Reason = "Human and AI branches are synchronized."
	case StatusAheadHuman:
		r.Recommendation = RecommendMirrorHumanToAI
		r.Reason = "Human branch has commits not yet mirrored to AI branch."
	case StatusAheadAI:
		r.Recommendation = RecommendReviewAIOnly
		r.Reason = "AI branch has commits that do not exist on the human branch."
	default:
		r.Recommendation = RecommendReconcileHistories
		r.Reason = "Human and AI branches both have unique commits and have diverged."
	}
	return r
}
