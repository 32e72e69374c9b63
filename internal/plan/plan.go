// Package plan decides which branch and session id a new session uses.
// It has no side effects; the caller creates branches with git.
package plan

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/joescharf/ledger/internal/divergence"
)

// Action says whether the planned branch already exists or must be created.
type Action string

const (
	ActionReuse  Action = "reuse"
	ActionCreate Action = "create"
)

// Fixed reasons attached to a SessionPlan.
const (
	ReasonBranchOverride = "branch override provided"
	ReasonExplore        = "explore requested"
	ReasonOnAIBranch     = "already on ai/* branch"
	ReasonNewAIBranch    = "new ai/* branch from non-ai base"
)

// Intent is the input to Resolve. Now and Token are injected so plans are
// reproducible; zero values fall back to the wall clock and crypto/rand.
type Intent struct {
	Task              string
	CurrentBranch     string
	Explore           bool
	BaseBranch        string
	BranchOverride    string
	SessionIDOverride string
	Now               time.Time
	Token             func() string
}

// SessionPlan is the naming decision for a session.
type SessionPlan struct {
	Action     Action `json:"action"`
	BranchName string `json:"branchName"`
	BaseBranch string `json:"baseBranch"`
	SessionID  string `json:"sessionId"`
	Reason     string `json:"reason"`
}

// Resolve turns an Intent into a SessionPlan.
func Resolve(in Intent) SessionPlan {
	base := in.BaseBranch
	if base == "" {
		base = in.CurrentBranch
	}

	if in.BranchOverride != "" {
		action := ActionCreate
		if in.BranchOverride == in.CurrentBranch {
			action = ActionReuse
		}
		return SessionPlan{
			Action:     action,
			BranchName: in.BranchOverride,
			BaseBranch: base,
			SessionID:  firstNonEmpty(in.SessionIDOverride, in.BranchOverride),
			Reason:     ReasonBranchOverride,
		}
	}

	sessionID := in.SessionIDOverride
	if sessionID == "" {
		sessionID = NewSessionID(in.Now, in.Token)
	}
	onAI := divergence.IsAIBranch(in.CurrentBranch)

	if in.Explore {
		parent := in.CurrentBranch
		if !onAI {
			parent = divergence.MirrorBranchName(in.CurrentBranch)
		}
		return SessionPlan{
			Action:     ActionCreate,
			BranchName: parent + "/explore-" + sessionID,
			BaseBranch: base,
			SessionID:  sessionID,
			Reason:     ReasonExplore,
		}
	}

	if onAI {
		return SessionPlan{
			Action:     ActionReuse,
			BranchName: in.CurrentBranch,
			BaseBranch: base,
			SessionID:  firstNonEmpty(in.SessionIDOverride, strings.TrimPrefix(in.CurrentBranch, divergence.AIPrefix)),
			Reason:     ReasonOnAIBranch,
		}
	}

	return SessionPlan{
		Action:     ActionCreate,
		BranchName: divergence.AIPrefix + sessionID,
		BaseBranch: base,
		SessionID:  sessionID,
		Reason:     ReasonNewAIBranch,
	}
}

// NewSessionID returns "YYYY-MM-DD-<token>". A zero now means time.Now and a
// nil token means RandomToken.
func NewSessionID(now time.Time, token func() string) string {
	if now.IsZero() {
		now = time.Now()
	}
	if token == nil {
		token = RandomToken
	}
	return FormatDate(now) + "-" + token()
}

// FormatDate formats t as YYYY-MM-DD in t's own location.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// RandomToken returns 8 lowercase hex characters.
func RandomToken() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 48

// SlugifyTask lowercases task, collapses every run of non-alphanumerics into
// a dash and trims to 48 characters.
func SlugifyTask(task string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(task)), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
