// Package policy maps a tracking policy and a divergence status to the
// remediation the ledger recommends. Everything here is pure.
package policy

import (
	"fmt"
	"strings"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/models"
)

// Action is a recommended remediation.
type Action string

const (
	ActionNoop             Action = "noop"
	ActionFastForwardAI    Action = "fast_forward_ai"
	ActionRebaseAIOnHuman  Action = "rebase_ai_on_human"
	ActionMergeHumanIntoAI Action = "merge_human_into_ai"
	ActionPauseForManual   Action = "pause_for_manual"
)

// DefaultPolicy applies when neither the session nor config names one.
const DefaultPolicy = models.PolicyMirrorOnly

// Policies lists every valid tracking policy in display order.
var Policies = []models.TrackingPolicy{
	models.PolicyMirrorOnly,
	models.PolicyRebaseAI,
	models.PolicyMergeAI,
	models.PolicyManual,
}

// Resolution is the derived, never persisted, output of Resolve.
type Resolution struct {
	Policy           models.TrackingPolicy `json:"policy"`
	DivergenceStatus divergence.Status     `json:"divergenceStatus"`
	Action           Action                `json:"action"`
	Reason           string                `json:"reason"`
}

// IsTrackingPolicy reports whether value names a known policy.
func IsTrackingPolicy(value string) bool {
	for _, p := range Policies {
		if string(p) == value {
			return true
		}
	}
	return false
}

// ParseTrackingPolicy validates value. An empty value yields fallback; any
// other unknown string is rejected with errs.ErrInvalidInput.
func ParseTrackingPolicy(value string, fallback models.TrackingPolicy) (models.TrackingPolicy, error) {
	if value == "" {
		return fallback, nil
	}
	if !IsTrackingPolicy(value) {
		names := make([]string, len(Policies))
		for i, p := range Policies {
			names[i] = string(p)
		}
		return "", fmt.Errorf("%w: tracking policy %q, expected one of: %s",
			errs.ErrInvalidInput, value, strings.Join(names, ", "))
	}
	return models.TrackingPolicy(value), nil
}

const (
	reasonInSync      = "Branches are already synchronized."
	reasonManual      = "Manual policy requires explicit user resolution for non-synced branches."
	reasonMirrorFF    = "Mirror-only policy fast-forwards AI branch to human branch."
	reasonMirrorPause = "Mirror-only policy does not allow replaying or merging AI-only commits."
	reasonBehindFF    = "AI branch is behind and can be fast-forwarded to human branch."
	reasonRebase      = "Rebase policy replays AI-only commits on top of current human branch."
	reasonMerge       = "Merge policy reconciles histories by merging human branch into AI branch."
)

// Resolve looks up the action for (policy, status). in_sync is checked
// before the policy, so it yields noop for any policy value. Policies must be
// validated with ParseTrackingPolicy first; an unvalidated empty policy is
// treated as DefaultPolicy.
func Resolve(p models.TrackingPolicy, status divergence.Status) Resolution {
	if p == "" {
		p = DefaultPolicy
	}
	r := Resolution{Policy: p, DivergenceStatus: status}

	if status == divergence.StatusInSync {
		r.Action, r.Reason = ActionNoop, reasonInSync
		return r
	}

	switch p {
	case models.PolicyManual:
		r.Action, r.Reason = ActionPauseForManual, reasonManual
	case models.PolicyMirrorOnly:
		if status == divergence.StatusAheadHuman {
			r.Action, r.Reason = ActionFastForwardAI, reasonMirrorFF
		} else {
			r.Action, r.Reason = ActionPauseForManual, reasonMirrorPause
		}
	case models.PolicyRebaseAI:
		if status == divergence.StatusAheadHuman {
			r.Action, r.Reason = ActionFastForwardAI, reasonBehindFF
		} else {
			r.Action, r.Reason = ActionRebaseAIOnHuman, reasonRebase
		}
	default:
		if status == divergence.StatusAheadHuman {
			r.Action, r.Reason = ActionFastForwardAI, reasonBehindFF
		} else {
			r.Action, r.Reason = ActionMergeHumanIntoAI, reasonMerge
		}
	}
	return r
}
