package plan

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2026, 2, 5, 10, 30, 0, 0, time.UTC)

func fixedToken() string { return "deadbeef" }

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		want   SessionPlan
	}{
		{
			name:   "new session from human branch",
			intent: Intent{Task: "Refactor login", CurrentBranch: "main"},
			want: SessionPlan{
				Action:     ActionCreate,
				BranchName: "ai/2026-02-05-deadbeef",
				BaseBranch: "main",
				SessionID:  "2026-02-05-deadbeef",
				Reason:     ReasonNewAIBranch,
			},
		},
		{
			name:   "base override",
			intent: Intent{CurrentBranch: "feature/x", BaseBranch: "main"},
			want: SessionPlan{
				Action:     ActionCreate,
				BranchName: "ai/2026-02-05-deadbeef",
				BaseBranch: "main",
				SessionID:  "2026-02-05-deadbeef",
				Reason:     ReasonNewAIBranch,
			},
		},
		{
			name:   "session id override",
			intent: Intent{CurrentBranch: "main", SessionIDOverride: "login"},
			want: SessionPlan{
				Action:     ActionCreate,
				BranchName: "ai/login",
				BaseBranch: "main",
				SessionID:  "login",
				Reason:     ReasonNewAIBranch,
			},
		},
		{
			name:   "reuse current ai branch",
			intent: Intent{CurrentBranch: "ai/feature/login"},
			want: SessionPlan{
				Action:     ActionReuse,
				BranchName: "ai/feature/login",
				BaseBranch: "ai/feature/login",
				SessionID:  "feature/login",
				Reason:     ReasonOnAIBranch,
			},
		},
		{
			name:   "explore from ai branch",
			intent: Intent{CurrentBranch: "ai/main", Explore: true},
			want: SessionPlan{
				Action:     ActionCreate,
				BranchName: "ai/main/explore-2026-02-05-deadbeef",
				BaseBranch: "ai/main",
				SessionID:  "2026-02-05-deadbeef",
				Reason:     ReasonExplore,
			},
		},
		{
			name:   "explore from human branch",
			intent: Intent{CurrentBranch: "main", Explore: true},
			want: SessionPlan{
				Action:     ActionCreate,
				BranchName: "ai/main/explore-2026-02-05-deadbeef",
				BaseBranch: "main",
				SessionID:  "2026-02-05-deadbeef",
				Reason:     ReasonExplore,
			},
		},
		{
			name:   "branch override equal to current",
			intent: Intent{CurrentBranch: "ai/custom", BranchOverride: "ai/custom"},
			want: SessionPlan{
				Action:     ActionReuse,
				BranchName: "ai/custom",
				BaseBranch: "ai/custom",
				SessionID:  "ai/custom",
				Reason:     ReasonBranchOverride,
			},
		},
		{
			name:   "branch override creates",
			intent: Intent{CurrentBranch: "main", BranchOverride: "ai/custom", SessionIDOverride: "s1"},
			want: SessionPlan{
				Action:     ActionCreate,
				BranchName: "ai/custom",
				BaseBranch: "main",
				SessionID:  "s1",
				Reason:     ReasonBranchOverride,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.intent
			in.Now = fixedNow
			in.Token = fixedToken
			assert.Equal(t, tt.want, Resolve(in))
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	in := Intent{Task: "x", CurrentBranch: "main", Now: fixedNow, Token: fixedToken}
	assert.Equal(t, Resolve(in), Resolve(in))
}

func TestNewSessionID_DefaultToken(t *testing.T) {
	id := NewSessionID(fixedNow, nil)
	assert.Regexp(t, regexp.MustCompile(`^2026-02-05-[a-f0-9]{8}$`), id)
}

func TestSlugifyTask(t *testing.T) {
	assert.Equal(t, "refactor-login-flow", SlugifyTask("  Refactor login flow! "))
	assert.Equal(t, "a-b", SlugifyTask("--a__b--"))
	assert.Equal(t, "", SlugifyTask("!!!"))

	long := SlugifyTask(strings.Repeat("abc ", 40))
	assert.LessOrEqual(t, len(long), 48)
	assert.False(t, strings.HasSuffix(long, "-"))
}
