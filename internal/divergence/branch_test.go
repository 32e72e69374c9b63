package divergence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferHumanBranch(t *testing.T) {
	tests := []struct {
		branch string
		want   string
		ok     bool
	}{
		{"ai/main", "main", true},
		{"ai/feature/login", "feature/login", true},
		{"ai/feature/login/2026-02-05-deadbeef", "feature/login", true},
		{"ai/main/explore-2026-02-05-deadbeef", "main", true},
		{"ai/main/2026-02-05-deadbeef/explore-2026-02-06-cafebabe", "main", true},
		{"ai/", "", false},
		{"main", "", false},
		{"feature/ai/x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			got, ok := InferHumanBranch(tt.branch)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferHumanBranch_LeftInverseOfMirror(t *testing.T) {
	for _, human := range []string{"main", "feature/login", "release/v1.2"} {
		got, ok := InferHumanBranch(MirrorBranchName(human))
		assert.True(t, ok)
		assert.Equal(t, human, got)
	}
}

func TestLedgerCommitMessage_RoundTrip(t *testing.T) {
	msg := FormatLedgerCommitMessage("feature/login", "0123456789abcdef")

	assert.Contains(t, msg, "chore(ledger): capture trace for 0123456\n")
	assert.True(t, IsLedgerCommit(msg))

	branch, commit := ParseLedgerTrailers(msg)
	assert.Equal(t, "feature/login", branch)
	assert.Equal(t, "0123456789abcdef", commit)
}

func TestIsLedgerCommit(t *testing.T) {
	assert.True(t, IsLedgerCommit("chore(ledger): capture trace for abc"))
	assert.True(t, IsLedgerCommit("housekeeping\n\nLedger-Marker: v1"))
	assert.True(t, IsLedgerCommit("housekeeping\n\nsome notes\n\nsource-branch: main\nLedger-Marker: v1\n"))
	assert.False(t, IsLedgerCommit("feat: add login"))
	assert.False(t, IsLedgerCommit("feat: mention chore(ledger): capture trace for abc"))
	assert.False(t, IsLedgerCommit("chore(ledger): something else"))
	assert.False(t, IsLedgerCommit("housekeeping\n\nLedger-Marker:"))
	assert.False(t, IsLedgerCommit("feat: add marker parsing\n\nDocs now describe the\nledger-marker: field format"))
	assert.False(t, IsLedgerCommit("feat: x\n\nLedger-Marker: v9"))
	assert.False(t, IsLedgerCommit("feat: x\n\nledger-marker: v1"))
	assert.False(t, IsLedgerCommit("feat: x\n\nLedger-Marker: v1\n\nmore prose after it"))
}
