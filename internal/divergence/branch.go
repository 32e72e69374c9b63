package divergence

import (
	"fmt"
	"regexp"
	"strings"
)

// AIPrefix prefixes every AI mirror, session and explore branch.
const AIPrefix = "ai/"

var (
	sessionSuffixPattern = regexp.MustCompile(`/\d{4}-\d{2}-\d{2}-[a-f0-9]{8}$`)
	exploreSuffixPattern = regexp.MustCompile(`/explore-\d{4}-\d{2}-\d{2}-[a-f0-9]{8}$`)
)

// IsAIBranch reports whether branch carries the AI prefix.
func IsAIBranch(branch string) bool {
	return strings.HasPrefix(branch, AIPrefix)
}

// MirrorBranchName returns the AI mirror of humanBranch.
func MirrorBranchName(humanBranch string) string {
	return AIPrefix + humanBranch
}

// InferHumanBranch strips the AI prefix and any explore or session suffix
// from an AI branch name. ok is false when branch is not an AI branch or
// nothing remains after stripping.
//
//	ai/main                              -> main
//	ai/feature/login/2026-02-05-deadbeef -> feature/login
//	ai/main/explore-2026-02-05-deadbeef  -> main
func InferHumanBranch(branch string) (string, bool) {
	if !IsAIBranch(branch) {
		return "", false
	}
	rest := strings.TrimPrefix(branch, AIPrefix)
	rest = exploreSuffixPattern.ReplaceAllString(rest, "")
	rest = sessionSuffixPattern.ReplaceAllString(rest, "")
	if rest == "" {
		return "", false
	}
	return rest, true
}

// Bookkeeping commit marker. The subject prefix is the historical signal and
// must stay bit-for-bit stable; the trailer is the versioned form written
// alongside it. Both writer and detector live in this file.
const (
	LedgerCommitPrefix  = "chore(ledger): capture trace for"
	LedgerMarkerKey     = "Ledger-Marker"
	LedgerMarkerVersion = "v1"
	sourceBranchKey     = "source-branch"
	sourceCommitKey     = "source-commit"
)

// FormatLedgerCommitMessage builds the message of a bookkeeping commit that
// records the trace for sourceCommit on sourceBranch.
func FormatLedgerCommitMessage(sourceBranch, sourceCommit string) string {
	short := sourceCommit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s %s\n\n%s: %s\n%s: %s\n%s: %s\n",
		LedgerCommitPrefix, short,
		sourceBranchKey, sourceBranch,
		sourceCommitKey, sourceCommit,
		LedgerMarkerKey, LedgerMarkerVersion,
	)
}

// IsLedgerCommit reports whether a full commit message belongs to a ledger
// bookkeeping commit: either the subject starts with LedgerCommitPrefix or
// the final trailer paragraph carries exactly "Ledger-Marker: v1".
func IsLedgerCommit(message string) bool {
	message = strings.TrimSpace(message)
	subject, body, _ := strings.Cut(message, "\n")
	if strings.HasPrefix(strings.TrimSpace(subject), LedgerCommitPrefix) {
		return true
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return false
	}
	trailers := body
	if i := strings.LastIndex(body, "\n\n"); i >= 0 {
		trailers = body[i+2:]
	}
	want := LedgerMarkerKey + ": " + LedgerMarkerVersion
	for _, line := range strings.Split(trailers, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

// ParseLedgerTrailers extracts source-branch and source-commit from a
// bookkeeping commit message.
func ParseLedgerTrailers(message string) (sourceBranch, sourceCommit string) {
	for _, line := range strings.Split(message, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case sourceBranchKey:
			sourceBranch = strings.TrimSpace(value)
		case sourceCommitKey:
			sourceCommit = strings.TrimSpace(value)
		}
	}
	return sourceBranch, sourceCommit
}
