package store

import (
	"crypto/sha256"
	"encoding/hex"
	"path"

	"github.com/joescharf/ledger/internal/models"
)

// DefaultDir is the ledger directory name relative to the repository root.
const DefaultDir = ".codex-ledger"

// Keys are slash-separated paths relative to the ledger root. Every backend
// stores data under the same keys so the file layout stays stable.
const (
	SessionsKey           = "sessions.json"
	TracesDir             = "traces"
	ConflictsDir          = "conflicts"
	AnnotationsDir        = "annotations"
	AnnotationsConsumed   = "annotations/consumed"
	AnnotationsPendingKey = "annotations/pending.json"
	ReportsDir            = "reports"
	LockFile              = "ledger.lock"
)

// layoutDirs are created by EnsureStore.
var layoutDirs = []string{TracesDir, ConflictsDir, AnnotationsDir, AnnotationsConsumed, ReportsDir}

func traceMarkdownKey(commitHash string) string {
	return path.Join(TracesDir, commitHash+".md")
}

func traceMetaKey(commitHash string) string {
	return path.Join(TracesDir, commitHash+".json")
}

func conflictKey(sessionID string) string {
	return path.Join(ConflictsDir, sessionID+".json")
}

func consumedAnnotationKey(commitHash string) string {
	return path.Join(AnnotationsConsumed, commitHash+".json")
}

func reportKey(sessionID string, kind models.ReportKind) string {
	return path.Join(ReportsDir, sessionID+"-"+string(kind)+".md")
}

// HashPrompt returns the hex sha256 of prompt.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
