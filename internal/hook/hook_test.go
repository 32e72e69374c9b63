package hook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/git"
	"github.com/joescharf/ledger/internal/llm"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/store"
	"github.com/joescharf/ledger/internal/testutil"
)

type fakeSummarizer struct {
	summary *llm.CommitSummary
	err     error
	got     llm.CommitInput
}

func (f *fakeSummarizer) SummarizeCommit(_ context.Context, in llm.CommitInput) (*llm.CommitSummary, error) {
	f.got = in
	return f.summary, f.err
}

func newRunner(t *testing.T, dir string) (*Runner, *store.Ledger) {
	t.Helper()
	s := store.New(store.NewMemoryBackend())
	return &Runner{
		Store: s,
		Git:   git.NewClient(),
		Dir:   dir,
		Now:   func() time.Time { return time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC) },
	}, s
}

func TestRun_MirrorsHumanCommit(t *testing.T) {
	dir := testutil.InitRepo(t)
	head := testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: add a\n\nlonger body")
	r, s := newRunner(t, dir)
	ctx := context.Background()

	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, head, res.CommitHash)
	assert.Equal(t, "ai/main", res.MirrorBranch)
	assert.Equal(t, head, testutil.Git(t, dir, "rev-parse", "ai/main"))
	assert.Equal(t, "traces/"+head+".md", res.TraceKey)
	assert.False(t, res.Summarized)

	meta, err := s.ReadTraceMeta(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, "main", meta.SourceBranch)
	assert.Equal(t, "main-human", meta.SessionID)
	assert.Equal(t, store.HashPrompt("feat: add a\n\nlonger body"), meta.PromptHash)
	assert.Nil(t, meta.Annotation)
}

func TestRun_UsesMirrorSessionID(t *testing.T) {
	dir := testutil.InitRepo(t)
	head := testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: a")
	r, s := newRunner(t, dir)
	ctx := context.Background()
	_, err := s.UpsertSession(ctx, &models.SessionRecord{SessionID: "mirror-session", Branch: "ai/main"})
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.NoError(t, err)

	meta, err := s.ReadTraceMeta(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, "mirror-session", meta.SessionID)
}

func TestRun_ConsumesPendingAnnotation(t *testing.T) {
	dir := testutil.InitRepo(t)
	head := testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: a")
	r, s := newRunner(t, dir)
	ctx := context.Background()

	_, err := s.WritePendingAnnotation(ctx, &models.AnnotationRecord{Prompt: "make a", SessionID: "s1"})
	require.NoError(t, err)

	res, err := r.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Annotation)
	assert.Equal(t, head, res.Annotation.CommitHash)

	meta, err := s.ReadTraceMeta(ctx, head)
	require.NoError(t, err)
	require.NotNil(t, meta.Annotation)
	assert.Equal(t, "make a", meta.Annotation.Prompt)

	pending, err := s.ReadPendingAnnotation(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRun_SkipsAIBranch(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.Git(t, dir, "checkout", "-b", "ai/main")
	head := testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: ai work")
	r, s := newRunner(t, dir)
	ctx := context.Background()

	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, err = s.ReadTraceMeta(ctx, head)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRun_LedgerCommitsKeepBranchesInSync(t *testing.T) {
	dir := testutil.InitRepo(t)
	head := testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: a")
	r, _ := newRunner(t, dir)
	r.Config.LedgerCommits = true

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, head, res.MirrorTip)
	assert.Equal(t, head, testutil.Git(t, dir, "rev-parse", "ai/main^"))

	msg := testutil.Git(t, dir, "log", "-1", "--pretty=%B", "ai/main")
	assert.True(t, divergence.IsLedgerCommit(msg))
	branch, commit := divergence.ParseLedgerTrailers(msg)
	assert.Equal(t, "main", branch)
	assert.Equal(t, head, commit)

	result, err := divergence.NewDetector(git.NewClient(), dir).Detect(divergence.Options{HumanBranch: "main"})
	require.NoError(t, err)
	assert.Equal(t, divergence.StatusInSync, result.Status)
}

func TestRun_LLMSummary(t *testing.T) {
	dir := testutil.InitRepo(t)
	head := testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: a")
	r, s := newRunner(t, dir)
	fake := &fakeSummarizer{summary: &llm.CommitSummary{
		Summary:   "Adds a.",
		Rationale: "Because a was missing.",
		Model:     "claude-test",
		RequestID: "msg_1",
	}}
	r.Summarizer = fake
	r.Config.LLMSummary = true
	r.Config.MaxDiffChars = 20
	ctx := context.Background()

	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Summarized)
	assert.Equal(t, "feat: a", fake.got.Subject)
	assert.Equal(t, []string{"a.txt"}, fake.got.ChangedFiles)
	assert.LessOrEqual(t, len(fake.got.Diff), 20)

	meta, err := s.ReadTraceMeta(ctx, head)
	require.NoError(t, err)
	require.NotNil(t, meta.LLM)
	assert.Equal(t, "msg_1", meta.LLM.RequestID)
}

func TestRun_LLMFailureFallsBack(t *testing.T) {
	dir := testutil.InitRepo(t)
	testutil.CommitFile(t, dir, "a.txt", "a\n", "feat: a")
	r, _ := newRunner(t, dir)
	r.Summarizer = &fakeSummarizer{err: errors.New("boom")}
	r.Config.LLMSummary = true

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Summarized)
	assert.Equal(t, "ai/main", res.MirrorBranch)
}

func TestBuildSummary(t *testing.T) {
	assert.Equal(t, "Human commit", BuildSummary("", ""))
	assert.Equal(t, "feat: a", BuildSummary("\n\nfeat: a\nbody", ""))
	assert.Equal(t,
		"feat: a (1 file changed, 1 insertion(+))",
		BuildSummary("feat: a", " a.txt | 1 +\n 1 file changed, 1 insertion(+)\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
