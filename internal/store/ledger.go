// Package store persists ledger sessions, conflicts, annotations and traces.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/models"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend for Open.
type Config struct {
	// Root is the ledger directory, normally <repo>/.codex-ledger.
	Root    string
	Backend string
	Lock    bool
}

// Ledger implements Store on top of a Backend. Every read-modify-write goes
// through the optional PIDLock; without one the last writer wins.
type Ledger struct {
	backend Backend
	lock    *PIDLock
	now     func() time.Time
	newID   func() string
}

var _ Store = (*Ledger)(nil)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used for every timestamp the ledger writes.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDFunc sets the annotation id generator.
func WithIDFunc(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// WithLock serializes mutations through lock.
func WithLock(lock *PIDLock) Option {
	return func(l *Ledger) { l.lock = lock }
}

// New returns a Ledger over backend.
func New(backend Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.newID == nil {
		l.newID = func() string { return newULID(l.now()) }
	}
	return l
}

// Open builds a Ledger from cfg.
func Open(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("ledger root is required: %w", errs.ErrInvalidInput)
	}

	var backend Backend
	switch cfg.Backend {
	case "", BackendFile:
		backend = NewFileBackend(cfg.Root)
	case BackendMemory:
		backend = NewMemoryBackend()
	case BackendSQLite:
		b, err := NewSQLiteBackend(filepath.Join(cfg.Root, SQLiteDBName))
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown ledger backend %q (expected file, memory or sqlite): %w", cfg.Backend, errs.ErrInvalidInput)
	}

	if cfg.Lock {
		opts = append([]Option{WithLock(NewPIDLock(filepath.Join(cfg.Root, LockFile)))}, opts...)
	}
	return New(backend, opts...), nil
}

// newULID generates a new ULID string for t.
func newULID(t time.Time) string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(t), ulid.Monotonic(entropy, 0)).String()
}

func (l *Ledger) withLock(ctx context.Context, fn func() error) error {
	if l.lock == nil {
		return fn()
	}
	release, err := l.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (l *Ledger) getJSON(ctx context.Context, key string, v any) error {
	data, err := l.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return l.backend.Put(ctx, key, append(data, '\n'))
}

// EnsureStore creates the layout and an empty sessions index if absent.
func (l *Ledger) EnsureStore(ctx context.Context) error {
	if err := l.backend.Init(ctx, layoutDirs); err != nil {
		return err
	}
	return l.withLock(ctx, func() error {
		_, err := l.backend.Get(ctx, SessionsKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return l.putJSON(ctx, SessionsKey, models.NewSessionsIndex())
	})
}

// --- Sessions ---

// ReadSessionsIndex returns the whole index. A missing index reads as empty.
func (l *Ledger) ReadSessionsIndex(ctx context.Context) (*models.SessionsIndex, error) {
	index := models.NewSessionsIndex()
	err := l.getJSON(ctx, SessionsKey, index)
	if errors.Is(err, errs.ErrNotFound) {
		return models.NewSessionsIndex(), nil
	}
	if err != nil {
		return nil, err
	}
	if index.Version != models.SessionsIndexVersion {
		return nil, fmt.Errorf("sessions index version %d is not supported: %w", index.Version, errs.ErrPreconditionFailed)
	}
	if index.Sessions == nil {
		index.Sessions = map[string]*models.SessionRecord{}
	}
	return index, nil
}

// WriteSessionsIndex replaces the whole index.
func (l *Ledger) WriteSessionsIndex(ctx context.Context, index *models.SessionsIndex) error {
	return l.withLock(ctx, func() error {
		return l.putJSON(ctx, SessionsKey, index)
	})
}

// mutateIndex runs fn over the current index and writes it back.
func (l *Ledger) mutateIndex(ctx context.Context, fn func(*models.SessionsIndex) error) error {
	return l.withLock(ctx, func() error {
		index, err := l.ReadSessionsIndex(ctx)
		if err != nil {
			return err
		}
		if err := fn(index); err != nil {
			return err
		}
		return l.putJSON(ctx, SessionsKey, index)
	})
}

// UpsertSession merges the non-empty fields of record onto the stored session
// with the same id. The first StartedAt is kept, UpdatedAt is always
// refreshed, and a history entry is appended only when the status changes.
func (l *Ledger) UpsertSession(ctx context.Context, record *models.SessionRecord) (*models.SessionRecord, error) {
	if record == nil || record.SessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", errs.ErrInvalidInput)
	}

	var merged *models.SessionRecord
	err := l.mutateIndex(ctx, func(index *models.SessionsIndex) error {
		now := l.now()
		existing := index.Sessions[record.SessionID]

		next := models.SessionRecord{SessionID: record.SessionID}
		var prior models.SessionStatus
		if existing != nil {
			next = *existing
			next.StatusHistory = append([]models.StatusHistoryEntry(nil), existing.StatusHistory...)
			prior = existing.Status
		}
		mergeSession(&next, record)

		if next.StartedAt.IsZero() {
			next.StartedAt = now
		}
		next.UpdatedAt = &now
		if next.Status != "" && next.Status != prior {
			next.StatusHistory = append(next.StatusHistory, models.StatusHistoryEntry{Status: next.Status, At: now})
		}

		index.Sessions[next.SessionID] = &next
		merged = &next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert session %s: %w", record.SessionID, err)
	}
	return merged, nil
}

// mergeSession copies the set fields of src onto dst. StartedAt is copied
// only when dst has none.
func mergeSession(dst, src *models.SessionRecord) {
	if src.Branch != "" {
		dst.Branch = src.Branch
	}
	if src.BaseBranch != "" {
		dst.BaseBranch = src.BaseBranch
	}
	if dst.StartedAt.IsZero() && !src.StartedAt.IsZero() {
		dst.StartedAt = src.StartedAt
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.TrackingPolicy != "" {
		dst.TrackingPolicy = src.TrackingPolicy
	}
	if src.LastPromptSummary != "" {
		dst.LastPromptSummary = src.LastPromptSummary
	}
	if src.ChatRefHash != "" {
		dst.ChatRefHash = src.ChatRefHash
	}
	if src.ClosedAt != nil {
		dst.ClosedAt = src.ClosedAt
	}
	if src.ArchivedAt != nil {
		dst.ArchivedAt = src.ArchivedAt
	}
	if src.ReopenedAt != nil {
		dst.ReopenedAt = src.ReopenedAt
	}
}

// UpdateSessionStatus sets the status of an existing session, appends a
// history entry and stamps the matching closedAt/archivedAt/reopenedAt.
func (l *Ledger) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus, reason string) (*models.SessionRecord, error) {
	var updated *models.SessionRecord
	err := l.mutateIndex(ctx, func(index *models.SessionsIndex) error {
		s, ok := index.Sessions[id]
		if !ok {
			return fmt.Errorf("session %s does not exist: %w", id, errs.ErrPreconditionFailed)
		}
		now := l.now()
		s.Status = status
		s.UpdatedAt = &now
		s.StatusHistory = append(s.StatusHistory, models.StatusHistoryEntry{Status: status, At: now, Reason: reason})
		switch status {
		case models.SessionStatusClosed:
			s.ClosedAt = &now
		case models.SessionStatusArchived:
			s.ArchivedAt = &now
		case models.SessionStatusReopened:
			s.ReopenedAt = &now
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}
	return updated, nil
}

// UpdateSessionTrackingPolicy sets the tracking policy of an existing session.
func (l *Ledger) UpdateSessionTrackingPolicy(ctx context.Context, id string, policy models.TrackingPolicy) (*models.SessionRecord, error) {
	var updated *models.SessionRecord
	err := l.mutateIndex(ctx, func(index *models.SessionsIndex) error {
		s, ok := index.Sessions[id]
		if !ok {
			return fmt.Errorf("session %s does not exist: %w", id, errs.ErrPreconditionFailed)
		}
		now := l.now()
		s.TrackingPolicy = policy
		s.UpdatedAt = &now
		updated = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update session tracking policy: %w", err)
	}
	return updated, nil
}

// GetSession returns the session with id.
func (l *Ledger) GetSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	index, err := l.ReadSessionsIndex(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := index.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
	}
	return s, nil
}

// GetSessionByBranch returns the most recently active session on branch.
func (l *Ledger) GetSessionByBranch(ctx context.Context, branch string) (*models.SessionRecord, error) {
	sessions, err := l.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.Branch == branch {
			return s, nil
		}
	}
	return nil, fmt.Errorf("session on branch %s: %w", branch, errs.ErrNotFound)
}

// ListSessions returns every session, most recently active first.
func (l *Ledger) ListSessions(ctx context.Context) ([]*models.SessionRecord, error) {
	index, err := l.ReadSessionsIndex(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*models.SessionRecord, 0, len(index.Sessions))
	for _, s := range index.Sessions {
		sessions = append(sessions, s)
	}
	SortByActivity(sessions)
	return sessions, nil
}

// SortByActivity orders sessions by UpdatedAt (falling back to StartedAt)
// descending, then by id.
func SortByActivity(sessions []*models.SessionRecord) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].LastActivity(), sessions[j].LastActivity()
		if !a.Equal(b) {
			return a.After(b)
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
}

// --- Conflicts ---

// ReadConflictState returns the conflict record for sessionID, or nil if
// none was ever written.
func (l *Ledger) ReadConflictState(ctx context.Context, sessionID string) (*models.ConflictState, error) {
	var state models.ConflictState
	err := l.getJSON(ctx, conflictKey(sessionID), &state)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// WriteConflictState overwrites the conflict record for state.SessionID.
func (l *Ledger) WriteConflictState(ctx context.Context, state *models.ConflictState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("conflict state needs a session id: %w", errs.ErrInvalidInput)
	}
	return l.withLock(ctx, func() error {
		return l.putJSON(ctx, conflictKey(state.SessionID), state)
	})
}

// UpsertConflictState merges patch onto the stored record. Unset patch
// fields keep their prior value, CreatedAt is fixed by the first write and
// UpdatedAt is always refreshed.
func (l *Ledger) UpsertConflictState(ctx context.Context, sessionID string, patch models.ConflictPatch) (*models.ConflictState, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("conflict state needs a session id: %w", errs.ErrInvalidInput)
	}

	var next *models.ConflictState
	err := l.withLock(ctx, func() error {
		existing, err := l.ReadConflictState(ctx, sessionID)
		if err != nil {
			return err
		}
		now := l.now()
		state := models.ConflictState{SessionID: sessionID, CreatedAt: now, Status: models.ConflictStatusIdle}
		if existing != nil {
			state = *existing
			state.SessionID = sessionID
		}
		state.UpdatedAt = now
		if patch.Status != "" {
			state.Status = patch.Status
		}
		if patch.SourceBranch != "" {
			state.SourceBranch = patch.SourceBranch
		}
		if patch.AIBranch != "" {
			state.AIBranch = patch.AIBranch
		}
		if patch.Reason != "" {
			state.Reason = patch.Reason
		}
		if patch.Conflicts != nil {
			state.Conflicts = patch.Conflicts
		}
		next = &state
		return l.putJSON(ctx, conflictKey(sessionID), next)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert conflict state %s: %w", sessionID, err)
	}
	return next, nil
}

// --- Annotations ---

// WritePendingAnnotation fills in id, hash, timestamp and source, then
// replaces any pending annotation.
func (l *Ledger) WritePendingAnnotation(ctx context.Context, record *models.AnnotationRecord) (*models.AnnotationRecord, error) {
	if record == nil || strings.TrimSpace(record.Prompt) == "" {
		return nil, fmt.Errorf("annotation prompt is required: %w", errs.ErrInvalidInput)
	}
	a := *record
	if a.ID == "" {
		a.ID = l.newID()
	}
	a.PromptHash = HashPrompt(a.Prompt)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.now()
	}
	a.Source = models.AnnotationSourceManual

	err := l.withLock(ctx, func() error {
		return l.putJSON(ctx, AnnotationsPendingKey, &a)
	})
	if err != nil {
		return nil, fmt.Errorf("write pending annotation: %w", err)
	}
	return &a, nil
}

// ReadPendingAnnotation returns the pending annotation, or nil if none.
func (l *Ledger) ReadPendingAnnotation(ctx context.Context) (*models.AnnotationRecord, error) {
	var a models.AnnotationRecord
	err := l.getJSON(ctx, AnnotationsPendingKey, &a)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ConsumePendingAnnotation moves the pending annotation to the consumed
// record for commitHash. It returns nil, nil when nothing is pending.
func (l *Ledger) ConsumePendingAnnotation(ctx context.Context, commitHash string) (*models.ConsumedAnnotationRecord, error) {
	var consumed *models.ConsumedAnnotationRecord
	err := l.withLock(ctx, func() error {
		pending, err := l.ReadPendingAnnotation(ctx)
		if err != nil || pending == nil {
			return err
		}
		consumed = &models.ConsumedAnnotationRecord{
			AnnotationRecord: *pending,
			CommitHash:       commitHash,
			ConsumedAt:       l.now(),
		}
		if err := l.putJSON(ctx, consumedAnnotationKey(commitHash), consumed); err != nil {
			return err
		}
		return l.backend.Delete(ctx, AnnotationsPendingKey)
	})
	if err != nil {
		return nil, fmt.Errorf("consume pending annotation: %w", err)
	}
	return consumed, nil
}

// --- Traces and reports ---

// WriteTraceMarkdown renders content for commitHash and returns its key.
func (l *Ledger) WriteTraceMarkdown(ctx context.Context, commitHash string, content models.TraceContent) (string, error) {
	key := traceMarkdownKey(commitHash)
	if err := l.backend.Put(ctx, key, []byte(RenderTrace(commitHash, content))); err != nil {
		return "", err
	}
	return key, nil
}

// WriteTraceMeta stores meta next to its trace markdown and returns its key.
func (l *Ledger) WriteTraceMeta(ctx context.Context, meta *models.TraceMeta) (string, error) {
	if meta == nil || meta.CommitHash == "" {
		return "", fmt.Errorf("trace meta needs a commit hash: %w", errs.ErrInvalidInput)
	}
	key := traceMetaKey(meta.CommitHash)
	if err := l.putJSON(ctx, key, meta); err != nil {
		return "", err
	}
	return key, nil
}

// ReadTraceMeta returns the trace metadata for commitHash.
func (l *Ledger) ReadTraceMeta(ctx context.Context, commitHash string) (*models.TraceMeta, error) {
	var meta models.TraceMeta
	if err := l.getJSON(ctx, traceMetaKey(commitHash), &meta); err != nil {
		return nil, fmt.Errorf("trace %s: %w", commitHash, err)
	}
	return &meta, nil
}

// ListTraces returns the commit hashes that have trace metadata, sorted.
func (l *Ledger) ListTraces(ctx context.Context) ([]string, error) {
	keys, err := l.backend.List(ctx, TracesDir+"/")
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(keys))
	for _, key := range keys {
		name := path.Base(key)
		if hash, ok := strings.CutSuffix(name, ".json"); ok {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

// WriteReport stores a rendered session report and returns its key.
func (l *Ledger) WriteReport(ctx context.Context, sessionID string, kind models.ReportKind, content string) (string, error) {
	key := reportKey(sessionID, kind)
	if err := l.backend.Put(ctx, key, []byte(content)); err != nil {
		return "", err
	}
	return key, nil
}

// ReadReport returns a stored session report.
func (l *Ledger) ReadReport(ctx context.Context, sessionID string, kind models.ReportKind) (string, error) {
	data, err := l.backend.Get(ctx, reportKey(sessionID, kind))
	if err != nil {
		return "", fmt.Errorf("%s report for %s: %w", kind, sessionID, err)
	}
	return string(data), nil
}

// ListReports returns the kinds of report stored for sessionID.
func (l *Ledger) ListReports(ctx context.Context, sessionID string) ([]models.ReportKind, error) {
	prefix := path.Join(ReportsDir, sessionID) + "-"
	keys, err := l.backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var kinds []models.ReportKind
	for _, key := range keys {
		kind, ok := strings.CutSuffix(strings.TrimPrefix(key, prefix), ".md")
		if ok && models.IsReportKind(kind) {
			kinds = append(kinds, models.ReportKind(kind))
		}
	}
	return kinds, nil
}

// Close releases the backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}

// RenderTrace formats the markdown body of a commit trace.
func RenderTrace(commitHash string, content models.TraceContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Trace %s\n\n## Summary\n%s\n\n## Risk Assessment\n%s\n",
		commitHash, strings.TrimSpace(content.Summary), content.Risk)
	if d := strings.TrimSpace(content.Details); d != "" {
		fmt.Fprintf(&b, "\n## Details\n%s\n", d)
	}
	return b.String()
}
