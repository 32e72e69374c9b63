package store

import (
	"context"

	"github.com/joescharf/ledger/internal/models"
)

// Store defines the persistence interface for the ledger.
type Store interface {
	// Layout
	EnsureStore(ctx context.Context) error

	// Sessions
	ReadSessionsIndex(ctx context.Context) (*models.SessionsIndex, error)
	WriteSessionsIndex(ctx context.Context, index *models.SessionsIndex) error
	UpsertSession(ctx context.Context, record *models.SessionRecord) (*models.SessionRecord, error)
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus, reason string) (*models.SessionRecord, error)
	UpdateSessionTrackingPolicy(ctx context.Context, id string, policy models.TrackingPolicy) (*models.SessionRecord, error)
	GetSession(ctx context.Context, id string) (*models.SessionRecord, error)
	GetSessionByBranch(ctx context.Context, branch string) (*models.SessionRecord, error)
	ListSessions(ctx context.Context) ([]*models.SessionRecord, error)

	// Conflicts
	ReadConflictState(ctx context.Context, sessionID string) (*models.ConflictState, error)
	WriteConflictState(ctx context.Context, state *models.ConflictState) error
	UpsertConflictState(ctx context.Context, sessionID string, patch models.ConflictPatch) (*models.ConflictState, error)

	// Annotations
	WritePendingAnnotation(ctx context.Context, record *models.AnnotationRecord) (*models.AnnotationRecord, error)
	ReadPendingAnnotation(ctx context.Context) (*models.AnnotationRecord, error)
	ConsumePendingAnnotation(ctx context.Context, commitHash string) (*models.ConsumedAnnotationRecord, error)

	// Traces and reports
	WriteTraceMarkdown(ctx context.Context, commitHash string, content models.TraceContent) (string, error)
	WriteTraceMeta(ctx context.Context, meta *models.TraceMeta) (string, error)
	ReadTraceMeta(ctx context.Context, commitHash string) (*models.TraceMeta, error)
	ListTraces(ctx context.Context) ([]string, error)
	WriteReport(ctx context.Context, sessionID string, kind models.ReportKind, content string) (string, error)
	ReadReport(ctx context.Context, sessionID string, kind models.ReportKind) (string, error)
	ListReports(ctx context.Context, sessionID string) ([]models.ReportKind, error)

	// Lifecycle
	Close() error
}
