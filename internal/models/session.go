package models

import "time"

// SessionStatus represents the lifecycle state of a ledger session.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusClosed   SessionStatus = "closed"
	SessionStatusArchived SessionStatus = "archived"
	SessionStatusReopened SessionStatus = "reopened"
)

// TrackingPolicy is the configured strategy for remediating divergence
// between a human branch and its AI mirror.
type TrackingPolicy string

const (
	PolicyMirrorOnly TrackingPolicy = "mirror-only"
	PolicyRebaseAI   TrackingPolicy = "rebase-ai"
	PolicyMergeAI    TrackingPolicy = "merge-ai"
	PolicyManual     TrackingPolicy = "manual"
)

// StatusHistoryEntry records one status transition. The history is append-only.
type StatusHistoryEntry struct {
	Status SessionStatus `json:"status"`
	At     time.Time     `json:"at"`
	Reason string        `json:"reason,omitempty"`
}

// SessionRecord is a unit of work linking an AI branch, a tracking policy
// and a lifecycle status.
type SessionRecord struct {
	SessionID         string               `json:"sessionId"`
	Branch            string               `json:"branch"`
	BaseBranch        string               `json:"baseBranch,omitempty"`
	StartedAt         time.Time            `json:"startedAt"`
	UpdatedAt         *time.Time           `json:"updatedAt,omitempty"`
	Status            SessionStatus        `json:"status,omitempty"`
	StatusHistory     []StatusHistoryEntry `json:"statusHistory,omitempty"`
	TrackingPolicy    TrackingPolicy       `json:"trackingPolicy,omitempty"`
	LastPromptSummary string               `json:"lastPromptSummary,omitempty"`
	ChatRefHash       string               `json:"chatRefHash,omitempty"`
	ClosedAt          *time.Time           `json:"closedAt,omitempty"`
	ArchivedAt        *time.Time           `json:"archivedAt,omitempty"`
	ReopenedAt        *time.Time           `json:"reopenedAt,omitempty"`
}

// LastActivity returns UpdatedAt, falling back to StartedAt.
func (s *SessionRecord) LastActivity() time.Time {
	if s.UpdatedAt != nil && !s.UpdatedAt.IsZero() {
		return *s.UpdatedAt
	}
	return s.StartedAt
}

// SessionsIndexVersion is the only supported sessions.json schema version.
const SessionsIndexVersion = 1

// SessionsIndex is the entire session table, read and written as one unit.
type SessionsIndex struct {
	Version  int                       `json:"version"`
	Sessions map[string]*SessionRecord `json:"sessions"`
}

// NewSessionsIndex returns an empty index at the current schema version.
func NewSessionsIndex() *SessionsIndex {
	return &SessionsIndex{
		Version:  SessionsIndexVersion,
		Sessions: map[string]*SessionRecord{},
	}
}
