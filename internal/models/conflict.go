package models

import "time"

// ConflictStatus represents where a session is in the conflict workflow.
type ConflictStatus string

const (
	ConflictStatusIdle           ConflictStatus = "idle"
	ConflictStatusDetected       ConflictStatus = "conflict_detected"
	ConflictStatusPausedForHuman ConflictStatus = "paused_for_human_resolution"
	ConflictStatusResumed        ConflictStatus = "resumed"
	ConflictStatusResolved       ConflictStatus = "resolved"
)

// ConflictItemType classifies a single conflicting path.
type ConflictItemType string

const (
	ConflictTypeContent      ConflictItemType = "content"
	ConflictTypeAddAdd       ConflictItemType = "add/add"
	ConflictTypeDeleteModify ConflictItemType = "delete/modify"
	ConflictTypeRename       ConflictItemType = "rename"
	ConflictTypeUnknown      ConflictItemType = "unknown"
)

// ConflictItem is one conflicting file.
type ConflictItem struct {
	File   string           `json:"file"`
	Type   ConflictItemType `json:"type"`
	Detail string           `json:"detail,omitempty"`
}

// ConflictState is the per-session conflict record. CreatedAt never changes
// after the first write.
type ConflictState struct {
	SessionID    string         `json:"sessionId"`
	Status       ConflictStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	SourceBranch string         `json:"sourceBranch,omitempty"`
	AIBranch     string         `json:"aiBranch,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Conflicts    []ConflictItem `json:"conflicts,omitempty"`
}

// ConflictPatch carries the fields of an upsert. Empty fields keep the
// previously stored value; a nil Conflicts slice does too.
type ConflictPatch struct {
	Status       ConflictStatus
	SourceBranch string
	AIBranch     string
	Reason       string
	Conflicts    []ConflictItem
}
