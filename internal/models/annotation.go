package models

import "time"

// AnnotationSourceManual marks annotations recorded by the annotate command.
const AnnotationSourceManual = "manual"

// AnnotationRecord is a manual prompt attribution waiting for the next commit.
type AnnotationRecord struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	PromptHash string    `json:"promptHash"`
	Model      string    `json:"model,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Source     string    `json:"source"`
}

// ConsumedAnnotationRecord is an annotation claimed by a commit.
type ConsumedAnnotationRecord struct {
	AnnotationRecord
	CommitHash string    `json:"commitHash"`
	ConsumedAt time.Time `json:"consumedAt"`
}
