package models

import "time"

// RiskLevel is the coarse risk assessment recorded in a trace.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Med"
	RiskHigh   RiskLevel = "High"
)

// TraceContent is the human-readable part of a commit trace.
type TraceContent struct {
	Summary string
	Risk    RiskLevel
	Details string
}

// AnnotationMeta is the copy of an annotation embedded in a trace.
type AnnotationMeta struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	PromptHash string    `json:"promptHash"`
	Model      string    `json:"model,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LLMMetadata describes a model call that contributed to a trace.
type LLMMetadata struct {
	Model     string `json:"model,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// TraceMeta is the structured record stored next to a trace markdown file.
type TraceMeta struct {
	CommitHash   string          `json:"commitHash"`
	SourceCommit string          `json:"sourceCommit,omitempty"`
	SourceBranch string          `json:"sourceBranch,omitempty"`
	SessionID    string          `json:"sessionId"`
	PromptHash   string          `json:"promptHash,omitempty"`
	ChatRefHash  string          `json:"chatRefHash,omitempty"`
	Annotation   *AnnotationMeta `json:"annotation,omitempty"`
	Model        string          `json:"model,omitempty"`
	LLM          *LLMMetadata    `json:"llm,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ReportKind names a session report stored under reports/.
type ReportKind string

const (
	ReportTimeline   ReportKind = "timeline"
	ReportDiffReport ReportKind = "diff-report"
	ReportExplain    ReportKind = "explain"
)

// IsReportKind reports whether s names a known report kind.
func IsReportKind(s string) bool {
	switch ReportKind(s) {
	case ReportTimeline, ReportDiffReport, ReportExplain:
		return true
	}
	return false
}
