// Package llm asks Claude to explain a commit for its ledger trace.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// CommitInput is everything the summarizer sees about one commit.
type CommitInput struct {
	Subject          string
	Message          string
	AnnotationPrompt string
	ChangedFiles     []string
	DiffStat         string
	Diff             string
	ExtraContext     string
}

// CommitSummary is the structured reply.
type CommitSummary struct {
	Summary       string `json:"summary"`
	Rationale     string `json:"rationale"`
	ReviewerNotes string `json:"reviewer_notes,omitempty"`

	// Model and RequestID describe the call, not the reply.
	Model     string `json:"-"`
	RequestID string `json:"-"`
}

// Summarizer explains a commit.
type Summarizer interface {
	SummarizeCommit(ctx context.Context, in CommitInput) (*CommitSummary, error)
}

// Client wraps the Anthropic API for commit summaries.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSummaryPrompt constructs the system and user prompts for a commit.
func buildSummaryPrompt(in CommitInput) (system string, user string) {
	system = `You are a senior developer reviewing a human commit.
Summarize the intent and rationale using the diff and context.
Return strict JSON with keys: summary, rationale, reviewer_notes.
summary: 1 short sentence. rationale: 2-4 sentences. reviewer_notes: optional bullet list.
Do not wrap JSON in markdown or code fences.`

	orNone := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "None"
		}
		return s
	}

	var sb strings.Builder
	sb.WriteString("Commit subject:\n")
	sb.WriteString(orNone(in.Subject))
	sb.WriteString("\n\nPrompt attribution:\n")
	sb.WriteString(orNone(in.AnnotationPrompt))
	sb.WriteString("\n\nCommit message:\n")
	sb.WriteString(in.Message)
	sb.WriteString("\n\nChanged files:\n")
	if len(in.ChangedFiles) == 0 {
		sb.WriteString("None")
	} else {
		for i, f := range in.ChangedFiles {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("- " + f)
		}
	}
	sb.WriteString("\n\nDiff stat:\n")
	sb.WriteString(orNone(in.DiffStat))
	sb.WriteString("\n\nDiff:\n")
	sb.WriteString(in.Diff)
	sb.WriteString("\n")
	if in.ExtraContext != "" {
		sb.WriteString("\nExtra context:\n")
		sb.WriteString(in.ExtraContext)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// SummarizeCommit sends the commit to the model and parses its JSON reply.
func (c *Client) SummarizeCommit(ctx context.Context, in CommitInput) (*CommitSummary, error) {
	systemPrompt, userPrompt := buildSummaryPrompt(in)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	summary, err := parseSummary(text)
	if err != nil {
		return nil, err
	}
	summary.Model = string(msg.Model)
	summary.RequestID = msg.ID
	return summary, nil
}

// parseSummary decodes a reply, tolerating markdown fencing.
func parseSummary(text string) (*CommitSummary, error) {
	text = stripFences(text)
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	var summary CommitSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if strings.TrimSpace(summary.Rationale) == "" {
		return nil, fmt.Errorf("LLM response has no rationale")
	}
	return &summary, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
