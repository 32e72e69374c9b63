package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/ledger/internal/divergence"
	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/policy"
	"github.com/joescharf/ledger/internal/sessions"
)

// Server exposes the session ledger of one repository as MCP tools.
type Server struct {
	manager *sessions.Manager
	version string
}

// NewServer creates the MCP server wrapper around a sessions manager.
func NewServer(m *sessions.Manager, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{manager: m, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ledger", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionStatusTool())
	srv.AddTool(s.resolvePolicyTool())
	srv.AddTool(s.conflictStatusTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// ledger_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ledger_list_sessions",
		mcp.WithDescription("List ledger sessions, most recently active first. Returns a JSON array with sessionId, branch, baseBranch, status, trackingPolicy and lastActivity."),
		mcp.WithString("status", mcp.Description("Filter by session status: active, closed, archived, reopened")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := request.GetString("status", "")
	list, err := s.manager.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		SessionID      string                `json:"sessionId"`
		Branch         string                `json:"branch"`
		BaseBranch     string                `json:"baseBranch,omitempty"`
		Status         models.SessionStatus  `json:"status,omitempty"`
		TrackingPolicy models.TrackingPolicy `json:"trackingPolicy,omitempty"`
		LastActivity   string                `json:"lastActivity"`
		Summary        string                `json:"summary,omitempty"`
	}

	out := make([]sessionOut, 0, len(list))
	for _, rec := range list {
		if status != "" && string(rec.Status) != status {
			continue
		}
		out = append(out, sessionOut{
			SessionID:      rec.SessionID,
			Branch:         rec.Branch,
			BaseBranch:     rec.BaseBranch,
			Status:         rec.Status,
			TrackingPolicy: rec.TrackingPolicy,
			LastActivity:   rec.LastActivity().Format(time.RFC3339),
			Summary:        rec.LastPromptSummary,
		})
	}

	return jsonResult(out)
}

// ledger_session_status
func (s *Server) sessionStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ledger_session_status",
		mcp.WithDescription("Detect divergence between a session's human branch and its ai/* mirror and resolve the tracking policy. Read-only: conflict state may be recorded but no branch is moved."),
		mcp.WithString("session", mcp.Description("Session ID. Defaults to the session of the current branch.")),
	)
	return tool, s.handleSessionStatus
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session", "")
	result, err := s.manager.Check(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to check session: %v", err)), nil
	}
	return jsonResult(result)
}

// ledger_resolve_policy
func (s *Server) resolvePolicyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ledger_resolve_policy",
		mcp.WithDescription("Look up the remediation action for a tracking policy and divergence status. Pure table lookup, touches nothing."),
		mcp.WithString("policy", mcp.Required(), mcp.Description("Tracking policy: mirror-only, rebase-ai, merge-ai, manual")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Divergence status: in_sync, ahead_human, ahead_ai, diverged")),
	)
	return tool, s.handleResolvePolicy
}

func (s *Server) handleResolvePolicy(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	policyName, err := request.RequireString("policy")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: policy"), nil
	}
	statusName, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	p, err := policy.ParseTrackingPolicy(policyName, policy.DefaultPolicy)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := divergence.Status(statusName)
	switch status {
	case divergence.StatusInSync, divergence.StatusAheadHuman, divergence.StatusAheadAI, divergence.StatusDiverged:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown divergence status: %s", statusName)), nil
	}

	return jsonResult(policy.Resolve(p, status))
}

// ledger_conflict_status
func (s *Server) conflictStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ledger_conflict_status",
		mcp.WithDescription("Get the conflict workflow state of a session. Sessions with no recorded conflict report idle."),
		mcp.WithString("session", mcp.Description("Session ID. Defaults to the session of the current branch.")),
	)
	return tool, s.handleConflictStatus
}

func (s *Server) handleConflictStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session", "")
	state, err := s.manager.ConflictStatus(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read conflict state: %v", err)), nil
	}
	return jsonResult(state)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
