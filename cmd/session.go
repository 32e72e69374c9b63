package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/output"
	"github.com/joescharf/ledger/internal/plan"
	"github.com/joescharf/ledger/internal/sessions"
)

var (
	sessionExplore bool
	sessionBranch  string
	sessionBase    string
	sessionIDFlag  string
	sessionPolicy  string
	sessionReason  string
	sessionStatus  string
	sessionFormat  string
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Open, list and manage ledger sessions",
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open [task...]",
	Short: "Open a session on an ai/* branch",
	Long: `Open a session for a task. From a human branch this creates a new
ai/<date>-<token> branch; on an existing ai/* branch the branch is reused.
--explore creates an exploration branch under the current ai/* parent.

The working tree must be clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionOpenRun(commandContext(cmd), strings.Join(args, " "))
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close [session-id]",
	Short: "Mark a session closed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionTransitionRun(commandContext(cmd), argOrSession(args), models.SessionStatusClosed)
	},
}

var sessionArchiveCmd = &cobra.Command{
	Use:   "archive [session-id]",
	Short: "Mark a session archived",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionTransitionRun(commandContext(cmd), argOrSession(args), models.SessionStatusArchived)
	},
}

var sessionReopenCmd = &cobra.Command{
	Use:   "reopen [session-id]",
	Short: "Reopen a closed or archived session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionTransitionRun(commandContext(cmd), argOrSession(args), models.SessionStatusReopened)
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun(commandContext(cmd))
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show one session record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(commandContext(cmd), argOrSession(args))
	},
}

func init() {
	sessionOpenCmd.Flags().BoolVar(&sessionExplore, "explore", false, "Create an exploration branch under the ai/* parent")
	sessionOpenCmd.Flags().StringVar(&sessionBranch, "branch", "", "Use this branch name instead of generating one")
	sessionOpenCmd.Flags().StringVar(&sessionBase, "base", "", "Base branch for a new session (default: session.base_branch or current)")
	sessionOpenCmd.Flags().StringVar(&sessionIDFlag, "id", "", "Use this session ID instead of generating one")
	sessionOpenCmd.Flags().StringVar(&sessionPolicy, "policy", "", "Tracking policy: mirror-only, rebase-ai, merge-ai, manual")

	for _, c := range []*cobra.Command{sessionCloseCmd, sessionArchiveCmd, sessionReopenCmd} {
		c.Flags().StringVar(&sessionReason, "reason", "", "Reason recorded in the status history")
	}

	sessionListCmd.Flags().StringVar(&sessionStatus, "status", "", "Filter by status: active, closed, archived, reopened")
	sessionShowCmd.Flags().StringVar(&sessionFormat, "format", "yaml", "Output format: yaml, json")

	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
	sessionCmd.AddCommand(sessionArchiveCmd)
	sessionCmd.AddCommand(sessionReopenCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	rootCmd.AddCommand(sessionCmd)
}

// argOrSession prefers a positional session id over --session.
func argOrSession(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return sessionID
}

func sessionOpenRun(ctx context.Context, task string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	res, err := m.Open(ctx, sessions.OpenOptions{
		Task:      task,
		Explore:   sessionExplore,
		Branch:    sessionBranch,
		Base:      sessionBase,
		SessionID: sessionIDFlag,
		Policy:    sessionPolicy,
		DryRun:    dryRun,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(res)
	}

	if dryRun {
		ui.DryRunMsg("Would %s branch %s (%s)", res.Plan.Action, res.Plan.BranchName, res.Plan.Reason)
		return nil
	}

	ui.Success("Session %s on %s", output.Cyan(res.Session.SessionID), output.Cyan(res.Session.Branch))
	ui.VerboseLog("%s: %s", res.Plan.Action, res.Plan.Reason)
	if slug := plan.SlugifyTask(task); slug != "" {
		ui.VerboseLog("task: %s", slug)
	}
	ui.Info("Tracking policy: %s", res.Session.TrackingPolicy)
	return nil
}

func sessionTransitionRun(ctx context.Context, id string, status models.SessionStatus) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	if dryRun {
		c, err := m.Resolve(ctx, id)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would mark session %s %s", c.SessionID, status)
		return nil
	}

	var s *models.SessionRecord
	switch status {
	case models.SessionStatusClosed:
		s, err = m.Close(ctx, id, sessionReason)
	case models.SessionStatusArchived:
		s, err = m.Archive(ctx, id, sessionReason)
	default:
		s, err = m.Reopen(ctx, id, sessionReason)
	}
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(s)
	}
	ui.Success("Session %s is now %s", output.Cyan(s.SessionID), output.StatusColor(string(s.Status)))
	return nil
}

func sessionListRun(ctx context.Context) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	list, err := m.List(ctx)
	if err != nil {
		return err
	}

	filtered := list[:0]
	for _, s := range list {
		if sessionStatus == "" || string(s.Status) == sessionStatus {
			filtered = append(filtered, s)
		}
	}

	if jsonOut {
		return ui.JSON(filtered)
	}

	if len(filtered) == 0 {
		ui.Info("No sessions. Use 'ledger session open <task>' to start one.")
		return nil
	}

	table := ui.Table([]string{"Session", "Branch", "Status", "Policy", "Activity", "Task"})
	for _, s := range filtered {
		table.Append([]string{
			s.SessionID,
			s.Branch,
			output.StatusColor(string(s.Status)),
			string(s.TrackingPolicy),
			formatActivity(s.LastActivity()),
			truncate(s.LastPromptSummary, 40),
		})
	}
	return table.Render()
}

func sessionShowRun(ctx context.Context, id string) error {
	m, err := getManager()
	if err != nil {
		return err
	}

	c, err := m.Resolve(ctx, id)
	if err != nil {
		return err
	}

	if jsonOut || sessionFormat == "json" {
		return ui.JSON(c.Session)
	}
	if sessionFormat != "yaml" {
		return fmt.Errorf("unknown format: %s (expected yaml or json)", sessionFormat)
	}

	return writeYAML(c.Session)
}

// writeYAML prints v as block-style YAML with the same keys as its JSON
// encoding.
func writeYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(ui.Out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// formatActivity renders t relative to now for table output.
func formatActivity(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
