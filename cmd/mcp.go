package cmd

import (
	"github.com/spf13/cobra"

	ledgermcp "github.com/joescharf/ledger/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a coding agent query the ledger natively for sessions,
divergence and policy decisions. Configure it with:

  {
    "mcpServers": {
      "ledger": { "command": "ledger", "args": ["mcp"] }
    }
  }

Available tools: ledger_list_sessions, ledger_session_status,
ledger_resolve_policy, ledger_conflict_status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		return ledgermcp.NewServer(m, buildVersion).ServeStdio(commandContext(cmd))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
