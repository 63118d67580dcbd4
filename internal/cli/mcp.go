package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	novamcp "github.com/Pr0Services/novagov/internal/mcp"
)

var (
	mcpPolicy   string
	mcpState    string
	mcpAuditLog string
	mcpAgentID  string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpPolicy, "policy", "", "Path to governance YAML (default ~/.novagov/governance.yaml)")
	mcpCmd.Flags().StringVar(&mcpState, "state", "", "Path to SQLite state database")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to hash-chained audit JSONL file")
	mcpCmd.Flags().StringVar(&mcpAgentID, "agent-id", "", "Agent identifier recorded on every decision")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs novagov as an MCP (Model Context Protocol) server over stdio.\nExposes governance tools: validate, approve, reject, pending, lock_scope, stats.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := novamcp.New(novamcp.Config{
		PolicyPath:   mcpPolicy,
		StatePath:    mcpState,
		AuditLogPath: mcpAuditLog,
		AgentID:      mcpAgentID,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "novagov MCP server running on stdio")
	return srv.Run(ctx)
}
