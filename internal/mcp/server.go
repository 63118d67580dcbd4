// Package mcp exposes governance checkpoints to AI assistants over the
// Model Context Protocol. Agents validate actions before running them
// and surface pending approvals to the user.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Pr0Services/novagov/internal/engine"
	"github.com/Pr0Services/novagov/internal/server"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath   string
	StatePath    string
	AuditLogPath string
	AgentID      string
}

// Server wraps the MCP SDK server around the governance engine.
type Server struct {
	mcpServer *mcpsdk.Server
	core      *server.Server
	eng       *engine.Engine
	agentID   string
}

// New creates an MCP server backed by a local governance engine with
// restored state.
func New(cfg Config) (*Server, error) {
	core, err := server.New(server.Config{
		PolicyPath:   cfg.PolicyPath,
		StatePath:    cfg.StatePath,
		AuditLogPath: cfg.AuditLogPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create governance core: %w", err)
	}

	s := &Server{
		core:    core,
		eng:     core.Engine(),
		agentID: cfg.AgentID,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "novagov",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the store and audit sink.
func (s *Server) Close() error {
	return s.core.Close()
}

// registerTools adds all novagov tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "nova_validate",
		Description: "Check whether a proposed action may run. Returns allowed, or a checkpoint id the user must approve first.",
	}, s.handleValidate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "nova_approve",
		Description: "Approve a pending checkpoint on the user's behalf. Only call this after the user has explicitly confirmed.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "nova_reject",
		Description: "Reject a pending checkpoint. A reason is required.",
	}, s.handleReject)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "nova_pending",
		Description: "List checkpoints awaiting a decision.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "nova_lock_scope",
		Description: "Lock work to a single scope (document, thread, project, ...) so out-of-scope actions are denied.",
	}, s.handleLockScope)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "nova_stats",
		Description: "Summarize governance activity: checkpoint counts, violations, token spend, scope lock state.",
	}, s.handleStats)
}
