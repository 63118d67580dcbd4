package mcp

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{AgentID: "agent-test"})
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidateToolAllowsLow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, out, err := s.handleValidate(ctx, &mcpsdk.CallToolRequest{}, ValidateInput{
		IdentityID:      "u1",
		Sensitivity:     "low",
		EstimatedTokens: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if !out.Allowed {
		t.Fatalf("low should be allowed: %+v", out)
	}
}

func TestValidateToolHoldsHigh(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleValidate(ctx, &mcpsdk.CallToolRequest{}, ValidateInput{
		IdentityID:  "u1",
		Sensitivity: "high",
		Title:       "send invoice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Allowed {
		t.Fatal("high must not be allowed outright")
	}
	if !out.RequiresCheckpoint || out.CheckpointID == "" {
		t.Fatalf("expected a checkpoint: %+v", out)
	}
}

func TestValidateToolRejectsUnknownSensitivity(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, ValidateInput{
		IdentityID:  "u1",
		Sensitivity: "extreme",
	})
	if err == nil {
		t.Fatal("expected error for unknown sensitivity")
	}
}

func TestApproveAndRejectTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, held, err := s.handleValidate(ctx, &mcpsdk.CallToolRequest{}, ValidateInput{
		IdentityID:  "u1",
		Sensitivity: "high",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if _, _, err := s.handleReject(ctx, &mcpsdk.CallToolRequest{}, DecisionInput{
		CheckpointID: held.CheckpointID,
		DecidedBy:    "u1",
	}); err == nil {
		t.Fatal("reject without reason should error")
	}

	_, out, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, DecisionInput{
		CheckpointID: held.CheckpointID,
		DecidedBy:    "u1",
		Reason:       "confirmed",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != "approved" {
		t.Fatalf("status = %q", out.Status)
	}

	// Already decided.
	if _, _, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, DecisionInput{
		CheckpointID: held.CheckpointID,
		DecidedBy:    "u1",
	}); err == nil {
		t.Fatal("double approve should error")
	}
}

func TestPendingTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, held, _ := s.handleValidate(ctx, &mcpsdk.CallToolRequest{}, ValidateInput{
		IdentityID:  "u1",
		Sensitivity: "critical",
		Title:       "delete sphere",
	})

	_, out, err := s.handlePending(ctx, &mcpsdk.CallToolRequest{}, PendingInput{IdentityID: "u1"})
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(out.Checkpoints) != 1 || out.Checkpoints[0].ID != held.CheckpointID {
		t.Fatalf("pending = %+v", out)
	}
	if out.Checkpoints[0].Title != "delete sphere" {
		t.Fatalf("title = %q", out.Checkpoints[0].Title)
	}
}

func TestLockScopeTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleLockScope(ctx, &mcpsdk.CallToolRequest{}, LockScopeInput{
		Level:      "project",
		TargetID:   "p1",
		IdentityID: "u1",
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !out.Locked || out.TargetID != "p1" {
		t.Fatalf("lock = %+v", out)
	}

	if _, _, err := s.handleLockScope(ctx, &mcpsdk.CallToolRequest{}, LockScopeInput{
		Level: "universe",
	}); err == nil {
		t.Fatal("unknown level should error")
	}
}

func TestStatsTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	s.handleValidate(ctx, &mcpsdk.CallToolRequest{}, ValidateInput{
		IdentityID:  "u1",
		Sensitivity: "high",
	})

	_, stats, err := s.handleStats(ctx, &mcpsdk.CallToolRequest{}, StatsInput{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCheckpoints != 1 {
		t.Fatalf("pending = %d, want 1", stats.PendingCheckpoints)
	}
}
