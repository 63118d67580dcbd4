package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Pr0Services/novagov/internal/engine"
	"github.com/Pr0Services/novagov/internal/model"
	"github.com/Pr0Services/novagov/internal/scopelock"
)

// --- Input/Output types ---

// ValidateInput defines parameters for the nova_validate tool.
type ValidateInput struct {
	IdentityID      string `json:"identity_id" jsonschema:"user the action is performed for"`
	SphereID        string `json:"sphere_id,omitempty" jsonschema:"life-sphere the action belongs to"`
	Sensitivity     string `json:"sensitivity" jsonschema:"risk tier (low/medium/high/critical)"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty" jsonschema:"estimated token cost"`
	Title           string `json:"title,omitempty" jsonschema:"short human-readable summary of the action"`
}

// ValidateOutput carries the governance decision.
type ValidateOutput struct {
	Allowed            bool     `json:"allowed"`
	RequiresCheckpoint bool     `json:"requires_checkpoint,omitempty"`
	CheckpointID       string   `json:"checkpoint_id,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// DecisionInput defines parameters for nova_approve and nova_reject.
type DecisionInput struct {
	CheckpointID string `json:"checkpoint_id" jsonschema:"checkpoint to decide"`
	DecidedBy    string `json:"decided_by" jsonschema:"user making the decision"`
	Reason       string `json:"reason,omitempty" jsonschema:"decision rationale (required for reject)"`
}

// DecisionOutput confirms the decision.
type DecisionOutput struct {
	CheckpointID string `json:"checkpoint_id"`
	Status       string `json:"status"`
}

// PendingInput filters the pending list.
type PendingInput struct {
	IdentityID string `json:"identity_id,omitempty" jsonschema:"only checkpoints for this user"`
}

// PendingOutput lists checkpoints awaiting a decision.
type PendingOutput struct {
	Checkpoints []PendingItem `json:"checkpoints"`
}

// PendingItem describes a single pending checkpoint.
type PendingItem struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Sensitivity     string `json:"sensitivity"`
	EstimatedTokens int    `json:"estimated_tokens"`
	CreatedAt       string `json:"created_at"`
	ExpiresAt       string `json:"expires_at"`
}

// LockScopeInput defines parameters for the nova_lock_scope tool.
type LockScopeInput struct {
	Level      string `json:"level" jsonschema:"scope level (selection/document/thread/project/sphere/global)"`
	TargetID   string `json:"target_id" jsonschema:"id of the scoped target"`
	TargetName string `json:"target_name,omitempty" jsonschema:"display name of the target"`
	IdentityID string `json:"identity_id" jsonschema:"user acquiring the lock"`
	TTLMinutes int    `json:"ttl_minutes,omitempty" jsonschema:"lock lifetime in minutes (default 60)"`
}

// LockScopeOutput confirms the lock.
type LockScopeOutput struct {
	Locked    bool   `json:"locked"`
	Level     string `json:"level"`
	TargetID  string `json:"target_id"`
	ExpiresAt string `json:"expires_at"`
}

// StatsInput is empty, no parameters needed.
type StatsInput struct{}

// --- Handlers ---

func (s *Server) handleValidate(ctx context.Context, req *mcpsdk.CallToolRequest, input ValidateInput) (*mcpsdk.CallToolResult, ValidateOutput, error) {
	sens := model.Sensitivity(input.Sensitivity)
	if _, ok := model.SensRank[sens]; !ok {
		return nil, ValidateOutput{}, fmt.Errorf("unknown sensitivity %q", input.Sensitivity)
	}
	if input.IdentityID == "" {
		return nil, ValidateOutput{}, fmt.Errorf("identity_id is required")
	}

	res := s.eng.Validate(engine.ValidateRequest{
		IdentityID:      input.IdentityID,
		SphereID:        input.SphereID,
		Sensitivity:     sens,
		EstimatedTokens: input.EstimatedTokens,
		Title:           input.Title,
		AgentID:         s.agentID,
	})

	out := ValidateOutput{
		Allowed:            res.Allowed,
		RequiresCheckpoint: res.RequiresCheckpoint,
		CheckpointID:       res.CheckpointID,
		Reason:             res.Reason,
		Warnings:           res.Warnings,
	}
	if !res.Allowed && !res.RequiresCheckpoint {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input DecisionInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	if !s.eng.Approve(input.CheckpointID, input.DecidedBy, input.Reason) {
		return nil, DecisionOutput{}, fmt.Errorf("checkpoint %s not found or not actionable", input.CheckpointID)
	}
	return nil, DecisionOutput{CheckpointID: input.CheckpointID, Status: "approved"}, nil
}

func (s *Server) handleReject(ctx context.Context, req *mcpsdk.CallToolRequest, input DecisionInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	if input.Reason == "" {
		return nil, DecisionOutput{}, fmt.Errorf("reject requires a reason")
	}
	if !s.eng.Reject(input.CheckpointID, input.DecidedBy, input.Reason) {
		return nil, DecisionOutput{}, fmt.Errorf("checkpoint %s not found or not actionable", input.CheckpointID)
	}
	return nil, DecisionOutput{CheckpointID: input.CheckpointID, Status: "rejected"}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	pending := s.eng.Pending(input.IdentityID)
	items := make([]PendingItem, len(pending))
	for i, cp := range pending {
		items[i] = PendingItem{
			ID:              cp.ID,
			Title:           cp.Title,
			Sensitivity:     string(cp.Sensitivity),
			EstimatedTokens: cp.EstimatedTokens,
			CreatedAt:       cp.CreatedAt.Format(time.RFC3339),
			ExpiresAt:       cp.ExpiresAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Checkpoints: items}, nil
}

func (s *Server) handleLockScope(ctx context.Context, req *mcpsdk.CallToolRequest, input LockScopeInput) (*mcpsdk.CallToolResult, LockScopeOutput, error) {
	level := model.ScopeLevel(input.Level)
	if !level.Valid() {
		return nil, LockScopeOutput{}, fmt.Errorf("unknown scope level %q", input.Level)
	}
	ttl := time.Duration(input.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = scopelock.DefaultTTL
	}
	lock := s.eng.LockScope(level, input.TargetID, input.TargetName, input.IdentityID, ttl)
	return nil, LockScopeOutput{
		Locked:    true,
		Level:     string(lock.Level),
		TargetID:  lock.TargetID,
		ExpiresAt: lock.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleStats(ctx context.Context, req *mcpsdk.CallToolRequest, input StatsInput) (*mcpsdk.CallToolResult, model.GovernanceStats, error) {
	return nil, s.eng.Stats(), nil
}
