// Package checkpoint implements the governance checkpoint lifecycle:
// create (possibly auto-approved), approve, reject, escalate, expire.
// All transitions check-and-apply under one mutex so a checkpoint can
// never be, say, approved and expired in the same instant.
package checkpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/model"
	"github.com/Pr0Services/novagov/internal/policy"
)

// CreateParams describes the sensitive action a checkpoint will gate.
type CreateParams struct {
	Type            model.CheckpointType `json:"type"`
	Sensitivity     model.Sensitivity    `json:"sensitivity"`
	IdentityID      string               `json:"identity_id"`
	SphereID        string               `json:"sphere_id,omitempty"`
	ThreadID        string               `json:"thread_id,omitempty"`
	AgentID         string               `json:"agent_id,omitempty"`
	Title           string               `json:"title"`
	Description     string               `json:"description,omitempty"`
	ActionSummary   []string             `json:"action_summary,omitempty"`
	EstimatedTokens int                  `json:"estimated_tokens"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
}

// Manager owns all checkpoints and the single "active" pointer: the one
// checkpoint foregrounded for interactive approval at a time.
type Manager struct {
	mu          sync.Mutex
	checkpoints map[string]*model.Checkpoint
	order       []string // insertion order, oldest first
	activeID    string
	log         *audit.Log
}

// NewManager creates a Manager recording lifecycle events to log.
func NewManager(log *audit.Log) *Manager {
	return &Manager{
		checkpoints: make(map[string]*model.Checkpoint),
		log:         log,
	}
}

// Create builds a checkpoint for the given action. The checkpoint is
// auto-approved iff autoApproveLow is on, the sensitivity is low, and the
// estimated cost is within the tier's max_auto_tokens; otherwise it is
// created pending and becomes the active checkpoint. The estimated cost
// is reserved either way.
func (m *Manager) Create(p CreateParams, sc policy.SensitivityConfig, autoApproveLow bool) model.Checkpoint {
	now := time.Now().UTC()

	status := model.StatusPending
	if autoApproveLow && p.Sensitivity == model.SensLow && p.EstimatedTokens <= sc.MaxAutoTokens {
		status = model.StatusAutoApproved
	}

	cp := model.Checkpoint{
		ID:              model.NewCheckpointID(),
		Type:            p.Type,
		Status:          status,
		Sensitivity:     p.Sensitivity,
		IdentityID:      p.IdentityID,
		SphereID:        p.SphereID,
		ThreadID:        p.ThreadID,
		AgentID:         p.AgentID,
		Title:           p.Title,
		Description:     p.Description,
		ActionSummary:   p.ActionSummary,
		EstimatedTokens: p.EstimatedTokens,
		ReservedTokens:  p.EstimatedTokens,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(sc.ExpiryMinutes) * time.Minute),
		Metadata:        p.Metadata,
	}

	m.mu.Lock()
	m.checkpoints[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	if status != model.StatusAutoApproved {
		m.activeID = cp.ID
	}
	snapshot := cp
	m.mu.Unlock()

	entry := audit.Entry{
		Action:      audit.ActionCheckpointCreated,
		IdentityID:  p.IdentityID,
		SphereID:    p.SphereID,
		AgentID:     p.AgentID,
		Description: fmt.Sprintf("checkpoint %q created (%s, %s)", p.Title, p.Type, status),
		Details: map[string]any{
			"checkpoint_id":    cp.ID,
			"type":             string(p.Type),
			"status":           string(status),
			"sensitivity":      string(p.Sensitivity),
			"estimated_tokens": p.EstimatedTokens,
		},
		Source: sourceFor(p.AgentID),
	}
	if status == model.StatusAutoApproved {
		// Auto-approval consumes the reservation immediately.
		before, after := 0, p.EstimatedTokens
		entry.TokensBefore = &before
		entry.TokensAfter = &after
	}
	m.log.Append(entry)

	return snapshot
}

// Approve moves an actionable checkpoint to approved. Returns false if
// the checkpoint is unknown or no longer actionable. Reason is optional.
func (m *Manager) Approve(id, decidedBy, reason string) bool {
	cp, ok := m.transition(id, model.StatusApproved, decidedBy, reason)
	if !ok {
		return false
	}

	before, after := 0, cp.ReservedTokens
	m.log.Append(audit.Entry{
		Action:       audit.ActionCheckpointApproved,
		IdentityID:   cp.IdentityID,
		SphereID:     cp.SphereID,
		AgentID:      cp.AgentID,
		Description:  fmt.Sprintf("checkpoint %q approved by %s", cp.Title, decidedBy),
		Details:      decisionDetails(cp, decidedBy, reason),
		TokensBefore: &before,
		TokensAfter:  &after,
		DurationMS:   cp.DecidedAt.Sub(cp.CreatedAt).Milliseconds(),
		Source:       audit.SourceUser,
	})
	return true
}

// Reject moves an actionable checkpoint to rejected. Reason is mandatory:
// a denial must always be explainable. Returns false on unknown id,
// non-actionable status, or empty reason.
func (m *Manager) Reject(id, decidedBy, reason string) bool {
	if reason == "" {
		return false
	}
	cp, ok := m.transition(id, model.StatusRejected, decidedBy, reason)
	if !ok {
		return false
	}

	m.log.Append(audit.Entry{
		Action:      audit.ActionCheckpointRejected,
		IdentityID:  cp.IdentityID,
		SphereID:    cp.SphereID,
		AgentID:     cp.AgentID,
		Description: fmt.Sprintf("checkpoint %q rejected by %s: %s", cp.Title, decidedBy, reason),
		Details:     decisionDetails(cp, decidedBy, reason),
		DurationMS:  cp.DecidedAt.Sub(cp.CreatedAt).Milliseconds(),
		Source:      audit.SourceUser,
	})
	return true
}

// transition applies an approve/reject decision atomically.
func (m *Manager) transition(id string, to model.CheckpointStatus, decidedBy, reason string) (model.Checkpoint, bool) {
	m.mu.Lock()
	cp, ok := m.checkpoints[id]
	if !ok || !cp.Status.Actionable() {
		m.mu.Unlock()
		return model.Checkpoint{}, false
	}
	now := time.Now().UTC()
	cp.Status = to
	cp.DecidedAt = &now
	cp.DecidedBy = decidedBy
	cp.DecisionReason = reason
	if m.activeID == id {
		m.activeID = ""
	}
	snapshot := *cp
	m.mu.Unlock()
	return snapshot, true
}

// Escalate routes a pending checkpoint to a higher-authority decider.
// The checkpoint stays actionable (and still counts toward queue depth);
// notifying the target is an external concern. Fails unless the current
// status is pending.
func (m *Manager) Escalate(id, escalateTo string) bool {
	m.mu.Lock()
	cp, ok := m.checkpoints[id]
	if !ok || cp.Status != model.StatusPending {
		m.mu.Unlock()
		return false
	}
	cp.Status = model.StatusEscalated
	cp.EscalationLevel++
	cp.EscalatedTo = escalateTo
	snapshot := *cp
	m.mu.Unlock()

	m.log.Append(audit.Entry{
		Action:      audit.ActionCheckpointEscalated,
		IdentityID:  snapshot.IdentityID,
		SphereID:    snapshot.SphereID,
		Description: fmt.Sprintf("checkpoint %q escalated to %s (level %d)", snapshot.Title, escalateTo, snapshot.EscalationLevel),
		Details: map[string]any{
			"checkpoint_id":    snapshot.ID,
			"escalated_to":     escalateTo,
			"escalation_level": snapshot.EscalationLevel,
		},
		Source: audit.SourceSystem,
	})
	return true
}

// ExpireSweep transitions every actionable checkpoint past its expiry to
// expired and returns how many were expired. Idempotent for a fixed now.
// A single batch audit entry summarizes the sweep; per-item entries would
// let a stuck queue flood the ring.
func (m *Manager) ExpireSweep(now time.Time) int {
	m.mu.Lock()
	var expired []string
	for _, id := range m.order {
		cp := m.checkpoints[id]
		if cp.Status.Actionable() && cp.ExpiresAt.Before(now) {
			cp.Status = model.StatusExpired
			expired = append(expired, id)
			if m.activeID == id {
				m.activeID = ""
			}
		}
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		m.log.Append(audit.Entry{
			Action:      audit.ActionCheckpointsExpired,
			Description: fmt.Sprintf("%d checkpoint(s) expired unanswered", len(expired)),
			Details: map[string]any{
				"count":          len(expired),
				"checkpoint_ids": expired,
			},
			Source: audit.SourceSystem,
		})
	}
	return len(expired)
}

// PendingFor returns checkpoints awaiting a decision now (status pending;
// escalated and auto-approved excluded), newest first, optionally
// filtered by identity.
func (m *Manager) PendingFor(identityID string) []model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Checkpoint
	for i := len(m.order) - 1; i >= 0; i-- {
		cp := m.checkpoints[m.order[i]]
		if cp.Status != model.StatusPending {
			continue
		}
		if identityID != "" && cp.IdentityID != identityID {
			continue
		}
		out = append(out, *cp)
	}
	return out
}

// QueueDepth counts checkpoints holding a queue slot: pending plus
// escalated (escalation does not release the slot).
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, cp := range m.checkpoints {
		if cp.Status.Actionable() {
			n++
		}
	}
	return n
}

// Get returns a checkpoint by id.
func (m *Manager) Get(id string) (model.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return model.Checkpoint{}, false
	}
	return *cp, true
}

// Active returns the checkpoint currently foregrounded for interactive
// approval, if any.
func (m *Manager) Active() (model.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == "" {
		return model.Checkpoint{}, false
	}
	cp, ok := m.checkpoints[m.activeID]
	if !ok {
		return model.Checkpoint{}, false
	}
	return *cp, true
}

// CountByStatus tallies checkpoints per status.
func (m *Manager) CountByStatus() map[model.CheckpointStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.CheckpointStatus]int)
	for _, cp := range m.checkpoints {
		counts[cp.Status]++
	}
	return counts
}

// ApprovalLatencies returns created→decided durations for approved
// checkpoints, for the mean-approval-latency stat.
func (m *Manager) ApprovalLatencies() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, cp := range m.checkpoints {
		if cp.Status == model.StatusApproved && cp.DecidedAt != nil {
			out = append(out, cp.DecidedAt.Sub(cp.CreatedAt))
		}
	}
	return out
}

// Restore reinserts a checkpoint loaded from persistence without writing
// audit entries.
func (m *Manager) Restore(cp model.Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cp
	m.checkpoints[cp.ID] = &c
	m.order = append(m.order, cp.ID)
}

// All returns every checkpoint in insertion order, for persistence.
func (m *Manager) All() []model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Checkpoint, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.checkpoints[id])
	}
	return out
}

func decisionDetails(cp model.Checkpoint, decidedBy, reason string) map[string]any {
	return map[string]any{
		"checkpoint_id": cp.ID,
		"decided_by":    decidedBy,
		"reason":        reason,
		"type":          string(cp.Type),
		"sensitivity":   string(cp.Sensitivity),
	}
}

func sourceFor(agentID string) audit.Source {
	if agentID != "" {
		return audit.SourceAgent
	}
	return audit.SourceUser
}
