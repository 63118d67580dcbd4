package model

import "time"

// Sensitivity classifies the risk tier of a proposed action.
type Sensitivity string

const (
	SensLow      Sensitivity = "low"
	SensMedium   Sensitivity = "medium"
	SensHigh     Sensitivity = "high"
	SensCritical Sensitivity = "critical"
)

// SensRank maps sensitivity to a comparable integer. Higher rank = stricter.
var SensRank = map[Sensitivity]int{
	SensLow:      0,
	SensMedium:   1,
	SensHigh:     2,
	SensCritical: 3,
}

// Tiers lists all sensitivity tiers in ascending strictness order.
var Tiers = []Sensitivity{SensLow, SensMedium, SensHigh, SensCritical}

// CheckpointType categorizes what kind of operation a checkpoint gates.
type CheckpointType string

const (
	TypeExecution    CheckpointType = "execution"
	TypeBudget       CheckpointType = "budget"
	TypeScopeChange  CheckpointType = "scope_change"
	TypeAgentAction  CheckpointType = "agent_action"
	TypeDataAccess   CheckpointType = "data_access"
	TypeExternalCall CheckpointType = "external_call"
	TypeDelete       CheckpointType = "delete"
	TypeCrossSphere  CheckpointType = "cross_sphere"
)

// CheckpointStatus is the lifecycle state of a checkpoint.
type CheckpointStatus string

const (
	StatusPending      CheckpointStatus = "pending"
	StatusAutoApproved CheckpointStatus = "auto_approved"
	StatusApproved     CheckpointStatus = "approved"
	StatusRejected     CheckpointStatus = "rejected"
	StatusEscalated    CheckpointStatus = "escalated"
	StatusExpired      CheckpointStatus = "expired"
)

// Actionable reports whether a checkpoint in this status can still be
// approved or rejected. Escalation does not terminate the lifecycle.
func (s CheckpointStatus) Actionable() bool {
	return s == StatusPending || s == StatusEscalated
}

// Checkpoint is a pending-approval record gating a sensitive action.
type Checkpoint struct {
	ID              string            `json:"id"`
	Type            CheckpointType    `json:"type"`
	Status          CheckpointStatus  `json:"status"`
	Sensitivity     Sensitivity       `json:"sensitivity"`
	IdentityID      string            `json:"identity_id"`
	SphereID        string            `json:"sphere_id,omitempty"`
	ThreadID        string            `json:"thread_id,omitempty"`
	AgentID         string            `json:"agent_id,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	ActionSummary   []string          `json:"action_summary,omitempty"`
	EstimatedTokens int               `json:"estimated_tokens"`
	ReservedTokens  int               `json:"reserved_tokens"`
	EscalationLevel int               `json:"escalation_level"`
	EscalatedTo     string            `json:"escalated_to,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	DecidedBy       string            `json:"decided_by,omitempty"`
	DecisionReason  string            `json:"decision_reason,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Severity grades a detected law violation.
type Severity string

const (
	SevWarning  Severity = "warning"
	SevError    Severity = "error"
	SevCritical Severity = "critical"
)

// Violation records a detected breach of a governance law.
// Once Resolved is true it is never flipped back.
type Violation struct {
	ID              string     `json:"id"`
	LawCode         string     `json:"law_code"`
	Severity        Severity   `json:"severity"`
	IdentityID      string     `json:"identity_id,omitempty"`
	SphereID        string     `json:"sphere_id,omitempty"`
	AgentID         string     `json:"agent_id,omitempty"`
	Description     string     `json:"description"`
	Expected        string     `json:"expected,omitempty"`
	Actual          string     `json:"actual,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	DetectedAt      time.Time  `json:"detected_at"`
}

// ScopeLevel is the granularity of the current operating scope.
type ScopeLevel string

const (
	ScopeSelection ScopeLevel = "selection"
	ScopeDocument  ScopeLevel = "document"
	ScopeThread    ScopeLevel = "thread"
	ScopeProject   ScopeLevel = "project"
	ScopeSphere    ScopeLevel = "sphere"
	ScopeGlobal    ScopeLevel = "global"
)

// Valid reports whether l is one of the defined scope levels.
func (l ScopeLevel) Valid() bool {
	switch l {
	case ScopeSelection, ScopeDocument, ScopeThread, ScopeProject, ScopeSphere, ScopeGlobal:
		return true
	}
	return false
}

// ScopeLock marks the single context currently authorized for operations.
// At most one active lock exists system-wide; acquiring replaces, never stacks.
type ScopeLock struct {
	Active     bool       `json:"active"`
	Level      ScopeLevel `json:"level,omitempty"`
	TargetID   string     `json:"target_id,omitempty"`
	TargetName string     `json:"target_name,omitempty"`
	LockedBy   string     `json:"locked_by,omitempty"`
	LockedAt   time.Time  `json:"locked_at,omitzero"`
	ExpiresAt  time.Time  `json:"expires_at,omitzero"`
}

// Expired reports whether an active lock has passed its expiry at now.
func (l ScopeLock) Expired(now time.Time) bool {
	return l.Active && now.After(l.ExpiresAt)
}

// Settings are the runtime-tunable governance knobs.
type Settings struct {
	Enabled                 bool `json:"enabled" yaml:"enabled"`
	StrictMode              bool `json:"strict_mode" yaml:"strict_mode"`
	AutoApproveLow          bool `json:"auto_approve_low" yaml:"auto_approve_low"`
	CheckpointExpiryMinutes int  `json:"checkpoint_expiry_minutes" yaml:"checkpoint_expiry_minutes"`
	MaxPendingCheckpoints   int  `json:"max_pending_checkpoints" yaml:"max_pending_checkpoints"`
	RequireScopeLock        bool `json:"require_scope_lock" yaml:"require_scope_lock"`
	AuditRetentionDays      int  `json:"audit_retention_days" yaml:"audit_retention_days"`
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	Enabled                 *bool `json:"enabled,omitempty"`
	StrictMode              *bool `json:"strict_mode,omitempty"`
	AutoApproveLow          *bool `json:"auto_approve_low,omitempty"`
	CheckpointExpiryMinutes *int  `json:"checkpoint_expiry_minutes,omitempty"`
	MaxPendingCheckpoints   *int  `json:"max_pending_checkpoints,omitempty"`
	RequireScopeLock        *bool `json:"require_scope_lock,omitempty"`
	AuditRetentionDays      *int  `json:"audit_retention_days,omitempty"`
}

// ValidationResult is the outcome of validating a proposed execution.
type ValidationResult struct {
	Allowed            bool     `json:"allowed"`
	RequiresCheckpoint bool     `json:"requires_checkpoint"`
	Reason             string   `json:"reason,omitempty"`
	LawsChecked        []string `json:"laws_checked"`
	Warnings           []string `json:"warnings,omitempty"`
	CheckpointID       string   `json:"checkpoint_id,omitempty"`
}

// GovernanceStats are derived counters over the engine state.
type GovernanceStats struct {
	TotalCheckpoints     int     `json:"total_checkpoints"`
	PendingCheckpoints   int     `json:"pending_checkpoints"`
	ApprovedCheckpoints  int     `json:"approved_checkpoints"`
	RejectedCheckpoints  int     `json:"rejected_checkpoints"`
	ExpiredCheckpoints   int     `json:"expired_checkpoints"`
	TotalViolations      int     `json:"total_violations"`
	UnresolvedViolations int     `json:"unresolved_violations"`
	TokensConsumedToday  int     `json:"tokens_consumed_today"`
	MeanApprovalSeconds  float64 `json:"mean_approval_seconds"`
	ScopeLocked          bool    `json:"scope_locked"`
}
