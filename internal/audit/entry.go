package audit

import "time"

// Action is the kind of governance event an audit entry records.
type Action string

const (
	ActionCheckpointCreated   Action = "checkpoint_created"
	ActionCheckpointApproved  Action = "checkpoint_approved"
	ActionCheckpointRejected  Action = "checkpoint_rejected"
	ActionCheckpointEscalated Action = "checkpoint_escalated"
	ActionCheckpointsExpired  Action = "checkpoints_expired"
	ActionExecutionValidated  Action = "execution_validated"
	ActionExecutionDenied     Action = "execution_denied"
	ActionViolationDetected   Action = "violation_detected"
	ActionViolationResolved   Action = "violation_resolved"
	ActionScopeLocked         Action = "scope_locked"
	ActionScopeUnlocked       Action = "scope_unlocked"
	ActionSettingsChanged     Action = "settings_changed"
	ActionAuditPurged         Action = "audit_purged"
)

// Source is who caused the event.
type Source string

const (
	SourceUser   Source = "user"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
	SourceNova   Source = "nova"
)

// Entry is one governance-relevant event. Entries are immutable once
// appended; only a retention purge may remove them.
type Entry struct {
	ID           string         `json:"id"`
	Action       Action         `json:"action"`
	IdentityID   string         `json:"identity_id,omitempty"`
	SphereID     string         `json:"sphere_id,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Description  string         `json:"description"`
	Details      map[string]any `json:"details,omitempty"`
	TokensBefore *int           `json:"tokens_before,omitempty"`
	TokensAfter  *int           `json:"tokens_after,omitempty"`
	TokensDelta  int            `json:"tokens_delta"`
	LawsChecked  []string       `json:"laws_checked,omitempty"`
	LawsViolated []string       `json:"laws_violated,omitempty"`
	Timestamp    time.Time      `json:"ts"`
	DurationMS   int64          `json:"duration_ms,omitempty"`
	Source       Source         `json:"source"`
}

// Filter selects audit entries in Query and Export.
// Zero-valued fields match everything.
type Filter struct {
	IdentityID string    `json:"identity_id,omitempty"`
	SphereID   string    `json:"sphere_id,omitempty"`
	Action     Action    `json:"action,omitempty"`
	Since      time.Time `json:"since,omitzero"`
	Until      time.Time `json:"until,omitzero"`
	Limit      int       `json:"limit,omitempty"`
}

func (f Filter) matches(e Entry) bool {
	if f.IdentityID != "" && e.IdentityID != f.IdentityID {
		return false
	}
	if f.SphereID != "" && e.SphereID != f.SphereID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
