// Package engine composes the governance components into the single
// logical authority the rest of the system talks to: validation of
// proposed executions, checkpoint decisions, violations, the scope lock,
// settings and derived statistics.
package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/checkpoint"
	"github.com/Pr0Services/novagov/internal/law"
	"github.com/Pr0Services/novagov/internal/model"
	"github.com/Pr0Services/novagov/internal/policy"
	"github.com/Pr0Services/novagov/internal/scopelock"
	"github.com/Pr0Services/novagov/internal/violation"
)

// SweepInterval is how often the periodic sweep runs.
const SweepInterval = 30 * time.Second

// Persister receives write-through copies of durable state. Persistence
// failures are reported to stderr and never fail a governance call.
type Persister interface {
	SaveCheckpoint(model.Checkpoint) error
	SaveViolation(model.Violation) error
	SaveSettings(model.Settings) error
	SaveScopeLock(model.ScopeLock) error
}

// ValidateRequest is a proposed execution to be checked.
type ValidateRequest struct {
	IdentityID      string             `json:"identity_id"`
	SphereID        string             `json:"sphere_id,omitempty"`
	EstimatedTokens int                `json:"estimated_tokens"`
	Sensitivity     model.Sensitivity  `json:"sensitivity"`
	AgentID         string             `json:"agent_id,omitempty"`
	ForceCheckpoint bool               `json:"force_checkpoint,omitempty"`
	Type            string             `json:"type,omitempty"`
	Title           string             `json:"title,omitempty"`
	Compliance      *law.ActionContext `json:"compliance,omitempty"`
}

// Engine is the governance authority. One instance owns all state;
// everything mutating goes through its mutex so transitions and their
// audit entries stay serialized.
type Engine struct {
	mu          sync.Mutex
	cfg         *policy.Config
	settings    model.Settings
	policyHash  string
	log         *audit.Log
	checkpoints *checkpoint.Manager
	violations  *violation.Tracker
	scope       *scopelock.Manager
	persist     Persister
}

// New creates an Engine from a loaded config. persist may be nil.
func New(cfg *policy.Config, policyHash string, log *audit.Log, persist Persister) *Engine {
	return &Engine{
		cfg:         cfg,
		settings:    cfg.Settings,
		policyHash:  policyHash,
		log:         log,
		checkpoints: checkpoint.NewManager(log),
		violations:  violation.NewTracker(log),
		scope:       scopelock.NewManager(log),
		persist:     persist,
	}
}

// Checkpoints exposes the lifecycle manager for restore at startup.
func (e *Engine) Checkpoints() *checkpoint.Manager { return e.checkpoints }

// Violations exposes the tracker for restore at startup.
func (e *Engine) Violations() *violation.Tracker { return e.violations }

// Scope exposes the lock manager for restore at startup.
func (e *Engine) Scope() *scopelock.Manager { return e.scope }

// Audit exposes the audit log.
func (e *Engine) Audit() *audit.Log { return e.log }

// PolicyHash returns the sha256 of the loaded governance config.
func (e *Engine) PolicyHash() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policyHash
}

// ReloadPolicy atomically swaps the sensitivity table and settings.
// Called by the hot-reloader on file change.
func (e *Engine) ReloadPolicy(cfg *policy.Config, hash string) {
	e.mu.Lock()
	e.cfg = cfg
	e.settings = cfg.Settings
	e.policyHash = hash
	e.mu.Unlock()
}

// RestoreSettings replaces the settings without an audit entry. Used at
// startup to reapply settings saved from a previous run.
func (e *Engine) RestoreSettings(s model.Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
}

// Validate decides whether a proposed execution may proceed, must be
// held behind a checkpoint, or is denied.
//
// Evaluation order (short-circuits on the first failing rule):
//  1. Governance disabled: allow unconditionally, with a warning
//  2. Pending queue depth at max_pending_checkpoints: deny
//  3. require_scope_lock with no active lock: deny
//  4. Law compliance (when context supplied): strict mode denies,
//     otherwise breaches become warnings; either way they are reported
//  5. Low sensitivity within max_auto_tokens: allow, no checkpoint
//  6. Otherwise a checkpoint gates the action
func (e *Engine) Validate(req ValidateRequest) model.ValidationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings := e.settings
	lawsChecked := lawStrings(law.CheckedCodes())

	if !settings.Enabled {
		res := model.ValidationResult{
			Allowed:     true,
			LawsChecked: lawsChecked,
			Warnings:    []string{"governance is disabled; execution not gated"},
		}
		e.auditValidation(req, res, nil)
		return res
	}

	if depth := e.checkpoints.QueueDepth(); depth >= settings.MaxPendingCheckpoints {
		res := model.ValidationResult{
			Reason:      fmt.Sprintf("too many pending approvals (%d)", depth),
			LawsChecked: lawsChecked,
		}
		e.auditValidation(req, res, nil)
		return res
	}

	if settings.RequireScopeLock && !e.scope.IsLocked() {
		res := model.ValidationResult{
			Reason:      "scope must be locked before execution",
			LawsChecked: lawsChecked,
		}
		e.auditValidation(req, res, nil)
		return res
	}

	var warnings []string
	var breached []law.Code
	if req.Compliance != nil {
		comp := law.CheckCompliance(*req.Compliance)
		breached = comp.Violations
		for _, code := range breached {
			l := law.Get(code)
			sev := model.SevWarning
			if l.Strength == law.Strict {
				sev = model.SevError
			}
			e.violations.Report(code, sev, violation.Context{
				IdentityID: req.IdentityID,
				SphereID:   req.SphereID,
				AgentID:    req.AgentID,
			}, fmt.Sprintf("detected while validating %q", req.Title),
				"compliant action", "breach of "+l.Name)
			warnings = append(warnings, fmt.Sprintf("%s (%s) breached", code, l.Name))
		}
		if len(breached) > 0 && settings.StrictMode {
			res := model.ValidationResult{
				Reason:      fmt.Sprintf("strict mode: law %s breached", breached[0]),
				LawsChecked: lawsChecked,
				Warnings:    warnings,
			}
			e.auditValidation(req, res, breached)
			return res
		}
	}

	sc := e.cfg.For(req.Sensitivity) // panics on unknown tier, by contract
	requires := sc.RequiresApproval || req.ForceCheckpoint

	if !requires && settings.AutoApproveLow &&
		req.Sensitivity == model.SensLow && req.EstimatedTokens <= sc.MaxAutoTokens {
		res := model.ValidationResult{
			Allowed:     true,
			LawsChecked: lawsChecked,
			Warnings:    warnings,
		}
		e.auditValidation(req, res, breached)
		return res
	}

	res := model.ValidationResult{
		Allowed:            !requires,
		RequiresCheckpoint: requires,
		LawsChecked:        lawsChecked,
		Warnings:           warnings,
	}
	if requires {
		res.Reason = fmt.Sprintf("%s sensitivity requires a checkpoint", req.Sensitivity)
		cp := e.createCheckpointLocked(checkpoint.CreateParams{
			Type:            checkpointType(req),
			Sensitivity:     req.Sensitivity,
			IdentityID:      req.IdentityID,
			SphereID:        req.SphereID,
			AgentID:         req.AgentID,
			Title:           titleOr(req),
			EstimatedTokens: req.EstimatedTokens,
		})
		res.CheckpointID = cp.ID
	}
	e.auditValidation(req, res, breached)
	return res
}

func (e *Engine) auditValidation(req ValidateRequest, res model.ValidationResult, breached []law.Code) {
	action := audit.ActionExecutionValidated
	if !res.Allowed && !res.RequiresCheckpoint {
		action = audit.ActionExecutionDenied
	}
	desc := "execution allowed"
	switch {
	case action == audit.ActionExecutionDenied:
		desc = "execution denied: " + res.Reason
	case res.RequiresCheckpoint:
		desc = "execution held for approval"
	}
	e.log.Append(audit.Entry{
		Action:       action,
		IdentityID:   req.IdentityID,
		SphereID:     req.SphereID,
		AgentID:      req.AgentID,
		Description:  desc,
		LawsChecked:  res.LawsChecked,
		LawsViolated: lawStrings(breached),
		Details: map[string]any{
			"sensitivity":      string(req.Sensitivity),
			"estimated_tokens": req.EstimatedTokens,
			"checkpoint_id":    res.CheckpointID,
			"policy_hash":      e.policyHash,
		},
		Source: sourceFor(req.AgentID),
	})
}

// CreateCheckpoint creates a checkpoint directly (outside Validate).
func (e *Engine) CreateCheckpoint(p checkpoint.CreateParams) model.Checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createCheckpointLocked(p)
}

func (e *Engine) createCheckpointLocked(p checkpoint.CreateParams) model.Checkpoint {
	sc := e.cfg.For(p.Sensitivity)
	cp := e.checkpoints.Create(p, sc, e.settings.AutoApproveLow)
	e.persistCheckpoint(cp.ID)
	return cp
}

// Approve approves an actionable checkpoint.
func (e *Engine) Approve(id, decidedBy, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.checkpoints.Approve(id, decidedBy, reason)
	if ok {
		e.persistCheckpoint(id)
	}
	return ok
}

// Reject rejects an actionable checkpoint; reason is mandatory.
func (e *Engine) Reject(id, decidedBy, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.checkpoints.Reject(id, decidedBy, reason)
	if ok {
		e.persistCheckpoint(id)
	}
	return ok
}

// Escalate routes a pending checkpoint to a higher authority.
func (e *Engine) Escalate(id, escalateTo string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.checkpoints.Escalate(id, escalateTo)
	if ok {
		e.persistCheckpoint(id)
	}
	return ok
}

// Pending lists checkpoints awaiting a decision now.
func (e *Engine) Pending(identityID string) []model.Checkpoint {
	return e.checkpoints.PendingFor(identityID)
}

// GetCheckpoint returns a checkpoint by id.
func (e *Engine) GetCheckpoint(id string) (model.Checkpoint, bool) {
	return e.checkpoints.Get(id)
}

// ReportViolation records a law breach.
func (e *Engine) ReportViolation(code law.Code, severity model.Severity, ctx violation.Context, description, expected, actual string) model.Violation {
	v := e.violations.Report(code, severity, ctx, description, expected, actual)
	e.persistViolation(v.ID)
	return v
}

// ResolveViolation closes a violation; one-way.
func (e *Engine) ResolveViolation(id, resolvedBy, notes string) bool {
	ok := e.violations.Resolve(id, resolvedBy, notes)
	if ok {
		e.persistViolation(id)
	}
	return ok
}

// UnresolvedViolations lists open violations.
func (e *Engine) UnresolvedViolations(identityID string) []model.Violation {
	return e.violations.Unresolved(identityID)
}

// LockScope acquires the scope lock, replacing any existing one.
func (e *Engine) LockScope(level model.ScopeLevel, targetID, targetName, identityID string, ttl time.Duration) model.ScopeLock {
	lk := e.scope.Lock(level, targetID, targetName, identityID, ttl)
	e.persistScopeLock()
	return lk
}

// UnlockScope clears the scope lock.
func (e *Engine) UnlockScope() {
	e.scope.Unlock()
	e.persistScopeLock()
}

// IsScopeLocked reports whether an unexpired lock is active.
func (e *Engine) IsScopeLocked() bool { return e.scope.IsLocked() }

// ScopeLock returns the current lock value.
func (e *Engine) ScopeLock() model.ScopeLock { return e.scope.Current() }

// QueryAudit returns audit entries, newest first.
func (e *Engine) QueryAudit(f audit.Filter) []audit.Entry { return e.log.Query(f) }

// ExportAudit serializes matching audit entries as JSON.
func (e *Engine) ExportAudit(f audit.Filter) ([]byte, error) { return e.log.Export(f) }

// Settings returns the current settings.
func (e *Engine) Settings() model.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings applies a partial settings update and audits the change.
func (e *Engine) UpdateSettings(patch model.SettingsPatch, changedBy string) model.Settings {
	e.mu.Lock()
	old := e.settings
	s := &e.settings
	if patch.Enabled != nil {
		s.Enabled = *patch.Enabled
	}
	if patch.StrictMode != nil {
		s.StrictMode = *patch.StrictMode
	}
	if patch.AutoApproveLow != nil {
		s.AutoApproveLow = *patch.AutoApproveLow
	}
	if patch.CheckpointExpiryMinutes != nil {
		s.CheckpointExpiryMinutes = *patch.CheckpointExpiryMinutes
	}
	if patch.MaxPendingCheckpoints != nil {
		s.MaxPendingCheckpoints = *patch.MaxPendingCheckpoints
	}
	if patch.RequireScopeLock != nil {
		s.RequireScopeLock = *patch.RequireScopeLock
	}
	if patch.AuditRetentionDays != nil {
		s.AuditRetentionDays = *patch.AuditRetentionDays
	}
	updated := e.settings
	e.mu.Unlock()

	e.log.Append(audit.Entry{
		Action:      audit.ActionSettingsChanged,
		IdentityID:  changedBy,
		Description: "governance settings changed",
		Details: map[string]any{
			"old": old,
			"new": updated,
		},
		Source: audit.SourceUser,
	})
	if e.persist != nil {
		if err := e.persist.SaveSettings(updated); err != nil {
			fmt.Fprintf(os.Stderr, "persist settings: %v\n", err)
		}
	}
	return updated
}

// Stats computes the derived governance counters.
func (e *Engine) Stats() model.GovernanceStats {
	counts := e.checkpoints.CountByStatus()
	total := 0
	for _, n := range counts {
		total += n
	}
	totalViolations, unresolved := e.violations.Counts()

	// Tokens consumed today: positive deltas on today's audit entries.
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	consumed := 0
	for _, entry := range e.log.Query(audit.Filter{Since: dayStart}) {
		if entry.TokensDelta > 0 {
			consumed += entry.TokensDelta
		}
	}

	var meanApproval float64
	if lats := e.checkpoints.ApprovalLatencies(); len(lats) > 0 {
		var sum time.Duration
		for _, d := range lats {
			sum += d
		}
		meanApproval = (sum / time.Duration(len(lats))).Seconds()
	}

	return model.GovernanceStats{
		TotalCheckpoints:     total,
		PendingCheckpoints:   e.checkpoints.QueueDepth(),
		ApprovedCheckpoints:  counts[model.StatusApproved] + counts[model.StatusAutoApproved],
		RejectedCheckpoints:  counts[model.StatusRejected],
		ExpiredCheckpoints:   counts[model.StatusExpired],
		TotalViolations:      totalViolations,
		UnresolvedViolations: unresolved,
		TokensConsumedToday:  consumed,
		MeanApprovalSeconds:  meanApproval,
		ScopeLocked:          e.scope.IsLocked(),
	}
}

// Sweep runs the time-driven transitions once: checkpoint expiry, scope
// lock expiry, and the audit retention purge. Safe to run concurrently
// with any other call.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	retention := e.settings.AuditRetentionDays
	e.mu.Unlock()

	expired := e.checkpoints.ExpireSweep(now)
	if expired > 0 && e.persist != nil {
		for _, cp := range e.checkpoints.All() {
			if cp.Status == model.StatusExpired {
				e.persistCheckpoint(cp.ID)
			}
		}
	}
	if e.scope.ExpireIfStale(now) {
		e.persistScopeLock()
	}
	if retention > 0 {
		e.log.PurgeBefore(now.AddDate(0, 0, -retention))
	}
	return expired
}

// RunSweeper drives Sweep on a fixed interval until stop is closed.
func (e *Engine) RunSweeper(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			e.Sweep(t.UTC())
		}
	}
}

func (e *Engine) persistCheckpoint(id string) {
	if e.persist == nil {
		return
	}
	if cp, ok := e.checkpoints.Get(id); ok {
		if err := e.persist.SaveCheckpoint(cp); err != nil {
			fmt.Fprintf(os.Stderr, "persist checkpoint %s: %v\n", id, err)
		}
	}
}

func (e *Engine) persistViolation(id string) {
	if e.persist == nil {
		return
	}
	if v, ok := e.violations.Get(id); ok {
		if err := e.persist.SaveViolation(v); err != nil {
			fmt.Fprintf(os.Stderr, "persist violation %s: %v\n", id, err)
		}
	}
}

func (e *Engine) persistScopeLock() {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveScopeLock(e.scope.Current()); err != nil {
		fmt.Fprintf(os.Stderr, "persist scope lock: %v\n", err)
	}
}

func checkpointType(req ValidateRequest) model.CheckpointType {
	if req.Type != "" {
		return model.CheckpointType(req.Type)
	}
	if req.AgentID != "" {
		return model.TypeAgentAction
	}
	return model.TypeExecution
}

func titleOr(req ValidateRequest) string {
	if req.Title != "" {
		return req.Title
	}
	return fmt.Sprintf("%s execution for %s", req.Sensitivity, req.IdentityID)
}

func sourceFor(agentID string) audit.Source {
	if agentID != "" {
		return audit.SourceAgent
	}
	return audit.SourceSystem
}

func lawStrings(codes []law.Code) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
