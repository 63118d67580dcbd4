package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/checkpoint"
	"github.com/Pr0Services/novagov/internal/law"
	"github.com/Pr0Services/novagov/internal/model"
	"github.com/Pr0Services/novagov/internal/policy"
	"github.com/Pr0Services/novagov/internal/violation"
)

func newTestEngine() *Engine {
	return New(policy.DefaultConfig(), "sha256:test", audit.NewLog(0, nil), nil)
}

func TestValidateDisabledAllowsEverything(t *testing.T) {
	e := newTestEngine()
	off := false
	e.UpdateSettings(model.SettingsPatch{Enabled: &off}, "tester")

	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensCritical,
		EstimatedTokens: 1_000_000,
	})
	if !res.Allowed {
		t.Fatal("disabled governance must allow")
	}
	if res.RequiresCheckpoint || res.CheckpointID != "" {
		t.Fatal("disabled governance must not create checkpoints")
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "disabled") {
		t.Fatalf("expected disabled warning, got %v", res.Warnings)
	}
}

func TestValidateLowAutoApproved(t *testing.T) {
	e := newTestEngine()
	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 100,
	})
	if !res.Allowed || res.RequiresCheckpoint {
		t.Fatalf("low under threshold should pass without a checkpoint: %+v", res)
	}
	if res.CheckpointID != "" {
		t.Fatal("no checkpoint expected")
	}
}

func TestValidateLowOverThresholdAllowedWithoutCheckpoint(t *testing.T) {
	// Low tier does not require approval; over the auto-token threshold
	// the action is still allowed, just not via the fast path.
	e := newTestEngine()
	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 99_999,
	})
	if !res.Allowed || res.RequiresCheckpoint {
		t.Fatalf("low tier never requires a checkpoint by default: %+v", res)
	}
}

func TestValidateHighCreatesCheckpoint(t *testing.T) {
	e := newTestEngine()
	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensHigh,
		EstimatedTokens: 2000,
		Title:           "drop table",
	})
	if res.Allowed {
		t.Fatal("high sensitivity must not be allowed outright")
	}
	if !res.RequiresCheckpoint || res.CheckpointID == "" {
		t.Fatalf("expected a checkpoint: %+v", res)
	}
	cp, ok := e.GetCheckpoint(res.CheckpointID)
	if !ok {
		t.Fatal("checkpoint not found")
	}
	if cp.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", cp.Status)
	}
	if cp.Title != "drop table" {
		t.Fatalf("title = %q", cp.Title)
	}
}

func TestValidateForceCheckpoint(t *testing.T) {
	e := newTestEngine()
	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensMedium,
		EstimatedTokens: 10,
		ForceCheckpoint: true,
	})
	if res.Allowed || !res.RequiresCheckpoint {
		t.Fatalf("forced checkpoint ignored: %+v", res)
	}
}

func TestValidateQueueDepthDenies(t *testing.T) {
	e := newTestEngine()
	max := e.Settings().MaxPendingCheckpoints
	for i := 0; i < max; i++ {
		e.CreateCheckpoint(checkpoint.CreateParams{
			Type:        model.TypeExecution,
			Sensitivity: model.SensHigh,
			IdentityID:  "u1",
			Title:       "pending",
		})
	}
	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 10,
	})
	if res.Allowed {
		t.Fatal("full queue must deny even low-sensitivity actions")
	}
	if !strings.Contains(res.Reason, "pending approvals") {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.CheckpointID != "" {
		t.Fatal("denial must not enqueue another checkpoint")
	}
}

func TestValidateRequireScopeLock(t *testing.T) {
	e := newTestEngine()
	on := true
	e.UpdateSettings(model.SettingsPatch{RequireScopeLock: &on}, "tester")

	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 10,
	})
	if res.Allowed {
		t.Fatal("unlocked scope must deny when require_scope_lock is on")
	}
	if !strings.Contains(res.Reason, "scope must be locked") {
		t.Fatalf("reason = %q", res.Reason)
	}

	e.LockScope(model.ScopeProject, "p1", "Website", "u1", time.Hour)
	res = e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 10,
	})
	if !res.Allowed {
		t.Fatalf("locked scope should pass: %+v", res)
	}
}

func TestValidateComplianceStrictMode(t *testing.T) {
	e := newTestEngine()
	strict := true
	e.UpdateSettings(model.SettingsPatch{StrictMode: &strict}, "tester")

	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 10,
		AgentID:         "agent-7",
		Compliance: &law.ActionContext{
			IdentityID:   "u1",
			AgentID:      "agent-7",
			UserApproved: false,
		},
	})
	if res.Allowed {
		t.Fatal("strict mode must deny on a law breach")
	}
	if !strings.Contains(res.Reason, "L7") {
		t.Fatalf("reason should name the breached law: %q", res.Reason)
	}
	if len(e.UnresolvedViolations("")) == 0 {
		t.Fatal("breach must be recorded as a violation")
	}
}

func TestValidateComplianceWarnsWhenNotStrict(t *testing.T) {
	e := newTestEngine()
	res := e.Validate(ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 10,
		AgentID:         "agent-7",
		Compliance: &law.ActionContext{
			IdentityID:   "u1",
			AgentID:      "agent-7",
			UserApproved: false,
		},
	})
	if !res.Allowed {
		t.Fatalf("non-strict breach should warn, not deny: %+v", res)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning for the breach")
	}
	_, unresolved := e.Violations().Counts()
	if unresolved != 1 {
		t.Fatalf("unresolved = %d, want 1", unresolved)
	}
}

func TestValidateAuditsEveryCall(t *testing.T) {
	e := newTestEngine()
	e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensLow, EstimatedTokens: 1})
	e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensHigh, EstimatedTokens: 1})

	validated := e.QueryAudit(audit.Filter{Action: audit.ActionExecutionValidated})
	if len(validated) != 2 {
		t.Fatalf("validated entries = %d, want 2", len(validated))
	}
	for _, entry := range validated {
		if entry.Details["policy_hash"] != "sha256:test" {
			t.Fatalf("entry missing policy hash: %+v", entry.Details)
		}
	}
}

func TestUpdateSettingsAudited(t *testing.T) {
	e := newTestEngine()
	strict := true
	updated := e.UpdateSettings(model.SettingsPatch{StrictMode: &strict}, "admin")
	if !updated.StrictMode {
		t.Fatal("patch not applied")
	}
	if !updated.Enabled {
		t.Fatal("untouched fields must survive the patch")
	}
	entries := e.QueryAudit(audit.Filter{Action: audit.ActionSettingsChanged})
	if len(entries) != 1 {
		t.Fatalf("settings_changed entries = %d, want 1", len(entries))
	}
	if entries[0].IdentityID != "admin" {
		t.Fatalf("identity = %q", entries[0].IdentityID)
	}
}

func TestStats(t *testing.T) {
	e := newTestEngine()

	// One auto-approved low, one pending high, one approved medium.
	e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensLow, EstimatedTokens: 100})
	e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensHigh, EstimatedTokens: 200})
	res := e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensMedium, EstimatedTokens: 300})
	if !e.Approve(res.CheckpointID, "u1", "fine") {
		t.Fatal("approve failed")
	}

	s := e.Stats()
	// The low-tier fast path creates no checkpoint.
	if s.TotalCheckpoints != 2 {
		t.Fatalf("total = %d, want 2", s.TotalCheckpoints)
	}
	if s.PendingCheckpoints != 1 {
		t.Fatalf("pending = %d, want 1", s.PendingCheckpoints)
	}
	if s.ApprovedCheckpoints != 1 {
		t.Fatalf("approved = %d, want 1", s.ApprovedCheckpoints)
	}
	if s.TokensConsumedToday != 300 {
		t.Fatalf("tokens today = %d, want 300", s.TokensConsumedToday)
	}
	if s.MeanApprovalSeconds < 0 {
		t.Fatalf("mean approval = %f", s.MeanApprovalSeconds)
	}
	if s.ScopeLocked {
		t.Fatal("scope should not be locked")
	}

	e.ReportViolation(law.BudgetDiscipline, model.SevWarning, violation.Context{IdentityID: "u1"}, "over budget", "within budget", "exceeded")
	s = e.Stats()
	if s.TotalViolations != 1 || s.UnresolvedViolations != 1 {
		t.Fatalf("violations = %d/%d, want 1/1", s.TotalViolations, s.UnresolvedViolations)
	}
}

func TestSweepExpiresCheckpointsAndLock(t *testing.T) {
	e := newTestEngine()
	res := e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensCritical, EstimatedTokens: 1})
	e.LockScope(model.ScopeThread, "t1", "Thread", "u1", time.Minute)

	n := e.Sweep(time.Now().UTC().Add(24 * time.Hour))
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	cp, _ := e.GetCheckpoint(res.CheckpointID)
	if cp.Status != model.StatusExpired {
		t.Fatalf("status = %s, want expired", cp.Status)
	}
	if e.IsScopeLocked() {
		t.Fatal("stale lock should be released by the sweep")
	}
}

func TestSweepRetentionPurge(t *testing.T) {
	e := newTestEngine()
	e.Validate(ValidateRequest{IdentityID: "u1", Sensitivity: model.SensLow, EstimatedTokens: 1})
	if got := len(e.QueryAudit(audit.Filter{})); got == 0 {
		t.Fatal("expected at least one audit entry")
	}
	// Far enough in the future that every entry is past retention.
	e.Sweep(time.Now().UTC().AddDate(1, 0, 0))
	if got := len(e.QueryAudit(audit.Filter{})); got != 0 {
		t.Fatalf("entries after purge = %d, want 0", got)
	}
}

func TestReloadPolicySwapsSettings(t *testing.T) {
	e := newTestEngine()
	cfg := policy.DefaultConfig()
	cfg.Settings.Enabled = false
	e.ReloadPolicy(cfg, "sha256:new")

	if e.Settings().Enabled {
		t.Fatal("reload should replace settings")
	}
	if e.PolicyHash() != "sha256:new" {
		t.Fatalf("hash = %q", e.PolicyHash())
	}
}
