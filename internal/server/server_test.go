package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Pr0Services/novagov/internal/engine"
	"github.com/Pr0Services/novagov/internal/model"
)

// testServer spins up an in-process HTTP server with in-memory state.
func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestValidateEndpoint(t *testing.T) {
	_, ts := testServer(t)

	var res model.ValidationResult
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/validate", engine.ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensLow,
		EstimatedTokens: 100,
	}, &res)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !res.Allowed {
		t.Fatalf("low should be allowed: %+v", res)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/validate", engine.ValidateRequest{
		IdentityID:      "u1",
		Sensitivity:     model.SensHigh,
		EstimatedTokens: 100,
	}, &res)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !res.RequiresCheckpoint || res.CheckpointID == "" {
		t.Fatalf("high should hold for approval: %+v", res)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	_, ts := testServer(t)

	status := doJSON(t, http.MethodPost, ts.URL+"/v1/validate", engine.ValidateRequest{
		Sensitivity: model.SensLow,
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("missing identity_id: status = %d", status)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/validate", map[string]any{
		"identity_id": "u1",
		"sensitivity": "extreme",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown sensitivity: status = %d", status)
	}
}

func TestCheckpointApprovalFlow(t *testing.T) {
	_, ts := testServer(t)

	var res model.ValidationResult
	doJSON(t, http.MethodPost, ts.URL+"/v1/validate", engine.ValidateRequest{
		IdentityID:  "u1",
		Sensitivity: model.SensHigh,
		Title:       "rotate keys",
	}, &res)

	var listed struct {
		Checkpoints []model.Checkpoint `json:"checkpoints"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/checkpoints?identity_id=u1", nil, &listed)
	if len(listed.Checkpoints) != 1 {
		t.Fatalf("pending = %d, want 1", len(listed.Checkpoints))
	}

	var cp model.Checkpoint
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/checkpoints/"+res.CheckpointID+"/approve",
		map[string]string{"decided_by": "u1", "reason": "reviewed"}, &cp)
	if status != http.StatusOK {
		t.Fatalf("approve status = %d", status)
	}
	if cp.Status != model.StatusApproved {
		t.Fatalf("status = %s", cp.Status)
	}

	// A decided checkpoint cannot be approved again.
	status = doJSON(t, http.MethodPost, ts.URL+"/v1/checkpoints/"+res.CheckpointID+"/approve",
		map[string]string{"decided_by": "u1"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("double approve status = %d, want 409", status)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	srv, ts := testServer(t)
	res := srv.Engine().Validate(engine.ValidateRequest{
		IdentityID:  "u1",
		Sensitivity: model.SensHigh,
	})

	status := doJSON(t, http.MethodPost, ts.URL+"/v1/checkpoints/"+res.CheckpointID+"/reject",
		map[string]string{"decided_by": "u1"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("reject without reason: status = %d, want 400", status)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/checkpoints/"+res.CheckpointID+"/reject",
		map[string]string{"decided_by": "u1", "reason": "too risky"}, nil)
	if status != http.StatusOK {
		t.Fatalf("reject status = %d", status)
	}
}

func TestDecisionOnUnknownCheckpoint(t *testing.T) {
	_, ts := testServer(t)
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/checkpoints/cp-missing/approve",
		map[string]string{"decided_by": "u1"}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestViolationEndpoints(t *testing.T) {
	_, ts := testServer(t)

	var v model.Violation
	status := doJSON(t, http.MethodPost, ts.URL+"/v1/violations", map[string]any{
		"law_code":    "L6",
		"severity":    "warning",
		"identity_id": "u1",
		"description": "budget exceeded",
	}, &v)
	if status != http.StatusCreated {
		t.Fatalf("report status = %d", status)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/violations", map[string]any{
		"law_code": "L99",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown law: status = %d", status)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/violations/"+v.ID+"/resolve",
		map[string]string{"resolved_by": "u1", "notes": "budget raised"}, nil)
	if status != http.StatusOK {
		t.Fatalf("resolve status = %d", status)
	}

	// Resolution is one-way.
	status = doJSON(t, http.MethodPost, ts.URL+"/v1/violations/"+v.ID+"/resolve",
		map[string]string{"resolved_by": "u2"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("double resolve status = %d, want 409", status)
	}
}

func TestScopeEndpoints(t *testing.T) {
	_, ts := testServer(t)

	var scope struct {
		Locked bool            `json:"locked"`
		Lock   model.ScopeLock `json:"lock"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/scope", nil, &scope)
	if scope.Locked {
		t.Fatal("fresh server should be unlocked")
	}

	status := doJSON(t, http.MethodPost, ts.URL+"/v1/scope/lock", map[string]any{
		"level":       "project",
		"target_id":   "p1",
		"identity_id": "u1",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("lock status = %d", status)
	}

	doJSON(t, http.MethodGet, ts.URL+"/v1/scope", nil, &scope)
	if !scope.Locked || scope.Lock.TargetID != "p1" {
		t.Fatalf("lock not visible: %+v", scope)
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/v1/scope/lock", map[string]any{
		"level": "galaxy",
	}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad level status = %d", status)
	}

	doJSON(t, http.MethodPost, ts.URL+"/v1/scope/unlock", nil, nil)
	doJSON(t, http.MethodGet, ts.URL+"/v1/scope", nil, &scope)
	if scope.Locked {
		t.Fatal("unlock did not stick")
	}
}

func TestSettingsPatch(t *testing.T) {
	_, ts := testServer(t)

	var settings model.Settings
	doJSON(t, http.MethodGet, ts.URL+"/v1/settings", nil, &settings)
	if !settings.Enabled {
		t.Fatal("defaults should have governance enabled")
	}

	status := doJSON(t, http.MethodPatch, ts.URL+"/v1/settings?changed_by=admin",
		map[string]any{"strict_mode": true}, &settings)
	if status != http.StatusOK {
		t.Fatalf("patch status = %d", status)
	}
	if !settings.StrictMode || !settings.Enabled {
		t.Fatalf("patch result: %+v", settings)
	}
}

func TestAuditAndStatsEndpoints(t *testing.T) {
	_, ts := testServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/validate", engine.ValidateRequest{
		IdentityID:  "u1",
		Sensitivity: model.SensLow,
	}, nil)

	var auditResp struct {
		Entries []json.RawMessage `json:"entries"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/audit?identity_id=u1", nil, &auditResp)
	if len(auditResp.Entries) == 0 {
		t.Fatal("validate should leave an audit entry")
	}

	status := doJSON(t, http.MethodGet, ts.URL+"/v1/audit?since=not-a-time", nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad since: status = %d", status)
	}

	var stats model.GovernanceStats
	doJSON(t, http.MethodGet, ts.URL+"/v1/stats", nil, &stats)
	if stats.PendingCheckpoints != 0 {
		t.Fatalf("pending = %d", stats.PendingCheckpoints)
	}

	var laws struct {
		Laws []json.RawMessage `json:"laws"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/v1/laws", nil, &laws)
	if len(laws.Laws) != 10 {
		t.Fatalf("laws = %d, want 10", len(laws.Laws))
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "governance.db")

	srv, err := New(Config{StatePath: statePath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := srv.Engine().Validate(engine.ValidateRequest{
		IdentityID:  "u1",
		Sensitivity: model.SensHigh,
		Title:       "persisted",
	})
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	srv2, err := New(Config{StatePath: statePath})
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer srv2.Close()

	cp, ok := srv2.Engine().GetCheckpoint(res.CheckpointID)
	if !ok {
		t.Fatal("checkpoint lost across restart")
	}
	if cp.Status != model.StatusPending || cp.Title != "persisted" {
		t.Fatalf("restored checkpoint: %+v", cp)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := testServer(t)
	var health map[string]any
	status := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &health)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}
	if _, ok := health["policy_hash"]; !ok {
		t.Fatal("health should report the policy hash")
	}
}
