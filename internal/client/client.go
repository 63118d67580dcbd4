// Package client talks to a running novagov server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/engine"
	"github.com/Pr0Services/novagov/internal/model"
)

// Client connects to a novagov governance server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. http://127.0.0.1:7171).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Validate submits a proposed execution for a governance decision.
// Fail-closed: an unreachable server denies.
func (c *Client) Validate(ctx context.Context, req engine.ValidateRequest) (model.ValidationResult, error) {
	var res model.ValidationResult
	if err := c.do(ctx, http.MethodPost, "/v1/validate", req, &res); err != nil {
		return model.ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("governance server unreachable: %v", err),
		}, nil
	}
	return res, nil
}

// Approve approves a checkpoint.
func (c *Client) Approve(ctx context.Context, id, decidedBy, reason string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := c.do(ctx, http.MethodPost, "/v1/checkpoints/"+url.PathEscape(id)+"/approve",
		map[string]string{"decided_by": decidedBy, "reason": reason}, &cp)
	return cp, err
}

// Reject rejects a checkpoint with a mandatory reason.
func (c *Client) Reject(ctx context.Context, id, decidedBy, reason string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := c.do(ctx, http.MethodPost, "/v1/checkpoints/"+url.PathEscape(id)+"/reject",
		map[string]string{"decided_by": decidedBy, "reason": reason}, &cp)
	return cp, err
}

// Escalate routes a checkpoint to a higher authority.
func (c *Client) Escalate(ctx context.Context, id, escalateTo string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := c.do(ctx, http.MethodPost, "/v1/checkpoints/"+url.PathEscape(id)+"/escalate",
		map[string]string{"escalate_to": escalateTo}, &cp)
	return cp, err
}

// Pending lists checkpoints awaiting a decision, optionally filtered by
// identity.
func (c *Client) Pending(ctx context.Context, identityID string) ([]model.Checkpoint, error) {
	var resp struct {
		Checkpoints []model.Checkpoint `json:"checkpoints"`
	}
	path := "/v1/checkpoints"
	if identityID != "" {
		path += "?identity_id=" + url.QueryEscape(identityID)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Checkpoints, err
}

// Violations lists unresolved violations.
func (c *Client) Violations(ctx context.Context, identityID string) ([]model.Violation, error) {
	var resp struct {
		Violations []model.Violation `json:"violations"`
	}
	path := "/v1/violations"
	if identityID != "" {
		path += "?identity_id=" + url.QueryEscape(identityID)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Violations, err
}

// ResolveViolation closes a violation.
func (c *Client) ResolveViolation(ctx context.Context, id, resolvedBy, notes string) error {
	return c.do(ctx, http.MethodPost, "/v1/violations/"+url.PathEscape(id)+"/resolve",
		map[string]string{"resolved_by": resolvedBy, "notes": notes}, nil)
}

// ScopeStatus is the server's view of the scope lock.
type ScopeStatus struct {
	Locked bool            `json:"locked"`
	Lock   model.ScopeLock `json:"lock"`
}

// Scope returns the current scope lock state.
func (c *Client) Scope(ctx context.Context) (ScopeStatus, error) {
	var s ScopeStatus
	err := c.do(ctx, http.MethodGet, "/v1/scope", nil, &s)
	return s, err
}

// LockScope acquires the scope lock.
func (c *Client) LockScope(ctx context.Context, level model.ScopeLevel, targetID, targetName, identityID string, ttlMinutes int) (model.ScopeLock, error) {
	var lock model.ScopeLock
	err := c.do(ctx, http.MethodPost, "/v1/scope/lock", map[string]any{
		"level":       level,
		"target_id":   targetID,
		"target_name": targetName,
		"identity_id": identityID,
		"ttl_minutes": ttlMinutes,
	}, &lock)
	return lock, err
}

// UnlockScope releases the scope lock.
func (c *Client) UnlockScope(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/scope/unlock", nil, nil)
}

// Audit queries recent audit entries, newest first.
func (c *Client) Audit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var resp struct {
		Entries []audit.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/audit?"+filterQuery(f), nil, &resp)
	return resp.Entries, err
}

// ExportAudit downloads matching audit entries as raw JSON.
func (c *Client) ExportAudit(ctx context.Context, f audit.Filter) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/audit/export?"+filterQuery(f), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export audit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Settings fetches the current runtime settings.
func (c *Client) Settings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := c.do(ctx, http.MethodGet, "/v1/settings", nil, &s)
	return s, err
}

// UpdateSettings applies a partial settings change.
func (c *Client) UpdateSettings(ctx context.Context, patch model.SettingsPatch, changedBy string) (model.Settings, error) {
	var s model.Settings
	path := "/v1/settings"
	if changedBy != "" {
		path += "?changed_by=" + url.QueryEscape(changedBy)
	}
	err := c.do(ctx, http.MethodPatch, path, patch, &s)
	return s, err
}

// Stats fetches the governance counters.
func (c *Client) Stats(ctx context.Context) (model.GovernanceStats, error) {
	var s model.GovernanceStats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &s)
	return s, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

func filterQuery(f audit.Filter) string {
	q := url.Values{}
	if f.IdentityID != "" {
		q.Set("identity_id", f.IdentityID)
	}
	if f.SphereID != "" {
		q.Set("sphere_id", f.SphereID)
	}
	if f.Action != "" {
		q.Set("action", string(f.Action))
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		q.Set("until", f.Until.Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", f.Limit))
	}
	return q.Encode()
}
