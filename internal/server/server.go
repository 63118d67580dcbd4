// Package server exposes the governance engine over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/checkpoint"
	"github.com/Pr0Services/novagov/internal/engine"
	"github.com/Pr0Services/novagov/internal/law"
	"github.com/Pr0Services/novagov/internal/model"
	"github.com/Pr0Services/novagov/internal/policy"
	"github.com/Pr0Services/novagov/internal/scopelock"
	"github.com/Pr0Services/novagov/internal/store"
	"github.com/Pr0Services/novagov/internal/violation"
)

// Config holds API server configuration.
type Config struct {
	Port          int
	PolicyPath    string
	StatePath     string // SQLite database; empty disables persistence
	AuditLogPath  string // hash-chained JSONL sink; empty disables it
	SweepInterval time.Duration
}

// Server wires the engine, durable store and audit sink behind HTTP.
type Server struct {
	cfg   Config
	eng   *engine.Engine
	db    *store.Store
	sink  *audit.Sink
	srv   *http.Server
	sweep chan struct{}
}

// New creates a server with loaded policy, restored state and a running
// sweeper.
func New(cfg Config) (*Server, error) {
	policyCfg, policyHash, err := policy.LoadWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load governance config: %w", err)
	}

	var sink *audit.Sink
	if cfg.AuditLogPath != "" {
		sink, err = audit.OpenSink(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit sink: %w", err)
		}
	}
	log := audit.NewLog(audit.DefaultCapacity, sink)

	var db *store.Store
	if cfg.StatePath != "" {
		db, err = store.Open(cfg.StatePath)
		if err != nil {
			if sink != nil {
				sink.Close()
			}
			return nil, fmt.Errorf("open state store: %w", err)
		}
	}

	var persist engine.Persister
	if db != nil {
		persist = db
	}
	eng := engine.New(policyCfg, policyHash, log, persist)

	if db != nil {
		if err := restore(eng, db); err != nil {
			db.Close()
			if sink != nil {
				sink.Close()
			}
			return nil, err
		}
	}

	s := &Server{
		cfg:   cfg,
		eng:   eng,
		db:    db,
		sink:  sink,
		sweep: make(chan struct{}),
	}
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.routes(),
	}
	go eng.RunSweeper(s.sweep, cfg.SweepInterval)
	return s, nil
}

// restore hydrates the engine from the durable store. Saved settings win
// over the config file so runtime changes survive restarts.
func restore(eng *engine.Engine, db *store.Store) error {
	ctx := context.Background()

	cps, err := db.LoadCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("restore checkpoints: %w", err)
	}
	for _, cp := range cps {
		eng.Checkpoints().Restore(cp)
	}

	vios, err := db.LoadViolations(ctx)
	if err != nil {
		return fmt.Errorf("restore violations: %w", err)
	}
	for _, v := range vios {
		eng.Violations().Restore(v)
	}

	if lock, ok, err := db.LoadScopeLock(ctx); err != nil {
		return fmt.Errorf("restore scope lock: %w", err)
	} else if ok {
		eng.Scope().Restore(lock)
	}

	if settings, ok, err := db.LoadSettings(ctx); err != nil {
		return fmt.Errorf("restore settings: %w", err)
	} else if ok {
		eng.RestoreSettings(settings)
	}
	return nil
}

// Engine exposes the underlying engine. For testing and the MCP bridge.
func (s *Server) Engine() *engine.Engine { return s.eng }

// Handler returns the HTTP handler, for mounting under a test server or
// an external mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Close stops the sweeper and releases the store and audit sink.
func (s *Server) Close() error {
	close(s.sweep)
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close store: %v\n", err)
		}
	}
	if s.sink != nil {
		return s.sink.Close()
	}
	return nil
}

// ReloadPolicy re-reads the governance config file and swaps it in.
// Called by the hot-reloader on file change.
func (s *Server) ReloadPolicy() error {
	cfg, hash, err := policy.LoadWithHash(s.cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("reload governance config: %w", err)
	}
	s.eng.ReloadPolicy(cfg, hash)
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("GET /v1/checkpoints", s.handleListCheckpoints)
	mux.HandleFunc("POST /v1/checkpoints", s.handleCreateCheckpoint)
	mux.HandleFunc("GET /v1/checkpoints/{id}", s.handleGetCheckpoint)
	mux.HandleFunc("POST /v1/checkpoints/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /v1/checkpoints/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /v1/checkpoints/{id}/escalate", s.handleEscalate)
	mux.HandleFunc("GET /v1/violations", s.handleListViolations)
	mux.HandleFunc("POST /v1/violations", s.handleReportViolation)
	mux.HandleFunc("POST /v1/violations/{id}/resolve", s.handleResolveViolation)
	mux.HandleFunc("GET /v1/scope", s.handleGetScope)
	mux.HandleFunc("POST /v1/scope/lock", s.handleLockScope)
	mux.HandleFunc("POST /v1/scope/unlock", s.handleUnlockScope)
	mux.HandleFunc("GET /v1/audit", s.handleAudit)
	mux.HandleFunc("GET /v1/audit/export", s.handleAuditExport)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /v1/settings", s.handlePatchSettings)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/laws", s.handleLaws)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"policy_hash": s.eng.PolicyHash(),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req engine.ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IdentityID == "" {
		writeError(w, http.StatusBadRequest, "identity_id is required")
		return
	}
	if _, ok := model.SensRank[req.Sensitivity]; !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sensitivity %q", req.Sensitivity))
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Validate(req))
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	pending := s.eng.Pending(r.URL.Query().Get("identity_id"))
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": pending})
}

func (s *Server) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpoint.CreateParams
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IdentityID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "identity_id and title are required")
		return
	}
	if _, ok := model.SensRank[req.Sensitivity]; !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sensitivity %q", req.Sensitivity))
		return
	}
	cp := s.eng.CreateCheckpoint(req)
	writeJSON(w, http.StatusCreated, cp)
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, ok := s.eng.GetCheckpoint(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

type decisionRequest struct {
	DecidedBy  string `json:"decided_by"`
	Reason     string `json:"reason,omitempty"`
	EscalateTo string `json:"escalate_to,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(id string, req decisionRequest) bool {
		return s.eng.Approve(id, req.DecidedBy, req.Reason)
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reject requires a reason")
		return
	}
	s.finishDecision(w, r.PathValue("id"), s.eng.Reject(r.PathValue("id"), req.DecidedBy, req.Reason))
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(id string, req decisionRequest) bool {
		return s.eng.Escalate(id, req.EscalateTo)
	})
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, apply func(string, decisionRequest) bool) {
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	s.finishDecision(w, id, apply(id, req))
}

func (s *Server) finishDecision(w http.ResponseWriter, id string, ok bool) {
	if !ok {
		if _, exists := s.eng.GetCheckpoint(id); !exists {
			writeError(w, http.StatusNotFound, "checkpoint not found")
			return
		}
		writeError(w, http.StatusConflict, "checkpoint is not actionable")
		return
	}
	cp, _ := s.eng.GetCheckpoint(id)
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	vios := s.eng.UnresolvedViolations(r.URL.Query().Get("identity_id"))
	writeJSON(w, http.StatusOK, map[string]any{"violations": vios})
}

type reportViolationRequest struct {
	LawCode     string         `json:"law_code"`
	Severity    model.Severity `json:"severity"`
	IdentityID  string         `json:"identity_id,omitempty"`
	SphereID    string         `json:"sphere_id,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	Description string         `json:"description"`
	Expected    string         `json:"expected,omitempty"`
	Actual      string         `json:"actual,omitempty"`
}

func (s *Server) handleReportViolation(w http.ResponseWriter, r *http.Request) {
	var req reportViolationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := law.Lookup(law.Code(req.LawCode)); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown law code %q", req.LawCode))
		return
	}
	if req.Severity == "" {
		req.Severity = model.SevWarning
	}
	v := s.eng.ReportViolation(law.Code(req.LawCode), req.Severity, violation.Context{
		IdentityID: req.IdentityID,
		SphereID:   req.SphereID,
		AgentID:    req.AgentID,
	}, req.Description, req.Expected, req.Actual)
	writeJSON(w, http.StatusCreated, v)
}

type resolveViolationRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes,omitempty"`
}

func (s *Server) handleResolveViolation(w http.ResponseWriter, r *http.Request) {
	var req resolveViolationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if !s.eng.ResolveViolation(id, req.ResolvedBy, req.Notes) {
		writeError(w, http.StatusConflict, "violation not found or already resolved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true})
}

func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"locked": s.eng.IsScopeLocked(),
		"lock":   s.eng.ScopeLock(),
	})
}

type lockScopeRequest struct {
	Level      model.ScopeLevel `json:"level"`
	TargetID   string           `json:"target_id"`
	TargetName string           `json:"target_name,omitempty"`
	IdentityID string           `json:"identity_id"`
	TTLMinutes int              `json:"ttl_minutes,omitempty"`
}

func (s *Server) handleLockScope(w http.ResponseWriter, r *http.Request) {
	var req lockScopeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Level.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scope level %q", req.Level))
		return
	}
	ttl := time.Duration(req.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = scopelock.DefaultTTL
	}
	lock := s.eng.LockScope(req.Level, req.TargetID, req.TargetName, req.IdentityID, ttl)
	writeJSON(w, http.StatusOK, lock)
}

func (s *Server) handleUnlockScope(w http.ResponseWriter, r *http.Request) {
	s.eng.UnlockScope()
	writeJSON(w, http.StatusOK, map[string]any{"locked": false})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.eng.QueryAudit(f)})
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := s.eng.ExportAudit(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Settings())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	changedBy := r.URL.Query().Get("changed_by")
	if changedBy == "" {
		changedBy = "api"
	}
	writeJSON(w, http.StatusOK, s.eng.UpdateSettings(patch, changedBy))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Stats())
}

func (s *Server) handleLaws(w http.ResponseWriter, r *http.Request) {
	laws := make([]law.Law, 0, len(law.Codes()))
	for _, code := range law.Codes() {
		laws = append(laws, law.Get(code))
	}
	writeJSON(w, http.StatusOK, map[string]any{"laws": laws})
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		IdentityID: q.Get("identity_id"),
		SphereID:   q.Get("sphere_id"),
		Action:     audit.Action(q.Get("action")),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid since %q: %w", v, err)
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid until %q: %w", v, err)
		}
		f.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
