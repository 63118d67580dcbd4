// Package violation records detected law breaches independent of
// checkpoints. Resolution is one-way: a resolved violation never reopens.
package violation

import (
	"fmt"
	"sync"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/law"
	"github.com/Pr0Services/novagov/internal/model"
)

// Context carries the opaque ids a violation is attributed to.
type Context struct {
	IdentityID string
	SphereID   string
	AgentID    string
}

// Tracker holds all recorded violations and writes the paired audit
// entries.
type Tracker struct {
	mu         sync.Mutex
	violations map[string]*model.Violation
	order      []string // insertion order, oldest first
	log        *audit.Log
}

// NewTracker creates a Tracker that records violation events to log.
func NewTracker(log *audit.Log) *Tracker {
	return &Tracker{
		violations: make(map[string]*model.Violation),
		log:        log,
	}
}

// Report records a violation of the given law. It always succeeds and
// immediately appends a violation_detected audit entry referencing the
// same law code. The law code must be one of the ten known codes.
func (t *Tracker) Report(code law.Code, severity model.Severity, ctx Context, description, expected, actual string) model.Violation {
	l := law.Get(code) // panics on unknown code, by contract

	v := model.Violation{
		ID:          model.NewViolationID(),
		LawCode:     string(code),
		Severity:    severity,
		IdentityID:  ctx.IdentityID,
		SphereID:    ctx.SphereID,
		AgentID:     ctx.AgentID,
		Description: description,
		Expected:    expected,
		Actual:      actual,
		DetectedAt:  time.Now().UTC(),
	}

	t.mu.Lock()
	t.violations[v.ID] = &v
	t.order = append(t.order, v.ID)
	t.mu.Unlock()

	src := audit.SourceSystem
	if ctx.AgentID != "" {
		src = audit.SourceAgent
	}
	t.log.Append(audit.Entry{
		Action:       audit.ActionViolationDetected,
		IdentityID:   ctx.IdentityID,
		SphereID:     ctx.SphereID,
		AgentID:      ctx.AgentID,
		Description:  fmt.Sprintf("%s violated: %s", l.Name, description),
		LawsViolated: []string{string(code)},
		Details: map[string]any{
			"violation_id": v.ID,
			"severity":     string(severity),
			"expected":     expected,
			"actual":       actual,
		},
		Source: src,
	})

	return v
}

// Resolve marks a violation resolved. Returns false if the id is unknown
// or the violation is already resolved; resolution is one-way.
func (t *Tracker) Resolve(id, resolvedBy, notes string) bool {
	t.mu.Lock()
	v, ok := t.violations[id]
	if !ok || v.Resolved {
		t.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	v.Resolved = true
	v.ResolvedBy = resolvedBy
	v.ResolutionNotes = notes
	v.ResolvedAt = &now
	snapshot := *v
	t.mu.Unlock()

	t.log.Append(audit.Entry{
		Action:      audit.ActionViolationResolved,
		IdentityID:  snapshot.IdentityID,
		SphereID:    snapshot.SphereID,
		Description: fmt.Sprintf("violation %s (%s) resolved by %s", id, snapshot.LawCode, resolvedBy),
		Details: map[string]any{
			"violation_id": id,
			"resolved_by":  resolvedBy,
			"notes":        notes,
		},
		Source: audit.SourceUser,
	})
	return true
}

// Get returns a violation by id.
func (t *Tracker) Get(id string) (model.Violation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.violations[id]
	if !ok {
		return model.Violation{}, false
	}
	return *v, true
}

// Unresolved returns open violations, newest first, optionally filtered
// by identity.
func (t *Tracker) Unresolved(identityID string) []model.Violation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []model.Violation
	for i := len(t.order) - 1; i >= 0; i-- {
		v := t.violations[t.order[i]]
		if v.Resolved {
			continue
		}
		if identityID != "" && v.IdentityID != identityID {
			continue
		}
		out = append(out, *v)
	}
	return out
}

// Counts returns (total, unresolved).
func (t *Tracker) Counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	unresolved := 0
	for _, v := range t.violations {
		if !v.Resolved {
			unresolved++
		}
	}
	return len(t.violations), unresolved
}

// Restore reinserts a violation loaded from persistence without writing
// audit entries.
func (t *Tracker) Restore(v model.Violation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := v
	t.violations[v.ID] = &cp
	t.order = append(t.order, v.ID)
}

// All returns every violation in insertion order, for persistence.
func (t *Tracker) All() []model.Violation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Violation, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.violations[id])
	}
	return out
}
