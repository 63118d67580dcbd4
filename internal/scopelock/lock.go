// Package scopelock guards contextual fidelity: at most one operating
// scope is authorized at any instant. Acquiring replaces any existing
// lock; there is no stacking and no compare-and-swap, because acquisition
// is gated upstream by the execution validator.
package scopelock

import (
	"fmt"
	"sync"
	"time"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/model"
)

// DefaultTTL is the lock lifetime when the caller does not specify one.
const DefaultTTL = 60 * time.Minute

// Manager owns the singleton scope lock.
type Manager struct {
	mu   sync.Mutex
	lock model.ScopeLock
	log  *audit.Log
}

// NewManager creates a Manager recording lock events to log.
func NewManager(log *audit.Log) *Manager {
	return &Manager{log: log}
}

// Lock acquires the scope lock, unconditionally replacing any existing
// one (last writer wins). A ttl of 0 means DefaultTTL.
func (m *Manager) Lock(level model.ScopeLevel, targetID, targetName, identityID string, ttl time.Duration) model.ScopeLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()

	m.mu.Lock()
	m.lock = model.ScopeLock{
		Active:     true,
		Level:      level,
		TargetID:   targetID,
		TargetName: targetName,
		LockedBy:   identityID,
		LockedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	snapshot := m.lock
	m.mu.Unlock()

	m.log.Append(audit.Entry{
		Action:      audit.ActionScopeLocked,
		IdentityID:  identityID,
		Description: fmt.Sprintf("scope locked to %s %q until %s", level, targetName, snapshot.ExpiresAt.Format(time.RFC3339)),
		Details: map[string]any{
			"level":       string(level),
			"target_id":   targetID,
			"target_name": targetName,
			"ttl_minutes": int(ttl.Minutes()),
		},
		Source: audit.SourceUser,
	})
	return snapshot
}

// Unlock clears the lock. No-op if already inactive.
func (m *Manager) Unlock() {
	m.unlock("scope unlocked")
}

// ExpireIfStale clears a lock that has passed its expiry. Called by the
// periodic sweep so reads stay pure. Returns true if a stale lock was
// cleared.
func (m *Manager) ExpireIfStale(now time.Time) bool {
	m.mu.Lock()
	stale := m.lock.Expired(now)
	m.mu.Unlock()
	if !stale {
		return false
	}
	m.unlock("scope lock expired")
	return true
}

func (m *Manager) unlock(description string) {
	m.mu.Lock()
	if !m.lock.Active {
		m.mu.Unlock()
		return
	}
	prev := m.lock
	m.lock = model.ScopeLock{}
	m.mu.Unlock()

	m.log.Append(audit.Entry{
		Action:      audit.ActionScopeUnlocked,
		IdentityID:  prev.LockedBy,
		Description: fmt.Sprintf("%s (%s %q)", description, prev.Level, prev.TargetName),
		Details: map[string]any{
			"level":     string(prev.Level),
			"target_id": prev.TargetID,
		},
		Source: audit.SourceSystem,
	})
}

// IsLocked reports whether an unexpired lock is active. Pure read: a
// stale lock reads as unlocked here and is cleared by the sweep.
func (m *Manager) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lock.Active && !m.lock.Expired(time.Now().UTC())
}

// Current returns the lock value as-is.
func (m *Manager) Current() model.ScopeLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lock
}

// Restore reinstates a lock loaded from persistence without auditing.
func (m *Manager) Restore(lock model.ScopeLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lock = lock
}
