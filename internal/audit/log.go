// Package audit is the append-only ledger of governance events.
//
// The Log is an in-memory, newest-first ring that backs every query;
// decisions are never read back out of it. Durability comes from an
// optional hash-chained JSONL sink fed asynchronously, so a slow disk can
// never stall a governance decision while every entry is still eventually
// written.
package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Pr0Services/novagov/internal/model"
)

// DefaultCapacity bounds the in-memory ring independent of the
// retention-day policy.
const DefaultCapacity = 10000

// Log is the append-only, newest-first audit ledger.
type Log struct {
	mu       sync.Mutex
	entries  []Entry // index 0 is newest
	capacity int
	sink     *Sink
}

// NewLog creates a Log with the given ring capacity (DefaultCapacity if
// cap <= 0) and an optional durable sink.
func NewLog(capacity int, sink *Sink) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		sink:     sink,
	}
}

// Append assigns an id and timestamp, computes tokens_delta when both
// before and after are supplied, prepends the entry, and truncates the
// ring to capacity. It never rejects an entry for content reasons.
func (l *Log) Append(e Entry) Entry {
	if e.ID == "" {
		e.ID = model.NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Source == "" {
		e.Source = SourceSystem
	}
	if e.TokensBefore != nil && e.TokensAfter != nil {
		e.TokensDelta = *e.TokensAfter - *e.TokensBefore
	}

	l.mu.Lock()
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	// Enqueue under the lock so the sink sees entries in append order.
	// The enqueue never blocks, so holding the mutex here is safe.
	if l.sink != nil {
		l.sink.Enqueue(e)
	}
	l.mu.Unlock()
	return e
}

// Query returns matching entries in log order (newest first).
// A Limit of 0 means no limit.
func (l *Log) Query(f Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// PurgeBefore irreversibly drops entries older than cutoff and returns
// how many were removed. Driven by the audit_retention_days setting,
// never by decision logic.
func (l *Log) PurgeBefore(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Newest-first: find the first index at or past the cutoff boundary.
	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	purged := len(l.entries) - len(kept)
	l.entries = kept
	return purged
}

// Export serializes matching entries as indented JSON.
func (l *Log) Export(f Filter) ([]byte, error) {
	entries := l.Query(f)
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return data, nil
}
