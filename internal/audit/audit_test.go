package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testEntry(action Action, identity string) Entry {
	return Entry{
		Action:      action,
		IdentityID:  identity,
		Description: "test event",
		Source:      SourceUser,
	}
}

func TestAppendAssignsIDTimestampAndDelta(t *testing.T) {
	l := NewLog(0, nil)

	before, after := 100, 250
	e := l.Append(Entry{
		Action:       ActionCheckpointApproved,
		TokensBefore: &before,
		TokensAfter:  &after,
	})

	if e.ID == "" {
		t.Error("entry id not assigned")
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if e.TokensDelta != 150 {
		t.Errorf("tokens_delta = %d, want 150", e.TokensDelta)
	}
}

func TestLogIsNewestFirst(t *testing.T) {
	l := NewLog(0, nil)
	l.Append(testEntry(ActionCheckpointCreated, "u1"))
	l.Append(testEntry(ActionCheckpointApproved, "u1"))

	got := l.Query(Filter{})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Action != ActionCheckpointApproved {
		t.Errorf("newest entry is %s, want checkpoint_approved", got[0].Action)
	}
}

func TestRingTruncatesAtCapacity(t *testing.T) {
	l := NewLog(5, nil)
	for i := 0; i < 8; i++ {
		l.Append(testEntry(ActionExecutionValidated, "u1"))
	}
	if l.Len() != 5 {
		t.Fatalf("len = %d, want 5", l.Len())
	}
}

func TestQueryFilters(t *testing.T) {
	l := NewLog(0, nil)
	l.Append(Entry{Action: ActionCheckpointCreated, IdentityID: "u1", SphereID: "work"})
	l.Append(Entry{Action: ActionViolationDetected, IdentityID: "u2", SphereID: "home"})
	l.Append(Entry{Action: ActionCheckpointCreated, IdentityID: "u1", SphereID: "home"})

	if got := l.Query(Filter{IdentityID: "u1"}); len(got) != 2 {
		t.Errorf("identity filter: %d, want 2", len(got))
	}
	if got := l.Query(Filter{SphereID: "home"}); len(got) != 2 {
		t.Errorf("sphere filter: %d, want 2", len(got))
	}
	if got := l.Query(Filter{Action: ActionViolationDetected}); len(got) != 1 {
		t.Errorf("action filter: %d, want 1", len(got))
	}
	if got := l.Query(Filter{Limit: 1}); len(got) != 1 {
		t.Errorf("limit: %d, want 1", len(got))
	}
}

func TestQueryTimeRange(t *testing.T) {
	l := NewLog(0, nil)
	old := time.Now().UTC().Add(-2 * time.Hour)
	l.Append(Entry{Action: ActionCheckpointCreated, Timestamp: old})
	l.Append(Entry{Action: ActionCheckpointApproved})

	got := l.Query(Filter{Since: time.Now().UTC().Add(-time.Hour)})
	if len(got) != 1 || got[0].Action != ActionCheckpointApproved {
		t.Fatalf("since filter returned %d entries", len(got))
	}

	got = l.Query(Filter{Until: time.Now().UTC().Add(-time.Hour)})
	if len(got) != 1 || got[0].Action != ActionCheckpointCreated {
		t.Fatalf("until filter returned %d entries", len(got))
	}
}

func TestPurgeBefore(t *testing.T) {
	l := NewLog(0, nil)
	old := time.Now().UTC().Add(-48 * time.Hour)
	l.Append(Entry{Action: ActionCheckpointCreated, Timestamp: old})
	l.Append(Entry{Action: ActionCheckpointCreated, Timestamp: old})
	l.Append(Entry{Action: ActionCheckpointApproved})

	purged := l.PurgeBefore(time.Now().UTC().Add(-24 * time.Hour))
	if purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}
	if l.Len() != 1 {
		t.Fatalf("len after purge = %d, want 1", l.Len())
	}
	// Idempotent with the same cutoff.
	if again := l.PurgeBefore(time.Now().UTC().Add(-24 * time.Hour)); again != 0 {
		t.Fatalf("second purge removed %d entries", again)
	}
}

func TestExportIsValidJSON(t *testing.T) {
	l := NewLog(0, nil)
	l.Append(testEntry(ActionScopeLocked, "u1"))

	data, err := l.Export(Filter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("export not valid JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != ActionScopeLocked {
		t.Fatalf("export content wrong: %+v", entries)
	}
}

func TestExportEmptyLogIsEmptyArray(t *testing.T) {
	l := NewLog(0, nil)
	data, err := l.Export(Filter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty export = %q, want []", data)
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := NewLog(0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Append(testEntry(ActionExecutionValidated, "u1"))
			}
		}()
	}
	wg.Wait()
	if l.Len() != 1000 {
		t.Fatalf("len = %d, want 1000", l.Len())
	}
}

func TestSinkProducesValidChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := OpenSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}

	l := NewLog(0, sink)
	for i := 0; i < 5; i++ {
		l.Append(testEntry(ActionCheckpointCreated, "u1"))
	}
	sink.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := OpenSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	l := NewLog(0, sink)
	for i := 0; i < 3; i++ {
		l.Append(testEntry(ActionCheckpointApproved, "u1"))
	}
	sink.Close()

	// Tamper: change the action in line 2
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], "checkpoint_approved", "checkpoint_rejected", 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestSinkRecoversChainTailAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	sink, err := OpenSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	NewLog(0, sink).Append(testEntry(ActionScopeLocked, "u1"))
	sink.Close()

	sink2, err := OpenSink(path)
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	NewLog(0, sink2).Append(testEntry(ActionScopeUnlocked, "u1"))
	sink2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("chain broken across reopen at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 2 {
		t.Fatalf("expected 2 lines, got %d", result.Lines)
	}
}

func TestFormatTimeline(t *testing.T) {
	l := NewLog(0, nil)
	l.Append(Entry{
		Action:       ActionViolationDetected,
		IdentityID:   "u1",
		Description:  "agent acted without approval",
		LawsViolated: []string{"L7"},
		Source:       SourceAgent,
	})

	out := FormatTimeline(l.Query(Filter{}))
	if !strings.Contains(out, "violation_detected") {
		t.Error("timeline missing action")
	}
	if !strings.Contains(out, "[L7]") {
		t.Error("timeline missing violated law tag")
	}

	if FormatTimeline(nil) != "No audit entries.\n" {
		t.Error("empty timeline output wrong")
	}
}
