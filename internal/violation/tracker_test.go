package violation

import (
	"testing"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/law"
	"github.com/Pr0Services/novagov/internal/model"
)

func newTestTracker() (*Tracker, *audit.Log) {
	log := audit.NewLog(0, nil)
	return NewTracker(log), log
}

func TestReportAppendsAuditEntry(t *testing.T) {
	tr, log := newTestTracker()

	v := tr.Report(law.DataMinimization, model.SevError,
		Context{IdentityID: "u1", SphereID: "work"},
		"pulled full contact list", "10 rows", "4200 rows")

	if v.ID == "" || v.Resolved {
		t.Fatalf("bad violation: %+v", v)
	}

	entries := log.Query(audit.Filter{Action: audit.ActionViolationDetected})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if len(e.LawsViolated) != 1 || e.LawsViolated[0] != "L8" {
		t.Errorf("laws_violated = %v, want [L8]", e.LawsViolated)
	}
	if e.IdentityID != "u1" {
		t.Errorf("identity = %q", e.IdentityID)
	}
}

func TestResolveIsOneWay(t *testing.T) {
	tr, log := newTestTracker()
	v := tr.Report(law.ConsentPrimacy, model.SevCritical, Context{IdentityID: "u1"}, "no consent", "", "")

	if !tr.Resolve(v.ID, "admin", "consent obtained retroactively") {
		t.Fatal("first resolve failed")
	}
	if tr.Resolve(v.ID, "admin", "again") {
		t.Fatal("second resolve succeeded; resolution must be one-way")
	}

	got, ok := tr.Get(v.ID)
	if !ok || !got.Resolved || got.ResolvedBy != "admin" || got.ResolvedAt == nil {
		t.Fatalf("resolved violation wrong: %+v", got)
	}

	if n := len(log.Query(audit.Filter{Action: audit.ActionViolationResolved})); n != 1 {
		t.Fatalf("violation_resolved entries = %d, want 1", n)
	}
}

func TestResolveUnknownIDNoAudit(t *testing.T) {
	tr, log := newTestTracker()
	if tr.Resolve("vio-ffffffffffff", "admin", "") {
		t.Fatal("resolving unknown id succeeded")
	}
	if n := log.Len(); n != 0 {
		t.Fatalf("audit entries = %d, want 0", n)
	}
}

func TestUnresolvedFilter(t *testing.T) {
	tr, _ := newTestTracker()
	a := tr.Report(law.AgentNonAutonomy, model.SevWarning, Context{IdentityID: "u1", AgentID: "a1"}, "x", "", "")
	tr.Report(law.SphereSeparation, model.SevError, Context{IdentityID: "u2"}, "y", "", "")
	tr.Resolve(a.ID, "admin", "")

	if got := tr.Unresolved(""); len(got) != 1 || got[0].IdentityID != "u2" {
		t.Fatalf("unresolved = %+v", got)
	}
	if got := tr.Unresolved("u1"); len(got) != 0 {
		t.Fatalf("unresolved(u1) = %+v", got)
	}

	total, open := tr.Counts()
	if total != 2 || open != 1 {
		t.Fatalf("counts = (%d, %d), want (2, 1)", total, open)
	}
}

func TestReportUnknownLawPanics(t *testing.T) {
	tr, _ := newTestTracker()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown law code")
		}
	}()
	tr.Report("L42", model.SevError, Context{}, "", "", "")
}
