package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetmx/fleetmx/internal/domain"
	"github.com/fleetmx/fleetmx/internal/logger"
)

func testLogger() logger.Logger {
	return logger.New("error", false, "")
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	recA := domain.NewRecord("a.test")
	if err := recA.Advance(domain.PhaseRegistration); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	recA.ProviderID = "dom_1"
	recA.VerificationToken = "fe-verify-a"
	recA.AddAlias("james")
	s.Upsert(recA)

	recB := domain.NewRecord("b.test")
	if err := recB.Fail(domain.PhaseRegistration, "provider outage"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	s.Upsert(recB)

	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() after Save error = %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded Len() = %d, want 2", reloaded.Len())
	}

	gotA, ok := reloaded.Get("a.test")
	if !ok {
		t.Fatal("record a.test missing after reload")
	}
	if gotA.State != domain.StateProviderRegistered {
		t.Errorf("a.test state = %v, want %v", gotA.State, domain.StateProviderRegistered)
	}
	if gotA.ProviderID != "dom_1" || gotA.VerificationToken != "fe-verify-a" {
		t.Errorf("a.test provider fields lost: %+v", gotA)
	}
	if len(gotA.Aliases) != 1 || gotA.Aliases[0] != "james" {
		t.Errorf("a.test aliases = %v, want [james]", gotA.Aliases)
	}

	gotB, ok := reloaded.Get("b.test")
	if !ok {
		t.Fatal("record b.test missing after reload")
	}
	if gotB.State != domain.StateFailed || gotB.FailedPhase != domain.PhaseRegistration {
		t.Errorf("b.test = %v/%v, want failed/registration", gotB.State, gotB.FailedPhase)
	}
	if len(gotB.Errors) != 1 {
		t.Errorf("b.test error history = %d entries, want 1", len(gotB.Errors))
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if _, err := Open(path, testLogger()); err == nil {
		t.Fatal("Open() error = nil for corrupt file")
	}
}

func TestStoreRejectsInvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	body := `{"saved_at":"2026-01-01T00:00:00Z","records":[{"name":"a.test","state":"warp_drive"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write state file: %v", err)
	}

	if _, err := Open(path, testLogger()); err == nil {
		t.Fatal("Open() error = nil for unknown state")
	}
}

func TestStoreRejectsDuplicateRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	body := `{"records":[{"name":"a.test","state":"pending"},{"name":"a.test","state":"pending"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write state file: %v", err)
	}

	if _, err := Open(path, testLogger()); err == nil {
		t.Fatal("Open() error = nil for duplicate records")
	}
}

func TestStoreCloneSemantics(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	rec := domain.NewRecord("a.test")
	rec.AddAlias("james")
	s.Upsert(rec)

	// mutating the original after Upsert must not leak into the store
	rec.AddAlias("intruder")
	got, _ := s.Get("a.test")
	if len(got.Aliases) != 1 {
		t.Errorf("stored aliases = %v, want [james]", got.Aliases)
	}

	// mutating a read copy must not leak either
	got.State = domain.StateCompleted
	got.AddAlias("other")
	again, _ := s.Get("a.test")
	if again.State != domain.StatePending || len(again.Aliases) != 1 {
		t.Errorf("store mutated through a read copy: %+v", again)
	}
}

func TestStoreAllSortedByName(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for _, name := range []string{"c.test", "a.test", "b.test"} {
		s.Upsert(domain.NewRecord(name))
	}

	all := s.All()
	want := []string{"a.test", "b.test", "c.test"}
	for i, rec := range all {
		if rec.Name != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, rec.Name, want[i])
		}
	}
}

func TestStoreByStateAndCounts(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"), testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	done := domain.NewRecord("done.test")
	for _, p := range []domain.Phase{
		domain.PhaseRegistration, domain.PhaseDNS, domain.PhaseVerification,
		domain.PhaseAliases, domain.PhaseCompletion,
	} {
		if err := done.Advance(p); err != nil {
			t.Fatalf("Advance(%v) error = %v", p, err)
		}
	}
	s.Upsert(done)
	s.Upsert(domain.NewRecord("fresh1.test"))
	s.Upsert(domain.NewRecord("fresh2.test"))

	pending := s.ByState(domain.StatePending)
	if len(pending) != 2 {
		t.Errorf("ByState(pending) = %d records, want 2", len(pending))
	}

	counts := s.Counts()
	if counts[domain.StatePending] != 2 || counts[domain.StateCompleted] != 1 {
		t.Errorf("Counts() = %v, want 2 pending and 1 completed", counts)
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Upsert(domain.NewRecord("a.test"))
	if err := s.Save(); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	s.Upsert(domain.NewRecord("b.test"))
	if err := s.Save(); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	reloaded, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("reloaded Len() = %d, want 2", reloaded.Len())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("state directory holds %d files, want 1 (no temp leftovers)", len(entries))
	}
}
