package ledgerstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/dvtools/dv-hooks/internal/domain/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoad_NoFile_ReturnsEmptyNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestLoad_CorruptFile_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	s := New(path, nil)
	if _, err := s.Load(); err == nil {
		t.Fatal("expected an error for corrupt ledger JSON")
	}
}

func TestAppendAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	rec := ledger.Record{
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		User:       "Alice",
		Scope:      ledger.ScopeEmergency,
		Label:      "T1",
		HashPrefix: "deadbeefcafe",
		Reusable:   false,
		Reason:     "urgent",
		Files:      []string{"design/keep.sv"},
		Result:     ledger.ResultConsumed,
	}

	if err := s.Append(rec); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if diff := cmp.Diff(rec, records[0]); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAppend_SetsFilePermissions0600(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	if err := s.Append(ledger.Record{Scope: ledger.ScopeFreeze, Result: ledger.ResultConsumed}); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %04o", perm)
	}
}

func TestAppend_CreatesBackupOfPriorContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	first := ledger.Record{Scope: ledger.ScopeFreeze, Label: "F1", Result: ledger.ResultConsumed}
	if err := s.Append(first); err != nil {
		t.Fatalf("first Append() failed: %v", err)
	}
	second := ledger.Record{Scope: ledger.ScopeFreeze, Label: "F2", Result: ledger.ResultConsumed}
	if err := s.Append(second); err != nil {
		t.Fatalf("second Append() failed: %v", err)
	}

	data, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	var backed []ledger.Record
	if err := json.Unmarshal(data, &backed); err != nil {
		t.Fatalf("unmarshal backup: %v", err)
	}
	if len(backed) != 1 || backed[0].Label != "F1" {
		t.Errorf("expected backup to contain only the first record, got %+v", backed)
	}
}

func TestAppend_NoTmpFileLeftBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)
	if err := s.Append(ledger.Record{Scope: ledger.ScopeFreeze, Result: ledger.ResultConsumed}); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected no .tmp file after Append()")
	}
}

func TestConsume_FirstUseSucceeds_SecondUseIsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	draft := ledger.Record{
		Timestamp:  time.Now(),
		User:       "Alice",
		Scope:      ledger.ScopeEmergency,
		Label:      "T1",
		HashPrefix: "abc123abc123",
		Reusable:   false,
	}

	replay, err := s.Consume(draft)
	if err != nil {
		t.Fatalf("first Consume() failed: %v", err)
	}
	if replay {
		t.Fatal("expected first Consume() not to be a replay")
	}

	replay, err = s.Consume(draft)
	if err != nil {
		t.Fatalf("second Consume() failed: %v", err)
	}
	if !replay {
		t.Fatal("expected second Consume() of the same hash to be a replay")
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (consumed + replayed_denied), got %d", len(records))
	}
	if records[0].Result != ledger.ResultConsumed {
		t.Errorf("expected first record Result=consumed, got %q", records[0].Result)
	}
	if records[1].Result != ledger.ResultReplayedDenied {
		t.Errorf("expected second record Result=replayed_denied, got %q", records[1].Result)
	}
}

func TestConsume_DifferentScopeSameHash_NotAReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	freeze := ledger.Record{Scope: ledger.ScopeFreeze, HashPrefix: "sharedhash12"}
	emergency := ledger.Record{Scope: ledger.ScopeEmergency, HashPrefix: "sharedhash12"}

	if replay, err := s.Consume(freeze); err != nil || replay {
		t.Fatalf("freeze Consume() = (%v, %v), want (false, nil)", replay, err)
	}
	if replay, err := s.Consume(emergency); err != nil || replay {
		t.Fatalf("emergency Consume() = (%v, %v), want (false, nil) — scopes are disjoint", replay, err)
	}
}

func TestConcurrentConsume_OnlyOneSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := New(path, nil)

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			replay, err := s.Consume(ledger.Record{Scope: ledger.ScopeEmergency, HashPrefix: "racehash0001"})
			if err != nil {
				t.Errorf("Consume() error: %v", err)
				return
			}
			results[idx] = replay
		}(i)
	}
	wg.Wait()

	nonReplays := 0
	for _, replay := range results {
		if !replay {
			nonReplays++
		}
	}
	if nonReplays != 1 {
		t.Errorf("expected exactly 1 non-replay winner among %d concurrent Consume() calls, got %d", attempts, nonReplays)
	}
}
