package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/docqa/audit"
)

func TestSqliteStorageRecordsAttempts(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	attempts := []audit.Attempt{
		{Command: "ls -la", SessionID: "s1", Allowed: true, Reason: "command validated", Time: base},
		{Command: "rm -rf /", SessionID: "s1", Allowed: false, Reason: `forbidden file mutation verb "rm" detected`, Time: base.Add(time.Second)},
		{Command: "pwd", SessionID: "s2", Allowed: true, Reason: "command validated", Time: base.Add(2 * time.Second)},
	}
	for _, a := range attempts {
		if err := storage.WriteAttempt(ctx, a); err != nil {
			t.Fatalf("WriteAttempt failed: %v", err)
		}
	}

	got, err := storage.RecentAttempts(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("RecentAttempts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].Command != "rm -rf /" || got[0].Allowed {
		t.Errorf("expected newest denied attempt first, got %+v", got[0])
	}
	if !got[1].Time.Equal(base) {
		t.Errorf("expected timestamp round trip, got %v", got[1].Time)
	}

	all, err := storage.RecentAttempts(ctx, "", 2)
	if err != nil {
		t.Fatalf("RecentAttempts failed: %v", err)
	}
	if len(all) != 2 || all[0].SessionID != "s2" {
		t.Errorf("expected limit and cross-session ordering, got %+v", all)
	}
}

func TestSqliteStorageStats(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	now := time.Now()
	_ = storage.WriteAttempt(ctx, audit.Attempt{Command: "ls", SessionID: "s1", Allowed: true, Time: now})
	_ = storage.WriteAttempt(ctx, audit.Attempt{Command: "curl x", SessionID: "s1", Allowed: false, Time: now})
	_ = storage.WriteResult(ctx, audit.Result{Command: "ls", SessionID: "s1", Success: true, OutputSize: 120, Time: now})
	_ = storage.WriteResult(ctx, audit.Result{Command: "grep x .", SessionID: "s1", Success: false, OutputSize: 0, Time: now})

	stats, err := storage.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := SessionStats{Attempts: 2, Denied: 1, Executed: 2, Failed: 1, OutputBytes: 120}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}

	empty, err := storage.Stats(ctx, "missing")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if empty != (SessionStats{}) {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}

func TestOpenSqliteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	storage, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	defer storage.Close()

	if err := storage.WriteResult(context.Background(), audit.Result{Command: "ls", SessionID: "s", Success: true, Time: time.Now()}); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
}

func TestSqliteStorageAsRecorderSink(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	rec := audit.NewRecorder(storage, 8, nil)
	rec.RecordAttempt("ls", "s1", true, "command validated")
	rec.RecordResult("ls", "s1", true, 10)
	rec.Close()

	stats, err := storage.Stats(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Attempts != 1 || stats.Executed != 1 {
		t.Errorf("expected recorder to deliver both records, got %+v", stats)
	}
}
