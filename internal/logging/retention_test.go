package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "framerand-old.log")
	fresh := filepath.Join(dir, "framerand-fresh.log")
	excluded := filepath.Join(dir, "framerand-excluded.log")
	unrelated := filepath.Join(dir, "notes.txt")

	for _, path := range []string{old, fresh, excluded, unrelated} {
		if err := os.WriteFile(path, []byte("log"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{old, excluded, unrelated} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	CleanupOldLogs(NewNop(), 7, RetentionTarget{
		Dir:     dir,
		Pattern: "framerand-*.log",
		Exclude: []string{excluded},
	})

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("stale log was not pruned")
	}
	for _, path := range []string{fresh, excluded, unrelated} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s should survive pruning: %v", path, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "framerand-old.log")
	if err := os.WriteFile(old, []byte("log"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	CleanupOldLogs(NewNop(), 0, RetentionTarget{Dir: dir, Pattern: "*.log"})

	if _, err := os.Stat(old); err != nil {
		t.Fatalf("pruning should be disabled at 0 days: %v", err)
	}
}
