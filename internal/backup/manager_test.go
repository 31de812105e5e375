package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mockSnapshotter struct {
	err   error
	calls int
}

func (m *mockSnapshotter) SnapshotTo(_ context.Context, destPath string) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(destPath, []byte("snapshot data"), 0o644)
}

// clockFrom pins a Manager's clock to base, advancing one minute per
// backup so artifact names are distinct and ordered.
func clockFrom(m *Manager, base time.Time) {
	n := 0
	m.now = func() time.Time {
		t := base.Add(time.Duration(n) * time.Minute)
		n++
		return t
	}
}

func fixedClock(m *Manager) {
	clockFrom(m, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestBackup_CreatesArtifact(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(&mockSnapshotter{}, nil)
	fixedClock(mgr)

	path, err := mgr.Backup(context.Background(), dir, 5)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	name := filepath.Base(path)
	if name != "db_backup_20250601_120000.sqlite3" {
		t.Errorf("artifact name = %q", name)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestBackup_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "backups")
	mgr := NewManager(&mockSnapshotter{}, nil)
	fixedClock(mgr)

	if _, err := mgr.Backup(context.Background(), dir, 5); err != nil {
		t.Fatalf("Backup into missing dir: %v", err)
	}
}

func TestBackup_RotationKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(&mockSnapshotter{}, nil)
	fixedClock(mgr)

	const keep = 3
	for i := 0; i < keep+2; i++ {
		if _, err := mgr.Backup(context.Background(), dir, keep); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
	}

	names, err := ListArtifacts(dir)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(names) != keep {
		t.Fatalf("%d artifacts remain, want %d", len(names), keep)
	}

	// Newest first; the oldest two (12:00, 12:01) must be gone.
	want := []string{
		"db_backup_20250601_120400.sqlite3",
		"db_backup_20250601_120300.sqlite3",
		"db_backup_20250601_120200.sqlite3",
	}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("artifact %d = %q, want %q", i, names[i], w)
		}
	}
}

func TestBackup_KeepClampedToOne(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(&mockSnapshotter{}, nil)
	fixedClock(mgr)

	for i := 0; i < 3; i++ {
		if _, err := mgr.Backup(context.Background(), dir, 0); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
	}

	names, err := ListArtifacts(dir)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("%d artifacts remain with keep=0, want 1", len(names))
	}
	if names[0] != "db_backup_20250601_120200.sqlite3" {
		t.Errorf("surviving artifact = %q, want the newest", names[0])
	}
}

func TestBackup_SnapshotFailureSkipsRotation(t *testing.T) {
	dir := t.TempDir()

	good := NewManager(&mockSnapshotter{}, nil)
	fixedClock(good)
	for i := 0; i < 2; i++ {
		if _, err := good.Backup(context.Background(), dir, 10); err != nil {
			t.Fatalf("seed Backup %d: %v", i, err)
		}
	}

	bad := NewManager(&mockSnapshotter{err: fmt.Errorf("disk full")}, nil)
	clockFrom(bad, time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC))
	if _, err := bad.Backup(context.Background(), dir, 1); err == nil {
		t.Fatal("Backup succeeded despite snapshot failure")
	}

	// The failed run must not have rotated away the existing good artifacts.
	names, err := ListArtifacts(dir)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("%d artifacts remain after failed backup, want 2", len(names))
	}
}

func TestBackup_NameCollisionPreservesExisting(t *testing.T) {
	dir := t.TempDir()

	first := NewManager(&mockSnapshotter{}, nil)
	fixedClock(first)
	path, err := first.Backup(context.Background(), dir, 10)
	if err != nil {
		t.Fatalf("seed Backup: %v", err)
	}

	// Same clock base, so the second run lands on the same artifact name.
	// It must refuse before snapshotting, even if its snapshot would fail.
	snap := &mockSnapshotter{err: fmt.Errorf("disk full")}
	second := NewManager(snap, nil)
	fixedClock(second)
	if _, err := second.Backup(context.Background(), dir, 10); err == nil {
		t.Fatal("Backup succeeded over an existing artifact")
	}
	if snap.calls != 0 {
		t.Errorf("snapshotter called %d times for a colliding name, want 0", snap.calls)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading surviving artifact: %v", err)
	}
	if string(data) != "snapshot data" {
		t.Errorf("artifact content = %q, want the original snapshot", data)
	}
}

func TestListArtifacts_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()

	files := []string{
		"db_backup_20250601_120000.sqlite3",
		"db_backup_garbage.sqlite3",
		"notes.txt",
		"db_backup_20250601_120100.sqlite3.tmp",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", f, err)
		}
	}

	names, err := ListArtifacts(dir)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(names) != 1 || names[0] != "db_backup_20250601_120000.sqlite3" {
		t.Errorf("names = %v, want only the valid artifact", names)
	}
}
