// Package backup snapshots the note database to timestamped artifacts and
// enforces a retention window over them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	artifactPrefix  = "db_backup_"
	artifactSuffix  = ".sqlite3"
	timestampLayout = "20060102_150405"
)

// DefaultKeep is the retention window used when the caller does not set one.
const DefaultKeep = 10

// Snapshotter writes a consistent database copy to a destination path.
// storage.Store satisfies it via VACUUM INTO.
type Snapshotter interface {
	SnapshotTo(ctx context.Context, destPath string) error
}

// Manager creates backups and rotates old ones.
type Manager struct {
	store  Snapshotter
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(store Snapshotter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, now: time.Now, logger: logger}
}

// Backup writes a new timestamped artifact into outputDir (created if
// absent), then deletes all but the keep most recent artifacts. keep is
// clamped to at least 1, so the artifact just written always survives even
// a misconfigured keep=0. A snapshot failure aborts before rotation: a
// failed new backup must never rotate away good old ones. An existing
// artifact with the current timestamp fails the call without touching it.
func (m *Manager) Backup(ctx context.Context, outputDir string, keep int) (string, error) {
	if keep < 1 {
		keep = 1
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	name := artifactPrefix + m.now().UTC().Format(timestampLayout) + artifactSuffix
	dest := filepath.Join(outputDir, name)

	// Artifact names have second granularity, so back-to-back runs can land
	// on the same name. Whatever sits at dest is a completed backup; refuse
	// rather than overwrite it or expose it to the failure cleanup below.
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup artifact %s already exists, retry in a moment", name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking backup destination: %w", err)
	}

	if err := m.store.SnapshotTo(ctx, dest); err != nil {
		// VACUUM INTO may leave a partial file behind on failure. dest did
		// not exist before this attempt, so this can only remove the partial.
		os.Remove(dest)
		return "", fmt.Errorf("creating backup: %w", err)
	}

	if err := m.rotate(outputDir, keep); err != nil {
		// The new artifact is good; rotation trouble is worth a warning,
		// not a failed backup.
		m.logger.Warn("backup rotation failed", "dir", outputDir, "error", err)
	}

	return dest, nil
}

// rotate deletes artifacts beyond the keep most recent, ordered by the
// timestamp embedded in the filename.
func (m *Manager) rotate(outputDir string, keep int) error {
	names, err := ListArtifacts(outputDir)
	if err != nil {
		return err
	}

	for _, name := range names[min(keep, len(names)):] {
		path := filepath.Join(outputDir, name)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing old backup %s: %w", name, err)
		}
		m.logger.Info("removed old backup", "artifact", name)
	}
	return nil
}

// ListArtifacts returns backup artifact filenames in outputDir, newest
// first by embedded timestamp. Files that don't match the artifact naming
// scheme are ignored.
func ListArtifacts(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactSuffix)
		if _, err := time.Parse(timestampLayout, stamp); err != nil {
			continue
		}
		names = append(names, name)
	}

	// Timestamp format sorts lexicographically; reverse for newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
