// Package workspace manages the mutable build snapshot.
//
// A run never touches the source tree. The manager copies the built site into
// a snapshot directory and every pass mutates only that copy, so a failed run
// leaves the source intact and a re-run starts from a clean slate.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetpress/internal/logfields"
)

// Manager prepares and owns the snapshot directory for a run.
type Manager struct {
	sourceDir   string
	snapshotDir string
	clean       bool // discard a pre-existing snapshot before copying
}

// NewManager creates a snapshot manager for one source/output pair.
func NewManager(sourceDir, snapshotDir string, clean bool) *Manager {
	return &Manager{
		sourceDir:   sourceDir,
		snapshotDir: snapshotDir,
		clean:       clean,
	}
}

// SnapshotDir returns the snapshot root. Valid after Prepare succeeds.
func (m *Manager) SnapshotDir() string {
	return m.snapshotDir
}

// Prepare validates the source tree and clones it into the snapshot directory.
// A missing or unreadable source is a setup failure and aborts the run.
func (m *Manager) Prepare() error {
	info, err := os.Stat(m.sourceDir)
	if err != nil {
		return fmt.Errorf("source directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", m.sourceDir)
	}

	if m.clean {
		if err := os.RemoveAll(m.snapshotDir); err != nil {
			return fmt.Errorf("failed to discard previous snapshot: %w", err)
		}
	}

	if err := os.MkdirAll(m.snapshotDir, 0o750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	count, err := m.copyTree()
	if err != nil {
		return fmt.Errorf("failed to populate snapshot: %w", err)
	}

	slog.Info("Prepared snapshot",
		logfields.Path(m.snapshotDir),
		logfields.Count(count))
	return nil
}

// Cleanup removes the snapshot directory entirely.
func (m *Manager) Cleanup() error {
	if m.snapshotDir == "" {
		return nil
	}
	if err := os.RemoveAll(m.snapshotDir); err != nil {
		return fmt.Errorf("failed to clean up snapshot: %w", err)
	}
	slog.Debug("Cleaned up snapshot", logfields.Path(m.snapshotDir))
	return nil
}

func (m *Manager) copyTree() (int, error) {
	copied := 0
	err := filepath.WalkDir(m.sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dst := filepath.Join(m.snapshotDir, rel)

		if d.IsDir() {
			return os.MkdirAll(dst, 0o750)
		}
		if !d.Type().IsRegular() {
			// Symlinks and specials are skipped; the optimizer only
			// operates on regular files.
			slog.Debug("Skipping non-regular file", logfields.Path(path))
			return nil
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
