// Package workspace manages stage working directories: creation, reuse
// detection, forced cleanup of stage-owned files, and the config copies the
// tool scripts expect to find next to them.
package workspace

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/layout"
	"github.com/fabworks/pdflow/internal/stage"
)

// Manager prepares and inspects stage workspaces.
type Manager struct {
	paths  layout.Paths
	logger *slog.Logger
}

// NewManager creates a workspace Manager.
func NewManager(paths layout.Paths, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{paths: paths, logger: logger}
}

// EnsureResult reports what Ensure found.
type EnsureResult struct {
	// Dir is the workspace directory.
	Dir string

	// Reused is true when the directory already existed.
	Reused bool
}

// Ensure creates the workspace and its fixed subdirectories. Calling it on
// an existing workspace is a no-op apart from the Reused flag; with force
// set, files the stage owns are deleted first while everything else,
// including upstream checkpoints, is preserved.
func (m *Manager) Ensure(spec *stage.Spec, dir string, force bool) (EnsureResult, error) {
	info, err := os.Stat(dir)
	reused := err == nil
	if reused && !info.IsDir() {
		return EnsureResult{}, errors.ErrWorkspaceInvalid(dir, "exists but is not a directory")
	}

	if reused && force {
		if err := m.cleanOwned(spec, dir); err != nil {
			return EnsureResult{}, err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return EnsureResult{}, fmt.Errorf("create workspace: %w", err)
	}
	for _, sub := range spec.Subdirs() {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return EnsureResult{}, fmt.Errorf("create workspace subdir %s: %w", sub, err)
		}
	}
	return EnsureResult{Dir: dir, Reused: reused}, nil
}

// cleanOwned removes every file matching the stage's owned patterns.
func (m *Manager) cleanOwned(spec *stage.Spec, dir string) error {
	fsys := os.DirFS(dir)
	for _, pattern := range spec.Owned {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("match %s: %w", pattern, err)
		}
		for _, rel := range matches {
			target := filepath.Join(dir, filepath.FromSlash(rel))
			m.logger.Debug("force clean", "stage", spec.Name, "path", target)
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("remove %s: %w", target, err)
			}
		}
	}
	return nil
}

// Completed reports whether the stage already finished in this workspace:
// the completion marker exists and every required output matches.
func (m *Manager) Completed(spec *stage.Spec, dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, spec.Marker)); err != nil {
		return false
	}
	missing, err := MissingOutputs(spec, dir)
	return err == nil && len(missing) == 0
}

// MissingOutputs returns the required output patterns with no match.
func MissingOutputs(spec *stage.Spec, dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	var missing []string
	for _, pattern := range spec.RequiredOutputs {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			missing = append(missing, pattern)
		}
	}
	return missing, nil
}

// CopyConfigs places the design config and tech config into the workspace
// when they exist. Files already in the workspace are never overwritten, so
// a hand-edited copy survives re-runs.
func (m *Manager) CopyConfigs(design, tech, dir string) error {
	pairs := [][2]string{
		{m.paths.DesignConfig(design), filepath.Join(dir, "config.tcl")},
		{m.paths.TechConfig(tech), filepath.Join(dir, "tech.tcl")},
	}
	for _, pair := range pairs {
		src, dst := pair[0], pair[1]
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LogPath returns the timestamped log file path for one stage invocation.
func LogPath(spec *stage.Spec, dir string, at time.Time) string {
	name := fmt.Sprintf("%s_%s.log", spec.Name, at.Format("20060102_150405"))
	return filepath.Join(dir, spec.LogsDir(), name)
}
