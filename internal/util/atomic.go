// Package util holds small filesystem helpers shared across pdflow.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data through a temp file in the target directory,
// fsyncs it, then renames it over path. Readers never see a partial file;
// the rename is atomic on POSIX filesystems, which requires the temp file
// to live next to the target. Missing parent directories are created.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pdflow-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// Still present only when a step below failed.
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// AtomicWriteFileString writes string content with the same guarantees.
func AtomicWriteFileString(path string, content string, perm os.FileMode) error {
	return AtomicWriteFile(path, []byte(content), perm)
}
