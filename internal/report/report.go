// Package report harvests run outputs: stage reports (with transparent
// gunzip), artifact files, optional metric extraction from the tool's JSON
// sidecar, and deliverable tarballs.
package report

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabworks/pdflow/internal/stage"
)

// NotFound is the sentinel content for a report the tool never wrote.
const NotFound = "not found"

// Entry is one harvested report.
type Entry struct {
	// Name is the logical report name.
	Name string

	// Path is the file that matched, empty when none did.
	Path string

	// Content is the report text, gunzipped when the compressed variant
	// matched, or NotFound.
	Content string
}

// Collect reads every report the stage declares from the workspace's
// reports directory. Candidates are tried in declared order, so a
// compressed variant listed first shadows its plain counterpart. Missing
// reports are returned with NotFound content rather than an error: a run
// that skipped an optional report is still a run.
func Collect(spec *stage.Spec, workspaceDir string) ([]Entry, error) {
	dir := filepath.Join(workspaceDir, spec.ReportsDir())
	entries := make([]Entry, 0, len(spec.Reports))
	for _, rep := range spec.Reports {
		entry := Entry{Name: rep.Name, Content: NotFound}
		for _, cand := range rep.Candidates {
			path := filepath.Join(dir, cand)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			content, err := readMaybeGzip(path)
			if err != nil {
				return nil, fmt.Errorf("read report %s: %w", path, err)
			}
			entry.Path = path
			entry.Content = content
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// readMaybeGzip reads a file, decompressing it when the name says gzip.
func readMaybeGzip(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("gunzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
