package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fabworks/pdflow/internal/stage"
)

// ArtifactFile is one harvested artifact.
type ArtifactFile struct {
	Kind string
	Path string
	Size int64
}

// CollectArtifacts globs the stage's artifact patterns against the
// workspace's output directory. Results are sorted by path for stable
// listings.
func CollectArtifacts(spec *stage.Spec, workspaceDir string) ([]ArtifactFile, error) {
	dir := filepath.Join(workspaceDir, spec.OutDir())
	fsys := os.DirFS(dir)

	var out []ArtifactFile
	for _, art := range spec.Artifacts {
		for _, pattern := range art.Patterns {
			matches, err := doublestar.Glob(fsys, pattern)
			if err != nil {
				return nil, fmt.Errorf("match %s: %w", pattern, err)
			}
			for _, rel := range matches {
				path := filepath.Join(dir, filepath.FromSlash(rel))
				info, err := os.Stat(path)
				if err != nil || info.IsDir() {
					continue
				}
				out = append(out, ArtifactFile{
					Kind: art.Kind,
					Path: path,
					Size: info.Size(),
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}
