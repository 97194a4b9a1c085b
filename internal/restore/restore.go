// Package restore locates the upstream checkpoint a stage continues from.
package restore

import (
	"os"
	"path/filepath"

	"github.com/fabworks/pdflow/internal/stage"
)

// Resolution names the checkpoint a stage will restore.
type Resolution struct {
	// Path is the checkpoint path handed to the tool script.
	Path string

	// Found reports whether the checkpoint exists on disk. When false,
	// Path is the synthesized conventional location; callers decide
	// whether that is fatal.
	Found bool

	// Candidate is the checkpoint filename that matched, empty when
	// synthesized or overridden.
	Candidate string
}

// Resolve picks the checkpoint for spec inside workspace. An explicit
// override short-circuits the candidate chain and is trusted as given,
// though Found still reflects the filesystem. Stages without an upstream
// resolve to the zero Resolution.
func Resolve(spec *stage.Spec, workspace, override string) Resolution {
	if override != "" {
		_, err := os.Stat(override)
		return Resolution{Path: override, Found: err == nil}
	}
	if spec.Upstream == "" || len(spec.RestoreCandidates) == 0 {
		return Resolution{}
	}

	saveDir := filepath.Join(workspace, spec.SaveDir())
	for _, name := range spec.RestoreCandidates {
		path := filepath.Join(saveDir, name)
		if _, err := os.Stat(path); err == nil {
			return Resolution{Path: path, Found: true, Candidate: name}
		}
	}
	return Resolution{Path: filepath.Join(saveDir, spec.DefaultRestore())}
}
