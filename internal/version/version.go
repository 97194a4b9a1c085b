// Package version resolves synthesis and implementation versions. An
// explicitly requested version always wins; otherwise the manifest database
// answers, and only when it has no row does the resolver fall back to
// scanning directory mtimes the way the legacy trees are laid out.
package version

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fabworks/pdflow/internal/db"
	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/layout"
)

// Resolver answers version questions for one project root.
type Resolver struct {
	paths  layout.Paths
	db     *db.DB
	logger *slog.Logger
}

// NewResolver builds a Resolver. The database is optional; without it only
// the mtime scan is used.
func NewResolver(paths layout.Paths, database *db.DB, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{paths: paths, db: database, logger: logger}
}

// Synthesis resolves the synthesis version for a design. explicit, when
// non-empty, is validated against the filesystem and returned as-is.
func (r *Resolver) Synthesis(ctx context.Context, design, tech, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(r.paths.SynthesisDir(design, tech, explicit)); err != nil {
			return "", errors.ErrVersionNotFound("synthesis", design, tech).
				WithCause(err)
		}
		return explicit, nil
	}

	if r.db != nil {
		ver, ok, err := r.db.LatestVersion(ctx, design, tech, db.KindSynthesis)
		if err != nil {
			return "", err
		}
		if ok {
			if _, statErr := os.Stat(r.paths.SynthesisDir(design, tech, ver)); statErr == nil {
				return ver, nil
			}
			r.logger.Warn("manifest synthesis version missing on disk, falling back to scan",
				"design", design, "tech", tech, "version", ver)
		}
	}

	ver, err := newestSubdir(r.paths.SynthesisRoot(design, tech), "")
	if err != nil {
		return "", errors.ErrVersionNotFound("synthesis", design, tech).WithCause(err)
	}
	if ver == "" {
		return "", errors.ErrVersionNotFound("synthesis", design, tech)
	}
	return ver, nil
}

// Implementation resolves the implementation version. explicit wins; an
// empty explicit scans the implementation root constrained to versions
// derived from synVer (when synVer is non-empty).
func (r *Resolver) Implementation(ctx context.Context, design, tech, synVer, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(r.paths.ImplementationDir(design, tech, explicit)); err != nil {
			return "", errors.ErrVersionNotFound("implementation", design, tech).
				WithCause(err)
		}
		return explicit, nil
	}

	prefix := ""
	if synVer != "" {
		prefix = layout.SynPrefix(synVer)
	}

	if r.db != nil {
		ver, ok, err := r.db.LatestVersion(ctx, design, tech, db.KindImplementation)
		if err != nil {
			return "", err
		}
		if ok && strings.HasPrefix(ver, prefix) {
			if _, statErr := os.Stat(r.paths.ImplementationDir(design, tech, ver)); statErr == nil {
				return ver, nil
			}
			r.logger.Warn("manifest implementation version missing on disk, falling back to scan",
				"design", design, "tech", tech, "version", ver)
		}
	}

	ver, err := newestSubdir(r.paths.ImplementationRoot(design, tech), prefix)
	if err != nil {
		return "", errors.ErrVersionNotFound("implementation", design, tech).WithCause(err)
	}
	if ver == "" {
		return "", errors.ErrVersionNotFound("implementation", design, tech)
	}
	return ver, nil
}

// newestSubdir returns the subdirectory with the newest mtime, optionally
// constrained to a name prefix. Ties break lexicographically descending so
// the scan stays deterministic.
func newestSubdir(root, prefix string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}

	var best string
	var bestTime time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()
		if best == "" || mt.After(bestTime) || (mt.Equal(bestTime) && name > best) {
			best = name
			bestTime = mt
		}
	}
	return best, nil
}
