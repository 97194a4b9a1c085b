// Package layout maps the fixed on-disk tree pdflow shares with the CAD
// tools. The layout is load-bearing: pre-existing design trees must keep
// resolving, so every path is produced here and nowhere else.
//
//	designs/<design>/<tech>/synthesis/<synVer>/{results,reports,logs}
//	designs/<design>/<tech>/implementation/<synVer>__g{g}_p{p}/
//	    {pnr_save,pnr_out,pnr_reports,pnr_logs}
package layout

import (
	"fmt"
	"path/filepath"
)

// Paths resolves locations inside a pdflow project root.
type Paths struct {
	Root string
}

// New creates a Paths rooted at root.
func New(root string) Paths {
	return Paths{Root: filepath.Clean(root)}
}

// DesignDir returns the per-design directory.
func (p Paths) DesignDir(design string) string {
	return filepath.Join(p.Root, "designs", design)
}

// DesignConfig returns the design-local config.tcl.
func (p Paths) DesignConfig(design string) string {
	return filepath.Join(p.DesignDir(design), "config.tcl")
}

// TechDir returns the design's per-technology directory.
func (p Paths) TechDir(design, tech string) string {
	return filepath.Join(p.DesignDir(design), tech)
}

// SynthesisRoot returns the directory holding synthesis version directories.
func (p Paths) SynthesisRoot(design, tech string) string {
	return filepath.Join(p.DesignDir(design), tech, "synthesis")
}

// SynthesisDir returns the workspace for one synthesis version.
func (p Paths) SynthesisDir(design, tech, synVer string) string {
	return filepath.Join(p.SynthesisRoot(design, tech), synVer)
}

// SynthesisResults returns the results directory of a synthesis version.
func (p Paths) SynthesisResults(design, tech, synVer string) string {
	return filepath.Join(p.SynthesisDir(design, tech, synVer), "results")
}

// ImplementationRoot returns the directory holding implementation version
// directories.
func (p Paths) ImplementationRoot(design, tech string) string {
	return filepath.Join(p.DesignDir(design), tech, "implementation")
}

// ImplementationDir returns the workspace for one implementation version.
func (p Paths) ImplementationDir(design, tech, implVer string) string {
	return filepath.Join(p.ImplementationRoot(design, tech), implVer)
}

// TemplateDir returns the backend template script directory for a technology.
func (p Paths) TemplateDir(tech string) string {
	return filepath.Join(p.Root, "scripts", tech, "backend")
}

// TechConfig returns the technology config.tcl (tech.tcl).
func (p Paths) TechConfig(tech string) string {
	return filepath.Join(p.Root, "scripts", tech, "tech.tcl")
}

// ScriptDir returns where generated scripts are written for a design.
func (p Paths) ScriptDir(design, tech string) string {
	return filepath.Join(p.Root, "result", design, tech)
}

// DeliverablesDir returns the archive drop directory.
func (p Paths) DeliverablesDir() string {
	return filepath.Join(p.Root, "deliverables")
}

// DatabasePath returns the pdflow state database location.
func (p Paths) DatabasePath() string {
	return filepath.Join(p.Root, ".pdflow", "pdflow.db")
}

// ImplVersion builds an implementation version identifier from a synthesis
// version and the two configuration indices.
func ImplVersion(synVer string, gIdx, pIdx int) string {
	return fmt.Sprintf("%s__g%d_p%d", synVer, gIdx, pIdx)
}

// SynPrefix returns the directory prefix implementation versions derived
// from synVer must carry.
func SynPrefix(synVer string) string {
	return synVer + "__"
}
