package stage

import (
	"strings"

	"github.com/fabworks/pdflow/internal/errors"
)

// Request carries everything needed to run one stage for one design.
// It is validated once at the boundary; downstream code trusts it.
type Request struct {
	// Stage is the stage name. Must match a known Spec.
	Stage string `json:"stage" yaml:"stage"`

	// Design is the design name under the designs root.
	Design string `json:"design" yaml:"design"`

	// Tech is the technology node ("FreePDK45", "tsmc16", ...).
	Tech string `json:"tech" yaml:"tech"`

	// TopModule overrides the top-level module name. Defaults to Design.
	TopModule string `json:"top_module,omitempty" yaml:"top_module,omitempty"`

	// SynVersion pins the synthesis version. Empty means auto-detect.
	SynVersion string `json:"syn_version,omitempty" yaml:"syn_version,omitempty"`

	// ImplVersion pins the implementation version. Empty means derive it
	// from SynVersion, GIdx and PIdx (or auto-detect for restore-only
	// stages).
	ImplVersion string `json:"impl_version,omitempty" yaml:"impl_version,omitempty"`

	// GIdx and PIdx are the floorplan and placement parameter indices
	// used when deriving a fresh implementation version.
	GIdx int `json:"g_idx" yaml:"g_idx"`
	PIdx int `json:"p_idx" yaml:"p_idx"`

	// Restore overrides the upstream checkpoint path.
	Restore string `json:"restore,omitempty" yaml:"restore,omitempty"`

	// Force re-runs the stage even when its outputs already exist,
	// deleting only the files the stage owns.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Archive bundles harvested artifacts into a deliverables tarball.
	Archive bool `json:"archive,omitempty" yaml:"archive,omitempty"`

	// Params are stage variable overrides keyed by variable name.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Top returns the effective top module name.
func (r *Request) Top() string {
	if r.TopModule != "" {
		return r.TopModule
	}
	return r.Design
}

// Validate checks the request against the stage's descriptor and returns the
// resolved Spec. It rejects unknown stages, missing identity fields, and
// parameters no stage variable declares.
func (r *Request) Validate() (*Spec, error) {
	spec, err := Lookup(r.Stage)
	if err != nil {
		return nil, errors.ErrConfigInvalid(err.Error())
	}
	if strings.TrimSpace(r.Design) == "" {
		return nil, errors.ErrConfigInvalid("design name is required")
	}
	if strings.TrimSpace(r.Tech) == "" {
		return nil, errors.ErrConfigInvalid("tech node is required")
	}
	if r.GIdx < 0 || r.PIdx < 0 {
		return nil, errors.ErrConfigInvalid("parameter indices must be non-negative")
	}
	for name := range r.Params {
		if !spec.Declares(name) {
			return nil, errors.ErrConfigInvalid(
				"stage " + spec.Name + " does not declare variable " + name)
		}
	}
	return spec, nil
}

// Declares reports whether the stage declares a variable.
func (s *Spec) Declares(name string) bool {
	for _, v := range s.Vars {
		if v.Name == name {
			return true
		}
	}
	return false
}
