// Package stage defines the static descriptors for the fixed physical-design
// pipeline: synthesis → floorplan → powerplan → placement → cts → route → save.
//
// A Spec is immutable and declares everything the orchestrator needs to run a
// stage: its templates, variables, upstream checkpoint candidates, the files
// it owns, and what must exist afterwards for the run to count as successful.
package stage

import (
	"fmt"
	"time"
)

// Kind distinguishes the two workspace shapes.
type Kind string

const (
	// KindSynthesis stages run under designs/<d>/<t>/synthesis/<ver>.
	KindSynthesis Kind = "synthesis"
	// KindImplementation stages share designs/<d>/<t>/implementation/<ver>.
	KindImplementation Kind = "implementation"
)

// Completion marker files written by the external tool.
const (
	MarkerDone     = "_Done_"
	MarkerFinished = "_Finished_"
)

// Var declares one configuration variable a stage consumes.
type Var struct {
	// Name is the canonical variable name (the tcl/env spelling).
	Name string

	// Default is the rendered default value. Empty plus Required means the
	// request must supply it.
	Default string

	// Required marks variables that have no usable default.
	Required bool
}

// Report declares one logical report and its candidate filenames inside the
// reports directory, in preference order. Compressed variants listed before
// their plain counterpart are preferred.
type Report struct {
	Name       string
	Candidates []string
}

// Artifact declares one output artifact kind and the glob patterns that
// locate it inside the output directory.
type Artifact struct {
	Kind     string
	Patterns []string
}

// Spec is the static descriptor for one pipeline stage.
type Spec struct {
	// Name is the stage name ("floorplan", "cts", ...).
	Name string

	// Kind selects the workspace shape.
	Kind Kind

	// Upstream is the stage whose checkpoint this stage restores, or empty.
	Upstream string

	// Templates are the ordered template script filenames under
	// scripts/<tech>/backend.
	Templates []string

	// ScriptFile is the generated script filename.
	ScriptFile string

	// Vars are the stage's declared configuration variables.
	Vars []Var

	// Checkpoint is the saved-state file this stage writes (empty for
	// stages that do not checkpoint).
	Checkpoint string

	// RestoreCandidates are upstream checkpoint filenames inside the
	// saved-state directory, tried in order.
	RestoreCandidates []string

	// Marker is the completion sentinel the tool must write.
	Marker string

	// RequiredOutputs are workspace-relative glob patterns that must match
	// at least one file after a successful run.
	RequiredOutputs []string

	// Owned are workspace-relative glob patterns a forced re-run may
	// delete. Upstream checkpoints are never listed here.
	Owned []string

	// Reports to harvest after the run.
	Reports []Report

	// Artifacts to harvest after the run.
	Artifacts []Artifact

	// Metrics maps logical metric names to gjson paths inside the
	// optional pnr_reports/metrics.json sidecar.
	Metrics map[string]string

	// Timeout bounds the external tool invocation.
	Timeout time.Duration
}

// Subdirs returns the fixed workspace subdirectories for the stage's kind.
func (s *Spec) Subdirs() []string {
	if s.Kind == KindSynthesis {
		return []string{"results", "reports", "logs"}
	}
	return []string{"pnr_save", "pnr_out", "pnr_reports", "pnr_logs"}
}

// SaveDir returns the saved-state subdirectory name.
func (s *Spec) SaveDir() string {
	if s.Kind == KindSynthesis {
		return "results"
	}
	return "pnr_save"
}

// OutDir returns the generated-output subdirectory name.
func (s *Spec) OutDir() string {
	if s.Kind == KindSynthesis {
		return "results"
	}
	return "pnr_out"
}

// ReportsDir returns the reports subdirectory name.
func (s *Spec) ReportsDir() string {
	if s.Kind == KindSynthesis {
		return "reports"
	}
	return "pnr_reports"
}

// LogsDir returns the logs subdirectory name.
func (s *Spec) LogsDir() string {
	if s.Kind == KindSynthesis {
		return "logs"
	}
	return "pnr_logs"
}

// DefaultRestore returns the conventional upstream checkpoint filename, used
// to synthesize a path when no candidate exists on disk.
func (s *Spec) DefaultRestore() string {
	if len(s.RestoreCandidates) == 0 {
		return ""
	}
	return s.RestoreCandidates[0]
}

// Lookup returns the Spec for a stage name.
func Lookup(name string) (*Spec, error) {
	for _, s := range ordered {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown stage %q", name)
}

// Ordered returns all stages in pipeline order.
func Ordered() []*Spec {
	out := make([]*Spec, len(ordered))
	copy(out, ordered)
	return out
}

// Names returns the stage names in pipeline order.
func Names() []string {
	names := make([]string, len(ordered))
	for i, s := range ordered {
		names[i] = s.Name
	}
	return names
}
