package report

import (
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/fabworks/pdflow/internal/stage"
)

// MetricsFileName is the JSON sidecar some template flows emit next to
// their reports.
const MetricsFileName = "metrics.json"

// ExtractMetrics pulls the stage's declared metrics out of the metrics
// sidecar. A missing sidecar or missing paths yield a smaller map, never an
// error: metrics are best-effort decoration on top of the reports.
func ExtractMetrics(spec *stage.Spec, workspaceDir string) map[string]string {
	if len(spec.Metrics) == 0 {
		return nil
	}
	path := filepath.Join(workspaceDir, spec.ReportsDir(), MetricsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if !gjson.ValidBytes(data) {
		return nil
	}

	out := make(map[string]string)
	for name, jsonPath := range spec.Metrics {
		if v := gjson.GetBytes(data, jsonPath); v.Exists() {
			out[name] = v.String()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
