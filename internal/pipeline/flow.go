package pipeline

import (
	"context"
	"fmt"

	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/stage"
)

// FlowRequest runs a span of consecutive stages for one design.
type FlowRequest struct {
	Design    string `json:"design"`
	Tech      string `json:"tech"`
	TopModule string `json:"top_module,omitempty"`

	// From and To bound the span, inclusive. Empty means the pipeline's
	// first and last stage respectively.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	SynVersion string `json:"syn_version,omitempty"`
	GIdx       int    `json:"g_idx"`
	PIdx       int    `json:"p_idx"`
	Force      bool   `json:"force,omitempty"`
	Archive    bool   `json:"archive,omitempty"`

	// Params are per-stage variable overrides.
	Params map[string]map[string]any `json:"params,omitempty"`
}

// stageSpan returns the inclusive stage slice between From and To.
func stageSpan(from, to string) ([]*stage.Spec, error) {
	all := stage.Ordered()
	start, end := 0, len(all)-1
	if from != "" {
		start = stageIndex(all, from)
		if start < 0 {
			return nil, errors.ErrConfigInvalid(fmt.Sprintf("unknown stage %q", from))
		}
	}
	if to != "" {
		end = stageIndex(all, to)
		if end < 0 {
			return nil, errors.ErrConfigInvalid(fmt.Sprintf("unknown stage %q", to))
		}
	}
	if end < start {
		return nil, errors.ErrConfigInvalid(
			fmt.Sprintf("stage %q comes before %q", to, from))
	}
	return all[start : end+1], nil
}

func stageIndex(all []*stage.Spec, name string) int {
	for i, s := range all {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// RunFlow executes the requested stages in pipeline order, aborting on the
// first failure. The results of everything that ran, including the failed
// stage, are returned alongside the error.
func (r *Runner) RunFlow(ctx context.Context, req *FlowRequest) ([]*Result, error) {
	specs, err := stageSpan(req.From, req.To)
	if err != nil {
		return nil, err
	}

	synVer := req.SynVersion
	var results []*Result
	for _, spec := range specs {
		stageReq := &stage.Request{
			Stage:      spec.Name,
			Design:     req.Design,
			Tech:       req.Tech,
			TopModule:  req.TopModule,
			SynVersion: synVer,
			GIdx:       req.GIdx,
			PIdx:       req.PIdx,
			Force:      req.Force,
			// Only the final stage's outputs are deliverables.
			Archive: req.Archive && spec.Name == specs[len(specs)-1].Name,
			Params:  req.Params[spec.Name],
		}

		res, err := r.Run(ctx, stageReq)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			r.logger.Error("flow aborted",
				"stage", spec.Name, "design", req.Design, "error", err)
			return results, err
		}

		// Later stages reuse the synthesis version the first stage
		// resolved or created, keeping the whole flow on one lineage.
		if synVer == "" {
			synVer = res.SynVersion
		}
	}
	return results, nil
}
