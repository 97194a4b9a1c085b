package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fabworks/pdflow/internal/pipeline"
	"github.com/fabworks/pdflow/internal/stage"
)

// newFlowCmd creates the flow command.
func newFlowCmd() *cobra.Command {
	var (
		design  string
		tech    string
		top     string
		from    string
		to      string
		synVer  string
		gIdx    int
		pIdx    int
		force   bool
		archive bool
		params  []string
	)

	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Run consecutive pipeline stages",
		Long: `Runs a span of stages in order, feeding each stage the checkpoint the
previous one saved. The flow aborts at the first failing stage.

By default the span is floorplan through save; use --from/--to to narrow
it, or --from synthesis to start from a fresh netlist.

Examples:
  pdflow flow --design aes
  pdflow flow --design aes --from synthesis --archive
  pdflow flow --design aes --from cts --to route`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			// Flat --param overrides apply to every stage that declares
			// the variable.
			perStage := map[string]map[string]any{}
			for _, spec := range stage.Ordered() {
				for name, value := range parsed {
					if !spec.Declares(name) {
						continue
					}
					if perStage[spec.Name] == nil {
						perStage[spec.Name] = map[string]any{}
					}
					perStage[spec.Name][name] = value
				}
			}

			ctx := cmd.Context()
			_, database, runner, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			results, runErr := runner.RunFlow(ctx, &pipeline.FlowRequest{
				Design:     design,
				Tech:       tech,
				TopModule:  top,
				From:       from,
				To:         to,
				SynVersion: synVer,
				GIdx:       gIdx,
				PIdx:       pIdx,
				Force:      force,
				Archive:    archive,
				Params:     perStage,
			})

			if useJSON() {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					fmt.Printf("%-10s %s\n", res.Stage, res.Status)
				}
				if len(results) > 0 {
					last := results[len(results)-1]
					if last.ArchivePath != "" {
						fmt.Printf("archive: %s\n", last.ArchivePath)
					}
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&design, "design", "d", "", "design name (required)")
	cmd.Flags().StringVar(&tech, "tech", "", "technology node (default from config)")
	cmd.Flags().StringVar(&top, "top", "", "top module name (default: design name)")
	cmd.Flags().StringVar(&from, "from", "floorplan", "first stage of the span")
	cmd.Flags().StringVar(&to, "to", "save", "last stage of the span")
	cmd.Flags().StringVar(&synVer, "syn-ver", "", "synthesis version (default: latest)")
	cmd.Flags().IntVarP(&gIdx, "g-idx", "g", 0, "floorplan parameter index")
	cmd.Flags().IntVarP(&pIdx, "p-idx", "p", 0, "placement parameter index")
	cmd.Flags().BoolVar(&force, "force", false, "re-run stages even if outputs exist")
	cmd.Flags().BoolVar(&archive, "archive", false, "archive final artifacts into deliverables/")
	cmd.Flags().StringArrayVar(&params, "param", nil, "stage parameter override (name=value, repeatable)")
	_ = cmd.MarkFlagRequired("design")
	return cmd
}
