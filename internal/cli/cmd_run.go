package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabworks/pdflow/internal/pipeline"
	"github.com/fabworks/pdflow/internal/stage"
)

// newRunCmd creates the run command.
func newRunCmd() *cobra.Command {
	var (
		design  string
		tech    string
		top     string
		synVer  string
		implVer string
		gIdx    int
		pIdx    int
		rst     string
		force   bool
		archive bool
		async   bool
		params  []string
	)

	cmd := &cobra.Command{
		Use:   "run <stage>",
		Short: "Run one pipeline stage",
		Long: `Runs a single stage for a design: resolves versions, prepares the
workspace, assembles the tool script, executes the CAD tool and harvests
reports.

Stages: ` + strings.Join(stage.Names(), ", ") + `

Examples:
  pdflow run floorplan --design aes
  pdflow run placement --design aes --param place_global_cong_effort=high
  pdflow run route --design aes --force
  pdflow run save --design aes --archive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req := &stage.Request{
				Stage:       args[0],
				Design:      design,
				Tech:        tech,
				TopModule:   top,
				SynVersion:  synVer,
				ImplVersion: implVer,
				GIdx:        gIdx,
				PIdx:        pIdx,
				Restore:     rst,
				Force:       force,
				Archive:     archive,
				Params:      parsed,
			}

			ctx := cmd.Context()
			cfg, database, runner, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if async {
				jobs := pipeline.NewJobs(runner, database, cfg.MaxJobs, nil)
				id, err := jobs.Submit(ctx, req)
				if err != nil {
					return err
				}
				fmt.Printf("job %s submitted\n", id)
				jobs.Wait()
				rec, err := jobs.Status(ctx, id)
				if err != nil {
					return err
				}
				if useJSON() {
					return printJSON(rec)
				}
				fmt.Printf("job %s: %s\n", id, rec.Status)
				if rec.Error != "" {
					return fmt.Errorf("%s", rec.Error)
				}
				return nil
			}

			res, runErr := runner.Run(ctx, req)
			if res != nil {
				if err := printResult(res); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&design, "design", "d", "", "design name (required)")
	cmd.Flags().StringVar(&tech, "tech", "", "technology node (default from config)")
	cmd.Flags().StringVar(&top, "top", "", "top module name (default: design name)")
	cmd.Flags().StringVar(&synVer, "syn-ver", "", "synthesis version (default: latest)")
	cmd.Flags().StringVar(&implVer, "impl-ver", "", "implementation version (default: derived)")
	cmd.Flags().IntVarP(&gIdx, "g-idx", "g", 0, "floorplan parameter index")
	cmd.Flags().IntVarP(&pIdx, "p-idx", "p", 0, "placement parameter index")
	cmd.Flags().StringVar(&rst, "restore", "", "explicit checkpoint to restore")
	cmd.Flags().BoolVar(&force, "force", false, "re-run even if outputs exist")
	cmd.Flags().BoolVar(&archive, "archive", false, "archive artifacts into deliverables/")
	cmd.Flags().BoolVar(&async, "async", false, "submit as a background job")
	cmd.Flags().StringArrayVar(&params, "param", nil, "stage parameter override (name=value, repeatable)")
	_ = cmd.MarkFlagRequired("design")
	return cmd
}

// printResult renders a stage result for humans or machines.
func printResult(res *pipeline.Result) error {
	if useJSON() {
		return printJSON(res)
	}

	fmt.Printf("%s %s/%s: %s\n", res.Stage, res.Design, res.Tech, res.Status)
	if v := res.Version(); v != "" {
		fmt.Printf("  version:   %s\n", v)
	}
	if res.Workspace != "" {
		fmt.Printf("  workspace: %s\n", res.Workspace)
	}
	if res.LogPath != "" {
		fmt.Printf("  log:       %s\n", res.LogPath)
	}
	if res.ScriptPath != "" {
		fmt.Printf("  script:    %s\n", res.ScriptPath)
	}
	if res.ArchivePath != "" {
		fmt.Printf("  archive:   %s\n", res.ArchivePath)
	}
	for name, value := range res.Metrics {
		fmt.Printf("  %s = %s\n", name, value)
	}
	for _, a := range res.Artifacts {
		fmt.Printf("  [%s] %s (%d bytes)\n", a.Kind, a.Path, a.Size)
	}
	return nil
}
