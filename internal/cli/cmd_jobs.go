package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// newJobsCmd creates the jobs command group.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect async stage jobs",
	}
	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsShowCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, database, _, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			jobs, err := database.ListJobs(ctx, limit)
			if err != nil {
				return err
			}
			if useJSON() {
				return printJSON(jobs)
			}
			for _, job := range jobs {
				age := time.Since(job.CreatedAt).Round(time.Second)
				fmt.Printf("%-36s  %-10s  %-9s  %s/%s  %s ago\n",
					job.ID, job.Stage, job.Status, job.Design, job.Tech, age)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum jobs to list")
	return cmd
}

func newJobsShowCmd() *cobra.Command {
	var field string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Long: `Shows a job's record. With --field, extracts a single value by its
JSON path, handy in scripts:

  pdflow jobs show <id> --field Status
  pdflow jobs show <id> --field LogPath`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, database, _, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			job, err := database.GetJob(ctx, args[0])
			if err != nil {
				return err
			}

			if field != "" {
				data, err := json.Marshal(job)
				if err != nil {
					return err
				}
				v := gjson.GetBytes(data, field)
				if !v.Exists() {
					return fmt.Errorf("no field %q on job record", field)
				}
				fmt.Println(v.String())
				return nil
			}
			if useJSON() {
				return printJSON(job)
			}
			fmt.Printf("job:     %s\n", job.ID)
			fmt.Printf("stage:   %s (%s/%s)\n", job.Stage, job.Design, job.Tech)
			fmt.Printf("status:  %s\n", job.Status)
			if job.Version != "" {
				fmt.Printf("version: %s\n", job.Version)
			}
			if job.Error != "" {
				fmt.Printf("error:   %s\n", job.Error)
			}
			if job.LogPath != "" {
				fmt.Printf("log:     %s\n", job.LogPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "print a single field by JSON path")
	return cmd
}
