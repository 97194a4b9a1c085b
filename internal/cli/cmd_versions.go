package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionsCmd creates the versions command.
func newVersionsCmd() *cobra.Command {
	var tech string

	cmd := &cobra.Command{
		Use:   "versions <design>",
		Short: "List known versions for a design",
		Long: `Lists the synthesis and implementation versions the manifest knows
about for a design, newest first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, database, _, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if tech == "" {
				tech = cfg.Tech
			}
			recs, err := database.ListVersions(ctx, args[0], tech)
			if err != nil {
				return err
			}
			if useJSON() {
				return printJSON(recs)
			}
			if len(recs) == 0 {
				fmt.Printf("no recorded versions for %s/%s\n", args[0], tech)
				return nil
			}
			for _, rec := range recs {
				fmt.Printf("%-14s  %-24s  %-10s  %-9s  %s\n",
					rec.Kind, rec.Version, rec.Stage, rec.Status,
					rec.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tech, "tech", "", "technology node (default from config)")
	return cmd
}
