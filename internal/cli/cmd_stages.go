package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabworks/pdflow/internal/stage"
)

// newStagesCmd creates the stages command.
func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages and their variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if useJSON() {
				return printJSON(stage.Ordered())
			}
			for _, s := range stage.Ordered() {
				upstream := "-"
				if s.Upstream != "" {
					upstream = s.Upstream
				}
				fmt.Printf("%-10s  upstream=%-10s  timeout=%-4s  templates=%s\n",
					s.Name, upstream, s.Timeout, strings.Join(s.Templates, ","))
				for _, v := range s.Vars {
					fmt.Printf("    %-38s default=%s\n", v.Name, v.Default)
				}
			}
			return nil
		},
	}
}
