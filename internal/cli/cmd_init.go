package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fabworks/pdflow/internal/config"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var tech string
	var tool string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a pdflow project root",
		Long: `Creates the .pdflow directory with a default config.yaml and the
designs/, scripts/ and result/ directories the flow expects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}

			if _, err := os.Stat(config.Path(root)); err == nil {
				return fmt.Errorf("already initialized: %s exists", config.Path(root))
			}

			cfg := config.Default(root)
			if tech != "" {
				cfg.Tech = tech
			}
			if tool != "" {
				cfg.Tool.Path = tool
			}
			if err := cfg.Save(root); err != nil {
				return err
			}

			for _, dir := range []string{"designs", "scripts", "result", "deliverables"} {
				if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
					return err
				}
			}

			fmt.Printf("Initialized pdflow project in %s\n", root)
			fmt.Printf("  config: %s\n", config.Path(root))
			fmt.Printf("  tech:   %s\n", cfg.Tech)
			fmt.Printf("  tool:   %s\n", cfg.Tool.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&tech, "tech", "", "default technology node")
	cmd.Flags().StringVar(&tool, "tool", "", "CAD tool binary")
	return cmd
}
