// Package cli implements the pdflow command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rootDir string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pdflow",
	Short: "Physical design flow orchestrator",
	Long: `pdflow drives a chip physical-design pipeline through its stages:
synthesis, floorplan, powerplan, placement, cts, route and save.

Each stage assembles a tool script from the technology's templates,
runs the CAD tool in a versioned workspace, and harvests reports and
artifacts.

Quick start:
  pdflow init                          Initialize a project root
  pdflow run floorplan --design aes    Run one stage
  pdflow flow --design aes             Run the implementation flow
  pdflow jobs list                     Show async jobs`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newFlowCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newVersionsCmd())
	rootCmd.AddCommand(newStagesCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig wires environment variables into viper.
func initConfig() {
	viper.AddConfigPath(".pdflow")
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	viper.SetEnvPrefix("PDFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
