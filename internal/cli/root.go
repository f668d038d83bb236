package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Run an autonomous swarm of coding agents against a project spec",
	Long: `swarm decomposes a project specification into a dependency-aware task
queue, then grows a fleet of worker processes that each claim a task,
call an LLM, write and syntax-check the result, and merge it onto a
shared git trunk. A background reconciler retries stalled work and
synthesizes rework for anything it can't land.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to swarm config file (YAML)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("swarm %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
