// Command evoflow validates, runs and evolves workflow graphs from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "evoflow",
	Short: "Run and evolve AI workflow graphs",
	Long: `evoflow executes directed workflow graphs of AI nodes and improves
them with an evolutionary optimizer.

Workflows are YAML files describing nodes, handoffs and join barriers.
The evolve command mutates a workflow across generations, scoring each
candidate against an evaluation set and keeping the fittest.`,
	Version: "0.1.0",
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file")
	rootCmd.AddCommand(newValidateCmd(), newRunCmd(), newEvolveCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
