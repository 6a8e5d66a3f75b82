package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "helpdesk",
	Short: "Retrieval-augmented technical support resolution engine",
	Long: `Helpdesk answers technical support questions by retrieving relevant
knowledge-base passages and generating a grounded answer through either
a deterministic workflow pipeline or an iterative tool-using agent.
Every resolution attempt is recorded as a ticket with its sources and,
for agent runs, a full tool call audit trail.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "helpdesk.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
