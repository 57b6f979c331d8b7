package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagFile   string
	flagPretty bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coachctl",
		Short: "Run the coaching analyses offline",
		Long: `coachctl reads tasks, goals and projects from Notion (or from a JSON
snapshot with --file) and prints timeline forecasts or productivity
patterns as JSON, without calling the LLM.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("COACH_CONFIG"), "TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagFile, "file", "", "JSON workspace snapshot to read instead of Notion")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", true, "Indent JSON output")

	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(patternsCmd())

	return rootCmd
}
