package main

import (
	"github.com/nadmax/nexcoach/internal/patterns"
	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "Report productivity, success and behavior patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadData(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), patterns.Analyze(data.Tasks, data.Goals))
		},
	}
}
