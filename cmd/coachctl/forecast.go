package main

import (
	"errors"
	"fmt"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/forecast"
	"github.com/nadmax/nexcoach/internal/task"
	"github.com/spf13/cobra"
)

func forecastCmd() *cobra.Command {
	var (
		flagProject   string
		flagThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast project timelines from completion history",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadData(cmd.Context())
			if err != nil {
				return err
			}

			projects, err := selectProjects(data.Projects, flagProject)
			if err != nil {
				return err
			}

			f := forecast.New(forecast.WithReliabilityThreshold(flagThreshold))
			timelines := make([]forecast.Timeline, 0, len(projects))
			for _, p := range projects {
				timelines = append(timelines, f.Forecast(p, data.Tasks))
			}
			return writeJSON(cmd.OutOrStdout(), timelines)
		},
	}

	cmd.Flags().StringVar(&flagProject, "project", "", "Only forecast the project with this id or name")
	cmd.Flags().Float64Var(&flagThreshold, "reliability-threshold", forecast.DefaultReliabilityThreshold, "Flag categories whose reliability is below this value")

	return cmd
}

func selectProjects(projects []task.Project, filter string) ([]task.Project, error) {
	if filter == "" {
		return projects, nil
	}
	for _, p := range projects {
		if p.ID == filter || p.Name == filter {
			return []task.Project{p}, nil
		}
	}
	return nil, apperr.NotFound("coachctl.forecast", fmt.Errorf("project %q: %w", filter, errNoProject))
}

var errNoProject = errors.New("no such project")
