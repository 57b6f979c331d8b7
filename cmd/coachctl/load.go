package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/logging"
	"github.com/nadmax/nexcoach/internal/notion"
	"github.com/nadmax/nexcoach/internal/task"
)

// loadData reads the workspace snapshot from --file when given, otherwise
// from the configured Notion databases.
func loadData(ctx context.Context) (insights.Data, error) {
	if flagFile != "" {
		f, err := os.Open(flagFile)
		if err != nil {
			return insights.Data{}, apperr.Config("coachctl.load", fmt.Errorf("failed to open %s: %w", flagFile, err))
		}
		defer f.Close()
		return readSnapshot(f)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return insights.Data{}, err
	}
	if err := cfg.Validate(config.Requirements{Notion: true}); err != nil {
		return insights.Data{}, err
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, "text")
	client, err := notion.NewClient(cfg.Notion, logger)
	if err != nil {
		return insights.Data{}, err
	}
	return insights.NewEngine(client, nil, nil, logger).Gather(ctx)
}

// readSnapshot decodes a snapshot. Top-level tasks are attached to their
// projects; when there are none, the tasks embedded in projects are used.
func readSnapshot(r io.Reader) (insights.Data, error) {
	var data insights.Data
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return insights.Data{}, apperr.DataShape("coachctl.load", fmt.Errorf("failed to decode snapshot: %w", err))
	}

	if len(data.Tasks) > 0 {
		data.Projects = task.GroupByProject(data.Projects, data.Tasks)
		return data, nil
	}

	for _, p := range data.Projects {
		data.Tasks = append(data.Tasks, p.Tasks...)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if flagPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
