package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/nadmax/nexcoach/internal/dashboard"
	"github.com/nadmax/nexcoach/internal/queue"
	"github.com/nadmax/nexcoach/internal/repository"
)

const metricsInterval = 10 * time.Second

func startMetricsCollector(ctx context.Context, q *queue.Queue, history repository.JobRepository, logger *slog.Logger) {
	dash := dashboard.NewDashboard(q, history, logger)

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dash.RefreshMetrics(ctx); err != nil {
				logger.Warn("failed to refresh job metrics", "error", err)
			}
		}
	}
}
