// Package repository persists generated insights and insight job history in
// PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/queue"
)

const DefaultHistoryLimit = 20

type InsightRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveInsight(ctx context.Context, in *insights.Insight) error
	RecentInsights(ctx context.Context, limit int) ([]insights.Insight, error)
	LatestInsight(ctx context.Context) (*insights.Insight, error)
	Close() error
}

// JobRepository is the durable side of the job queue.
type JobRepository interface {
	queue.Recorder
	GetJobStats(ctx context.Context, hours int) ([]JobStats, error)
	GetRecentJobs(ctx context.Context, limit int) ([]RecentJob, error)
}

type JobStats struct {
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Count         int     `json:"count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs int     `json:"max_duration_ms"`
	MinDurationMs int     `json:"min_duration_ms"`
}

type RecentJob struct {
	JobID         string     `json:"job_id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMs    *int       `json:"duration_ms,omitempty"`
	WorkerID      string     `json:"worker_id,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}
