package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/queue"
)

const schema = `
CREATE TABLE IF NOT EXISTS insights (
	id              TEXT PRIMARY KEY,
	generated_at    TIMESTAMPTZ NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	patterns        TEXT[] NOT NULL DEFAULT '{}',
	recommendations TEXT[] NOT NULL DEFAULT '{}',
	priorities      TEXT[] NOT NULL DEFAULT '{}',
	raw             TEXT NOT NULL DEFAULT '',
	analysis        JSONB
);
CREATE INDEX IF NOT EXISTS insights_generated_at_idx ON insights (generated_at DESC);

CREATE TABLE IF NOT EXISTS job_history (
	job_id         TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	payload        JSONB,
	status         TEXT NOT NULL,
	failure_reason TEXT,
	worker_id      TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	scheduled_at   TIMESTAMPTZ,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	duration_ms    INTEGER
);
CREATE INDEX IF NOT EXISTS job_history_created_at_idx ON job_history (created_at DESC);
`

const insightColumns = `id, generated_at, summary, patterns, recommendations, priorities, raw, analysis`

var (
	_ InsightRepository = (*PostgresRepository)(nil)
	_ JobRepository     = (*PostgresRepository)(nil)
)

type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresRepository(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Config("repository.connect", fmt.Errorf("failed to connect to PostgreSQL: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperr.Config("repository.connect", fmt.Errorf("failed to ping PostgreSQL: %w", err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db, logger: logger}, nil
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return wrap("repository.ensure_schema", err)
	}
	return nil
}

func (r *PostgresRepository) SaveInsight(ctx context.Context, in *insights.Insight) error {
	var analysis []byte
	if in.Analysis != nil {
		var err error
		if analysis, err = json.Marshal(in.Analysis); err != nil {
			return fmt.Errorf("failed to marshal analysis: %w", err)
		}
	}

	query := `
		INSERT INTO insights (` + insightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		in.ID,
		in.GeneratedAt,
		in.Summary,
		pq.Array(in.Patterns),
		pq.Array(in.Recommendations),
		pq.Array(in.Priorities),
		in.Raw,
		analysis,
	)
	if err != nil {
		return wrap("repository.save_insight", err)
	}
	return nil
}

// RecentInsights returns up to limit insights, newest first. A non-positive
// limit falls back to DefaultHistoryLimit.
func (r *PostgresRepository) RecentInsights(ctx context.Context, limit int) ([]insights.Insight, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT ` + insightColumns + ` FROM insights ORDER BY generated_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, wrap("repository.recent_insights", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	out := []insights.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("repository.recent_insights", err)
	}
	return out, nil
}

func (r *PostgresRepository) LatestInsight(ctx context.Context) (*insights.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights ORDER BY generated_at DESC LIMIT 1`
	in, err := scanInsight(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("repository.latest_insight", errors.New("no insight has been generated yet"))
	}
	return in, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInsight(s scanner) (*insights.Insight, error) {
	var in insights.Insight
	var analysis []byte
	if err := s.Scan(
		&in.ID,
		&in.GeneratedAt,
		&in.Summary,
		pq.Array(&in.Patterns),
		pq.Array(&in.Recommendations),
		pq.Array(&in.Priorities),
		&in.Raw,
		&analysis,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, wrap("repository.scan_insight", err)
	}

	if len(analysis) > 0 {
		in.Analysis = &insights.Analysis{}
		if err := json.Unmarshal(analysis, in.Analysis); err != nil {
			return nil, apperr.DataShape("repository.scan_insight", fmt.Errorf("failed to decode analysis of %s: %w", in.ID, err))
		}
	}
	return &in, nil
}

func (r *PostgresRepository) SaveJob(ctx context.Context, j *queue.Job) error {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO job_history (
			job_id, type, payload, status, failure_reason, created_at, scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			scheduled_at = EXCLUDED.scheduled_at
	`

	var scheduledAt any
	if !j.ScheduledAt.IsZero() {
		scheduledAt = j.ScheduledAt
	}
	var reason any
	if j.Error != "" {
		reason = j.Error
	}

	_, err = r.db.ExecContext(ctx, query, j.ID, string(j.Type), payload, string(j.Status), reason, j.CreatedAt, scheduledAt)
	if err != nil {
		return wrap("repository.save_job", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateJobStatus(ctx context.Context, jobID string, status queue.JobStatus, workerID string) error {
	statusStr := string(status)
	query := `
		UPDATE job_history
		SET status = $1,
		    started_at = CASE WHEN $1::text = 'running' THEN NOW() ELSE started_at END,
		    worker_id = $2
		WHERE job_id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, statusStr, workerID, jobID); err != nil {
		return wrap("repository.update_job_status", err)
	}
	return nil
}

func (r *PostgresRepository) CompleteJob(ctx context.Context, jobID string, durationMs int) error {
	query := `
		UPDATE job_history
		SET status = 'completed',
		    completed_at = NOW(),
		    duration_ms = $1
		WHERE job_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, durationMs, jobID); err != nil {
		return wrap("repository.complete_job", err)
	}
	return nil
}

func (r *PostgresRepository) FailJob(ctx context.Context, jobID string, reason string, durationMs int) error {
	query := `
		UPDATE job_history
		SET status = 'failed',
		    completed_at = NOW(),
		    failure_reason = $1,
		    duration_ms = $2
		WHERE job_id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, reason, durationMs, jobID); err != nil {
		return wrap("repository.fail_job", err)
	}
	return nil
}

func (r *PostgresRepository) GetJobStats(ctx context.Context, hours int) ([]JobStats, error) {
	query := `
		SELECT
			type, status, COUNT(*) AS count,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
			COALESCE(MAX(duration_ms), 0) AS max_duration_ms,
			COALESCE(MIN(duration_ms), 0) AS min_duration_ms
		FROM job_history
		WHERE created_at > NOW() - INTERVAL '1 hour' * $1
		GROUP BY type, status
		ORDER BY type, status
	`
	rows, err := r.db.QueryContext(ctx, query, hours)
	if err != nil {
		return nil, wrap("repository.job_stats", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	stats := []JobStats{}
	for rows.Next() {
		var s JobStats
		if err := rows.Scan(
			&s.Type,
			&s.Status,
			&s.Count,
			&s.AvgDurationMs,
			&s.MaxDurationMs,
			&s.MinDurationMs,
		); err != nil {
			return nil, wrap("repository.job_stats", err)
		}

		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("repository.job_stats", err)
	}
	return stats, nil
}

func (r *PostgresRepository) GetRecentJobs(ctx context.Context, limit int) ([]RecentJob, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT
			job_id, type, status, created_at, completed_at,
			duration_ms, COALESCE(worker_id, ''), COALESCE(failure_reason, '')
		FROM job_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, wrap("repository.recent_jobs", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	jobs := []RecentJob{}
	for rows.Next() {
		var j RecentJob
		if err := rows.Scan(
			&j.JobID,
			&j.Type,
			&j.Status,
			&j.CreatedAt,
			&j.CompletedAt,
			&j.DurationMs,
			&j.WorkerID,
			&j.FailureReason,
		); err != nil {
			return nil, wrap("repository.recent_jobs", err)
		}

		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("repository.recent_jobs", err)
	}
	return jobs, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// wrap classifies driver errors. A missing table means EnsureSchema never
// ran, which is a deployment problem rather than a transient one.
func wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return apperr.Config(op, fmt.Errorf("%s (schema missing): %w", pqErr.Message, err))
	}
	return apperr.Transport(op, err)
}
