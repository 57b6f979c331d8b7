// Package dashboard reports the state of insight jobs: live counts from the
// queue and, when Postgres is configured, aggregated job history.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/nadmax/nexcoach/internal/httputil"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/nadmax/nexcoach/internal/queue"
	"github.com/nadmax/nexcoach/internal/repository"
)

const (
	historyWindowHours = 24
	recentWindow       = historyWindowHours * time.Hour
	recentJobsLimit    = 200
)

type JobSource interface {
	GetAllJobs(ctx context.Context) ([]*queue.Job, error)
}

type Dashboard struct {
	jobs    JobSource
	history repository.JobRepository
	logger  *slog.Logger
}

type Stats struct {
	TotalJobs       int                   `json:"total_jobs"`
	PendingJobs     int                   `json:"pending_jobs"`
	RunningJobs     int                   `json:"running_jobs"`
	CompletedJobs   int                   `json:"completed_jobs"`
	FailedJobs      int                   `json:"failed_jobs"`
	JobsByType      map[string]int        `json:"jobs_by_type"`
	AverageWaitTime string                `json:"average_wait_time"`
	History         []repository.JobStats `json:"history,omitempty"`
	LastUpdated     time.Time             `json:"last_updated"`
}

type JobHistory struct {
	JobID       string          `json:"job_id"`
	Type        queue.JobType   `json:"type"`
	Status      queue.JobStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Duration    string          `json:"duration"`
	WorkerID    string          `json:"worker_id,omitempty"`
	Result      string          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewDashboard builds a dashboard over jobs. history may be nil.
func NewDashboard(jobs JobSource, history repository.JobRepository, logger *slog.Logger) *Dashboard {
	return &Dashboard{jobs: jobs, history: history, logger: logger}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	jobs, err := d.jobs.GetAllJobs(r.Context())
	if err != nil {
		httputil.WriteError(w, "Failed to load jobs", err)
		return
	}

	stats := Stats{
		TotalJobs:   len(jobs),
		JobsByType:  make(map[string]int),
		LastUpdated: time.Now(),
	}

	var totalWaitTime time.Duration
	waitCount := 0

	for _, j := range jobs {
		switch j.Status {
		case queue.StatusPending:
			stats.PendingJobs++
		case queue.StatusRunning:
			stats.RunningJobs++
		case queue.StatusCompleted:
			stats.CompletedJobs++
		case queue.StatusFailed:
			stats.FailedJobs++
		}

		stats.JobsByType[string(j.Type)]++

		if j.StartedAt != nil {
			totalWaitTime += j.StartedAt.Sub(j.CreatedAt)
			waitCount++
		}
	}

	if waitCount > 0 {
		avgWait := totalWaitTime / time.Duration(waitCount)
		stats.AverageWaitTime = avgWait.Round(time.Millisecond).String()
	} else {
		stats.AverageWaitTime = "N/A"
	}

	if d.history != nil {
		history, err := d.history.GetJobStats(r.Context(), historyWindowHours)
		if err != nil {
			d.logger.Warn("failed to load job history stats", "error", err)
		} else {
			stats.History = history
		}
	}

	httputil.WriteJSON(w, stats, http.StatusOK)
}

// GetRecentJobs lists jobs finished in the last 24 hours, newest first.
// Postgres history is preferred since it outlives the Redis hash; the queue
// is the fallback when history is unset or unreachable.
func (d *Dashboard) GetRecentJobs(w http.ResponseWriter, r *http.Request) {
	var (
		history []JobHistory
		err     error
	)
	if d.history != nil {
		history, err = d.recentFromHistory(r.Context())
		if err != nil {
			d.logger.Warn("failed to load job history, falling back to queue", "error", err)
		}
	}
	if d.history == nil || err != nil {
		history, err = d.recentFromQueue(r.Context())
		if err != nil {
			httputil.WriteError(w, "Failed to load jobs", err)
			return
		}
	}

	sort.Slice(history, func(a, b int) bool { return history[a].CompletedAt.After(*history[b].CompletedAt) })
	httputil.WriteJSON(w, history, http.StatusOK)
}

func (d *Dashboard) recentFromHistory(ctx context.Context) ([]JobHistory, error) {
	jobs, err := d.history.GetRecentJobs(ctx, recentJobsLimit)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-recentWindow)
	history := []JobHistory{}
	for _, j := range jobs {
		if j.CompletedAt == nil || j.CompletedAt.Before(cutoff) {
			continue
		}

		var duration string
		if j.DurationMs != nil {
			duration = (time.Duration(*j.DurationMs) * time.Millisecond).String()
		}

		history = append(history, JobHistory{
			JobID:       j.JobID,
			Type:        queue.JobType(j.Type),
			Status:      queue.JobStatus(j.Status),
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
			Duration:    duration,
			WorkerID:    j.WorkerID,
			Error:       j.FailureReason,
		})
	}
	return history, nil
}

func (d *Dashboard) recentFromQueue(ctx context.Context) ([]JobHistory, error) {
	jobs, err := d.jobs.GetAllJobs(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-recentWindow)
	history := []JobHistory{}
	for _, j := range jobs {
		if j.CompletedAt == nil || j.CompletedAt.Before(cutoff) {
			continue
		}

		var duration string
		if j.StartedAt != nil {
			duration = j.CompletedAt.Sub(*j.StartedAt).Round(time.Millisecond).String()
		}

		history = append(history, JobHistory{
			JobID:       j.ID,
			Type:        j.Type,
			Status:      j.Status,
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
			Duration:    duration,
			WorkerID:    j.WorkerID,
			Result:      j.Result,
			Error:       j.Error,
		})
	}
	return history, nil
}

// RefreshMetrics publishes job gauges: jobs by status and type, pending
// depth and the number of workers with a running job.
func (d *Dashboard) RefreshMetrics(ctx context.Context) error {
	jobs, err := d.jobs.GetAllJobs(ctx)
	if err != nil {
		return err
	}

	byStatus := make(map[string]map[string]int)
	workers := make(map[string]struct{})
	pending := 0
	for _, j := range jobs {
		status := string(j.Status)
		if byStatus[status] == nil {
			byStatus[status] = make(map[string]int)
		}
		byStatus[status][string(j.Type)]++

		switch j.Status {
		case queue.StatusPending:
			pending++
		case queue.StatusRunning:
			if j.WorkerID != "" {
				workers[j.WorkerID] = struct{}{}
			}
		}
	}

	metrics.UpdateJobGauges(byStatus)
	metrics.UpdateQueueDepth(pending)
	metrics.UpdateActiveWorkers(len(workers))
	return nil
}
